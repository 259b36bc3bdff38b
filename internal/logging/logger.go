// Package logging builds the zap loggers used across lr-ibcf.
package logging

import "go.uber.org/zap"

// New returns a zap logger. When debug is true it uses the development config
// (console encoding, debug level); otherwise the production config (JSON, info level).
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Nop returns a logger that discards everything
func Nop() *zap.Logger {
	return zap.NewNop()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
