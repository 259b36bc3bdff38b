// Package server provides the HTTP API for lr-ibcf.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/config"
	"github.com/light-rec/lr-ibcf/internal/logging"
	"github.com/light-rec/lr-ibcf/internal/recommend"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
)

// Server is the HTTP server for the lr-ibcf API.
type Server struct {
	engine *recommend.Engine
	store  vectorstore.Store
	config config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *recommend.Engine, store vectorstore.Store, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		store:  store,
		config: cfg,
		logger: logging.OrNop(logger),
	}
	// built here so Start and Stop never race on the field
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/items", s.handleListItems)
		r.Get("/items/{id}", s.handleGetItem)
		r.Get("/items/{id}/similar", s.handleSimilar)
		r.Post("/similarity", s.handleSimilarity)
		r.Post("/query", s.handleQuery)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops. After Stop it
// returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. It is safe to call before or
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
