// Package watcher reindexes the catalog when item files change.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/catalog"
	"github.com/light-rec/lr-ibcf/internal/logging"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a catalog directory and calls onChange once per burst of
// item file events.
type Watcher struct {
	dir      string
	onChange func()
	debounce time.Duration
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	timer    *time.Timer
	mu       sync.Mutex
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logging.OrNop(l) }
}

// WithDebounce overrides the quiet period before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher for dir. onChange runs on its own goroutine.
func NewWatcher(dir string, onChange func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}
	if w.onChange == nil {
		return errors.New("watcher: onChange is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	go w.run(ctx, watcher)
	return nil
}

// Stop stops the watcher and cancels any pending callback.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
	})
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !catalog.IsItemFile(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule()
}

// schedule (re)arms the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()

	w.logger.Debug("watcher: catalog changed")
	w.onChange()
}
