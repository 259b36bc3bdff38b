package recommend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/catalog"
	"github.com/light-rec/lr-ibcf/internal/config"
	"github.com/light-rec/lr-ibcf/internal/logging"
	"github.com/light-rec/lr-ibcf/internal/metrics"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
)

// Manager coordinates loading the catalog and keeping the store in sync with it
type Manager struct {
	catalogDir string
	driver     config.StoreDriver
	storePath  string
	loader     *catalog.Loader
	logger     *zap.Logger

	store     vectorstore.Store
	items     []catalog.Item
	indexed   bool
	indexTime time.Time
	mu        sync.RWMutex
}

// IndexStats describes one index run
type IndexStats struct {
	Items    int
	Cached   bool   // the store already matched the catalog
	Reason   string // why the store was rewritten
	Duration time.Duration
}

// NewManager creates a manager for the configured catalog and store
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger)
	logger.Debug("manager: created",
		zap.String("catalog_dir", cfg.Catalog.Dir),
		zap.String("driver", string(cfg.Store.Driver)),
		zap.String("store_path", cfg.Store.Path))

	return &Manager{
		catalogDir: cfg.Catalog.Dir,
		driver:     cfg.Store.Driver,
		storePath:  cfg.Store.Path,
		loader:     catalog.NewLoader(logger),
		logger:     logger,
	}
}

// CatalogDir returns the directory item files are read from
func (m *Manager) CatalogDir() string {
	return m.catalogDir
}

// EnsureCatalogDir creates the catalog directory if it doesn't exist
func (m *Manager) EnsureCatalogDir() error {
	if err := os.MkdirAll(m.catalogDir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return nil
}

// Load reads all item files from the catalog directory
func (m *Manager) Load() error {
	items, err := m.loader.LoadAll(m.catalogDir)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	return nil
}

// Index loads the catalog and writes it to the store. A sqlite store that
// already matches the catalog is reused unless force is set.
func (m *Manager) Index(ctx context.Context, force bool) (IndexStats, error) {
	start := time.Now()

	stats, err := m.index(ctx, force)
	stats.Duration = time.Since(start)

	switch {
	case err != nil:
		metrics.RecordIndex("error", 0)
		m.logger.Error("manager: index failed", zap.Error(err))
	case stats.Cached:
		metrics.RecordIndex("cached", stats.Items)
		m.logger.Debug("manager: store is up to date", zap.Int("items", stats.Items))
	default:
		metrics.RecordIndex("success", stats.Items)
		m.logger.Info("manager: indexed catalog",
			zap.Int("items", stats.Items),
			zap.String("reason", stats.Reason),
			zap.Duration("elapsed", stats.Duration))
	}

	return stats, err
}

func (m *Manager) index(ctx context.Context, force bool) (IndexStats, error) {
	if err := m.Load(); err != nil {
		return IndexStats{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := IndexStats{Items: len(m.items)}

	fresh := false
	if m.store == nil {
		store, created, err := m.openStore()
		if err != nil {
			return stats, err
		}
		m.store = store
		fresh = created
	}

	switch {
	case force:
		stats.Reason = "forced"
	case fresh:
		stats.Reason = "new store"
	default:
		sq, ok := m.store.(*vectorstore.SQLiteStore)
		if !ok {
			stats.Reason = "memory store"
			break
		}
		valid, reason := sq.IsValid(sourceFiles(m.items))
		if valid {
			info, err := sq.Info()
			if err == nil {
				m.indexTime = info.IndexedAt
			}
			m.indexed = true
			stats.Cached = true
			return stats, nil
		}
		stats.Reason = reason
	}

	records := make([]vectorstore.Record, len(m.items))
	for i, item := range m.items {
		records[i] = toRecord(item)
	}
	if err := m.store.ReplaceAll(ctx, records); err != nil {
		return stats, fmt.Errorf("failed to write store: %w", err)
	}
	indexTime := time.Now()
	if sq, ok := m.store.(*vectorstore.SQLiteStore); ok {
		if err := sq.MarkIndexed(); err != nil {
			return stats, err
		}
		// match what a later cached run will read back
		if info, err := sq.Info(); err == nil {
			indexTime = info.IndexedAt
		}
	}

	m.indexed = true
	m.indexTime = indexTime
	return stats, nil
}

// openStore opens the configured store and reports whether it was newly created
func (m *Manager) openStore() (vectorstore.Store, bool, error) {
	if m.driver == config.StoreMemory {
		return vectorstore.NewMemoryStore(), true, nil
	}

	store, err := vectorstore.OpenSQLiteStore(m.storePath)
	if err == nil {
		return store, false, nil
	}
	m.logger.Debug("manager: creating store", zap.String("path", m.storePath), zap.NamedError("open_error", err))

	store, err = vectorstore.NewSQLiteStore(m.storePath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create store: %w", err)
	}
	return store, true, nil
}

// Store returns the store filled by the last Index call, or nil before it
func (m *Manager) Store() vectorstore.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// Close releases the store
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}

// IsIndexed returns whether the catalog has been indexed
func (m *Manager) IsIndexed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed
}

// IndexTime returns when the store was last written
func (m *Manager) IndexTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexTime
}

// NeedsReindex checks if any item file has been modified since the last index
func (m *Manager) NeedsReindex() bool {
	m.mu.RLock()
	indexed, indexTime := m.indexed, m.indexTime
	m.mu.RUnlock()

	if !indexed {
		return true
	}

	files, err := filepath.Glob(filepath.Join(m.catalogDir, "*.md"))
	if err != nil {
		return false
	}

	for _, file := range files {
		if !catalog.IsItemFile(file) {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().After(indexTime) {
			return true
		}
	}

	return false
}

// Count returns the number of loaded items
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Items returns a copy of the loaded items
func (m *Manager) Items() []catalog.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]catalog.Item, len(m.items))
	copy(items, m.items)
	return items
}

func toRecord(item catalog.Item) vectorstore.Record {
	rec := vectorstore.Record{
		ID:        item.ID,
		Title:     item.Title,
		Source:    item.Filename,
		UpdatedAt: item.UpdatedAt,
		Vector:    item.Features,
	}
	if len(item.Categories) > 0 {
		rec.Metadata = map[string]string{"categories": strings.Join(item.Categories, ",")}
	}
	return rec
}

func sourceFiles(items []catalog.Item) []vectorstore.SourceFile {
	sources := make([]vectorstore.SourceFile, len(items))
	for i, item := range items {
		sources[i] = vectorstore.SourceFile{Path: item.Filename, UpdatedAt: item.UpdatedAt}
	}
	return sources
}
