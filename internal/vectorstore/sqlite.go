package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/light-rec/lr-ibcf/internal/similarity"
)

const schemaVersion = "1"

// SQLiteStore is a persistent vector store using SQLite. Each feature weight
// is a row, so sparse vectors of any width fit.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// IndexInfo describes the last index run recorded in the store
type IndexInfo struct {
	Version   string
	IndexID   string
	IndexedAt time.Time
}

// NewSQLiteStore creates (or reuses) the database at dbPath and stamps a new index
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.initSchema(); err != nil {
		store.db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.setMetadata("version", schemaVersion); err != nil {
		store.db.Close()
		return nil, err
	}
	if err := store.MarkIndexed(); err != nil {
		store.db.Close()
		return nil, err
	}

	return store, nil
}

// OpenSQLiteStore opens an existing SQLite vector store
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database does not exist: %s", dbPath)
	}

	store, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	version, err := store.getMetadata("version")
	if err != nil {
		store.db.Close()
		return nil, fmt.Errorf("failed to read version metadata: %w", err)
	}
	if version != schemaVersion {
		store.db.Close()
		return nil, fmt.Errorf("unsupported store version %s (want %s)", version, schemaVersion)
	}

	return store, nil
}

func openDB(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		metadata_json TEXT
	);

	CREATE TABLE IF NOT EXISTS features (
		item_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		weight REAL NOT NULL,
		PRIMARY KEY (item_id, feature),
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
	CREATE INDEX IF NOT EXISTS idx_features_feature ON features(feature);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put stores a record, replacing its previous features
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("empty item id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE item_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear features: %w", err)
	}
	if err := insertRecords(ctx, tx, []Record{rec}); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceAll deletes every record and inserts recs in a single transaction
func (s *SQLiteStore) ReplaceAll(ctx context.Context, recs []Record) error {
	if err := checkIDs(recs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features`); err != nil {
		return fmt.Errorf("failed to clear features: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if err := insertRecords(ctx, tx, recs); err != nil {
		return err
	}

	return tx.Commit()
}

func insertRecords(ctx context.Context, tx *sql.Tx, recs []Record) error {
	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO items (id, title, source, mtime, metadata_json)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer itemStmt.Close()

	featureStmt, err := tx.PrepareContext(ctx, `INSERT INTO features (item_id, feature, weight) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer featureStmt.Close()

	for _, rec := range recs {
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
		}
		if _, err := itemStmt.ExecContext(ctx, rec.ID, rec.Title, rec.Source, rec.UpdatedAt.Unix(), string(metadataJSON)); err != nil {
			return fmt.Errorf("failed to write item %s: %w", rec.ID, err)
		}
		for feature, weight := range rec.Vector {
			if _, err := featureStmt.ExecContext(ctx, rec.ID, feature, weight); err != nil {
				return fmt.Errorf("failed to write feature %s of %s: %w", feature, rec.ID, err)
			}
		}
	}
	return nil
}

// Get returns the record with the given ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	var mtime int64
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, source, mtime, metadata_json FROM items WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &rec.Source, &mtime, &metadataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}

	rec.UpdatedAt = time.Unix(mtime, 0)
	if err := decodeMetadata(metadataJSON, &rec); err != nil {
		return Record{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT feature, weight FROM features WHERE item_id = ?`, id)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()

	rec.Vector = similarity.Vector{}
	for rows.Next() {
		var feature string
		var weight float64
		if err := rows.Scan(&feature, &weight); err != nil {
			return Record{}, err
		}
		rec.Vector[feature] = weight
	}

	return rec, rows.Err()
}

// Scan calls fn for every record in ID order. Records are read up front so
// fn may call back into the store.
func (s *SQLiteStore) Scan(ctx context.Context, fn func(Record) error) error {
	records, err := s.loadAll(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source, mtime, metadata_json FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}

	var records []Record
	index := make(map[string]int)
	for rows.Next() {
		var rec Record
		var mtime int64
		var metadataJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Source, &mtime, &metadataJSON); err != nil {
			rows.Close()
			return nil, err
		}
		rec.UpdatedAt = time.Unix(mtime, 0)
		if err := decodeMetadata(metadataJSON, &rec); err != nil {
			rows.Close()
			return nil, err
		}
		rec.Vector = similarity.Vector{}
		index[rec.ID] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	frows, err := s.db.QueryContext(ctx, `SELECT item_id, feature, weight FROM features`)
	if err != nil {
		return nil, err
	}
	defer frows.Close()

	for frows.Next() {
		var itemID, feature string
		var weight float64
		if err := frows.Scan(&itemID, &feature, &weight); err != nil {
			return nil, err
		}
		if i, ok := index[itemID]; ok {
			records[i].Vector[feature] = weight
		}
	}

	return records, frows.Err()
}

// Delete removes a record by ID
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM features WHERE item_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

// Clear removes all records
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM features`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM items`)
	return err
}

// Count returns the number of stored records
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// IsValid checks whether the stored items still match the catalog files.
// The string explains the first mismatch found.
func (s *SQLiteStore) IsValid(sources []SourceFile) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expected := make(map[string]time.Time, len(sources))
	for _, src := range sources {
		expected[src.Path] = src.UpdatedAt
	}

	rows, err := s.db.Query(`SELECT DISTINCT source, mtime FROM items`)
	if err != nil {
		return false, "failed to query items"
	}
	defer rows.Close()

	cached := make(map[string]bool)
	for rows.Next() {
		var source string
		var mtime int64
		if err := rows.Scan(&source, &mtime); err != nil {
			return false, "failed to read items"
		}
		cached[source] = true

		want, ok := expected[source]
		if !ok {
			return false, fmt.Sprintf("file deleted: %s", source)
		}
		if want.Unix() != mtime {
			return false, fmt.Sprintf("file modified: %s", source)
		}
	}

	for source := range expected {
		if !cached[source] {
			return false, fmt.Sprintf("new file added: %s", source)
		}
	}

	return true, ""
}

// MarkIndexed stamps a fresh index ID and time
func (s *SQLiteStore) MarkIndexed() error {
	if err := s.setMetadata("index_id", uuid.NewString()); err != nil {
		return err
	}
	return s.setMetadata("indexed_at", time.Now().Format(time.RFC3339Nano))
}

// Info returns the recorded index metadata
func (s *SQLiteStore) Info() (IndexInfo, error) {
	var info IndexInfo
	var err error

	if info.Version, err = s.getMetadata("version"); err != nil {
		return IndexInfo{}, err
	}
	if info.IndexID, err = s.getMetadata("index_id"); err != nil {
		return IndexInfo{}, err
	}

	indexedAt, err := s.getMetadata("indexed_at")
	if err != nil {
		return IndexInfo{}, err
	}
	if info.IndexedAt, err = time.Parse(time.RFC3339Nano, indexedAt); err != nil {
		return IndexInfo{}, fmt.Errorf("invalid indexed_at: %w", err)
	}

	return info, nil
}

// getMetadata retrieves a metadata value
func (s *SQLiteStore) getMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata key not found: %s", key)
	}
	return value, err
}

// setMetadata stores a metadata value
func (s *SQLiteStore) setMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

func decodeMetadata(raw sql.NullString, rec *Record) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), &rec.Metadata); err != nil {
		return fmt.Errorf("failed to decode metadata for %s: %w", rec.ID, err)
	}
	return nil
}
