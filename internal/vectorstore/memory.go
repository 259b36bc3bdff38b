package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory vector store
type MemoryStore struct {
	records map[string]Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory vector store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put stores a copy of rec
func (m *MemoryStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("empty item id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns a copy of the record with the given ID
func (m *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneRecord(rec), nil
}

// Scan calls fn for every record in ID order. The store is not locked while
// fn runs, so fn may call back into the store.
func (m *MemoryStore) Scan(ctx context.Context, fn func(Record) error) error {
	m.mu.RLock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, cloneRecord(rec))
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

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

// ReplaceAll builds the new record set aside and swaps it in under the lock
func (m *MemoryStore) ReplaceAll(ctx context.Context, recs []Record) error {
	if err := checkIDs(recs); err != nil {
		return err
	}

	records := make(map[string]Record, len(recs))
	for _, rec := range recs {
		records[rec.ID] = cloneRecord(rec)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = records
	return nil
}

// Delete removes a record by ID
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// Clear removes all records
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]Record)
	return nil
}

// Count returns the number of stored records
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
