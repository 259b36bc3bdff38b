// Package vectorstore keeps item feature vectors. It does not score them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/light-rec/lr-ibcf/internal/similarity"
)

// ErrNotFound is returned when no record has the requested ID
var ErrNotFound = errors.New("item not found")

// Store manages item vectors
type Store interface {
	// Put stores a record, replacing any record with the same ID
	Put(ctx context.Context, rec Record) error

	// Get returns the record with the given ID or ErrNotFound
	Get(ctx context.Context, id string) (Record, error)

	// Scan calls fn for every record in ID order. A non-nil error from fn
	// stops the scan and is returned.
	Scan(ctx context.Context, fn func(Record) error) error

	// ReplaceAll swaps the whole contents for recs in one step. Readers see
	// either the old records or the new ones, never a mix. On error the old
	// records are kept.
	ReplaceAll(ctx context.Context, recs []Record) error

	// Delete removes a record by ID
	Delete(ctx context.Context, id string) error

	// Clear removes all records
	Clear(ctx context.Context) error

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)

	// Close releases the store
	Close() error
}

// Record is one stored item
type Record struct {
	ID        string
	Title     string
	Source    string    // file the item was loaded from
	UpdatedAt time.Time // source modification time
	Vector    similarity.Vector
	Metadata  map[string]string
}

// SourceFile identifies a catalog file for cache validation
type SourceFile struct {
	Path      string
	UpdatedAt time.Time
}

func cloneRecord(rec Record) Record {
	out := rec
	out.Vector = rec.Vector.Clone()
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// checkIDs rejects empty and repeated IDs in a replacement set
func checkIDs(recs []Record) error {
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("empty item id")
		}
		if seen[rec.ID] {
			return fmt.Errorf("duplicate item id: %s", rec.ID)
		}
		seen[rec.ID] = true
	}
	return nil
}
