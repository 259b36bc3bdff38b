// Package topk keeps the N highest-scoring items seen from a stream.
package topk

import (
	"errors"
	"fmt"
	"math"
)

// DefaultCapacity is the number of items kept when no capacity is configured
const DefaultCapacity = 20

var (
	// ErrInvalidCapacity is returned by New for a capacity below 1
	ErrInvalidCapacity = errors.New("capacity must be positive")

	// ErrInvalidInput is returned by Insert for a NaN or infinite score
	ErrInvalidInput = errors.New("invalid input")
)

// ScoredItem pairs an opaque payload with the score it is ranked by
type ScoredItem[T any] struct {
	Payload T
	Score   float64
}

// BoundedTopK is a fixed-capacity min-heap. The root always holds the weakest
// of the retained items, so a new item only has to beat the root to get in.
//
// It does no locking; callers serialize access.
type BoundedTopK[T any] struct {
	items []ScoredItem[T] // len(items) == capacity, never resized
	count int
}

// New creates an empty BoundedTopK that retains at most capacity items
func New[T any](capacity int) (*BoundedTopK[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &BoundedTopK[T]{
		items: make([]ScoredItem[T], capacity),
	}, nil
}

// Insert offers an item. It reports whether the item was admitted; an item
// that cannot be among the top N is discarded without error. Once full, an
// item must score strictly higher than the current minimum to be admitted.
func (b *BoundedTopK[T]) Insert(item ScoredItem[T]) (bool, error) {
	if math.IsNaN(item.Score) || math.IsInf(item.Score, 0) {
		return false, fmt.Errorf("%w: score %v", ErrInvalidInput, item.Score)
	}

	if b.count < len(b.items) {
		b.items[b.count] = item
		b.count++
		b.siftUp(b.count - 1)
		return true, nil
	}

	if item.Score <= b.items[0].Score {
		return false, nil
	}
	b.items[0] = item
	b.siftDown(0)
	return true, nil
}

// ExtractMin removes and returns the lowest-scoring item.
// The boolean is false when there is nothing to extract.
func (b *BoundedTopK[T]) ExtractMin() (ScoredItem[T], bool) {
	if b.count == 0 {
		return ScoredItem[T]{}, false
	}

	root := b.items[0]
	last := b.count - 1
	b.swap(0, last)
	b.items[last] = ScoredItem[T]{} // drop the payload reference
	b.count--
	if b.count > 0 {
		b.siftDown(0)
	}
	return root, true
}

// PeekMin returns the lowest-scoring item without removing it
func (b *BoundedTopK[T]) PeekMin() (ScoredItem[T], bool) {
	if b.count == 0 {
		return ScoredItem[T]{}, false
	}
	return b.items[0], true
}

// Len returns the number of items held
func (b *BoundedTopK[T]) Len() int {
	return b.count
}

// Cap returns the maximum number of items held
func (b *BoundedTopK[T]) Cap() int {
	return len(b.items)
}

// IsEmpty reports whether no items are held
func (b *BoundedTopK[T]) IsEmpty() bool {
	return b.count == 0
}

// IsFull reports whether the next insert has to compete with the minimum
func (b *BoundedTopK[T]) IsFull() bool {
	return b.count == len(b.items)
}

// Clear empties the heap. Stale slots are overwritten by later inserts.
func (b *BoundedTopK[T]) Clear() {
	b.count = 0
}

// Snapshot returns a copy of the held items in heap order, not sorted by score
func (b *BoundedTopK[T]) Snapshot() []ScoredItem[T] {
	out := make([]ScoredItem[T], b.count)
	copy(out, b.items[:b.count])
	return out
}

func (b *BoundedTopK[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if b.items[i].Score >= b.items[parent].Score {
			return
		}
		b.swap(i, parent)
		i = parent
	}
}

// siftDown restores the heap below i. It is shared by Insert (root
// replacement) and ExtractMin. On ties the current smallest is kept.
func (b *BoundedTopK[T]) siftDown(i int) {
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < b.count && b.items[left].Score < b.items[smallest].Score {
			smallest = left
		}
		if right < b.count && b.items[right].Score < b.items[smallest].Score {
			smallest = right
		}
		if smallest == i {
			return
		}
		b.swap(i, smallest)
		i = smallest
	}
}

func (b *BoundedTopK[T]) swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
}
