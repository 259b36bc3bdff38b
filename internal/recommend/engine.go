// Package recommend ranks stored items by similarity to a query item or vector.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/config"
	"github.com/light-rec/lr-ibcf/internal/logging"
	"github.com/light-rec/lr-ibcf/internal/metrics"
	"github.com/light-rec/lr-ibcf/internal/similarity"
	"github.com/light-rec/lr-ibcf/internal/topk"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
)

// Candidate identifies a ranked item
type Candidate struct {
	ID    string
	Title string
}

// Match is one ranked item
type Match struct {
	Candidate
	Score float64
}

// Result holds the ranked items, best first, and how every candidate fared.
// Admitted counts candidates that entered the heap when offered, including
// ones later evicted by better candidates.
type Result struct {
	Items      []Match
	Considered int
	Admitted   int
	Rejected   int
	Skipped    int
}

// Options configures an Engine
type Options struct {
	Capacity      int                        // default limit; topk.DefaultCapacity when 0
	ZeroMagnitude config.ZeroMagnitudePolicy // skip when empty
	Scorer        similarity.Func            // similarity.Cosine when nil
	Logger        *zap.Logger
}

// Engine streams candidates from a store through a scorer into a bounded heap
type Engine struct {
	store    vectorstore.Store
	scorer   similarity.Func
	capacity int
	policy   config.ZeroMagnitudePolicy
	logger   *zap.Logger
}

// NewEngine creates an engine reading candidates from store
func NewEngine(store vectorstore.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	e := &Engine{
		store:    store,
		scorer:   opts.Scorer,
		capacity: opts.Capacity,
		policy:   opts.ZeroMagnitude,
		logger:   logging.OrNop(opts.Logger),
	}
	if e.scorer == nil {
		e.scorer = similarity.Cosine
	}
	if e.capacity == 0 {
		e.capacity = topk.DefaultCapacity
	}
	if e.capacity < 0 {
		return nil, fmt.Errorf("%w: %d", topk.ErrInvalidCapacity, e.capacity)
	}
	switch e.policy {
	case "":
		e.policy = config.ZeroMagnitudeSkip
	case config.ZeroMagnitudeSkip, config.ZeroMagnitudeZero:
	default:
		return nil, fmt.Errorf("unknown zero-magnitude policy: %q", e.policy)
	}

	return e, nil
}

// Capacity returns the default result limit
func (e *Engine) Capacity() int {
	return e.capacity
}

// Similar ranks every other stored item against itemID
func (e *Engine) Similar(ctx context.Context, itemID string, limit int) (*Result, error) {
	rec, err := e.store.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.rank(ctx, "item", rec.Vector, itemID, limit)
}

// Query ranks every stored item against an ad hoc vector
func (e *Engine) Query(ctx context.Context, vector similarity.Vector, limit int) (*Result, error) {
	return e.rank(ctx, "vector", vector, "", limit)
}

// Score returns the similarity of two stored items
func (e *Engine) Score(ctx context.Context, a, b string) (float64, error) {
	recA, err := e.store.Get(ctx, a)
	if err != nil {
		return 0, err
	}
	recB, err := e.store.Get(ctx, b)
	if err != nil {
		return 0, err
	}
	return e.scorer(recA.Vector, recB.Vector)
}

// Compare returns the similarity of two ad hoc vectors
func (e *Engine) Compare(a, b similarity.Vector) (float64, error) {
	return e.scorer(a, b)
}

func (e *Engine) rank(ctx context.Context, kind string, query similarity.Vector, exclude string, limit int) (*Result, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		return nil, err
	}
	// weights too small to square to a nonzero sum count as zero
	if similarity.Magnitude(query) == 0 {
		return nil, fmt.Errorf("query: %w", similarity.ErrZeroMagnitude)
	}

	if limit <= 0 {
		limit = e.capacity
	}
	heap, err := topk.New[Candidate](limit)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = e.store.Scan(ctx, func(rec vectorstore.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.ID == exclude {
			return nil
		}
		res.Considered++

		score, err := e.scorer(query, rec.Vector)
		if errors.Is(err, similarity.ErrZeroMagnitude) {
			if e.policy == config.ZeroMagnitudeSkip {
				res.Skipped++
				e.logger.Debug("recommend: skipping zero-magnitude item", zap.String("id", rec.ID))
				return nil
			}
			score, err = 0, nil
		}
		if err != nil {
			return fmt.Errorf("failed to score %s: %w", rec.ID, err)
		}

		admitted, err := heap.Insert(topk.ScoredItem[Candidate]{
			Payload: Candidate{ID: rec.ID, Title: rec.Title},
			Score:   score,
		})
		if err != nil {
			return fmt.Errorf("failed to rank %s: %w", rec.ID, err)
		}
		if admitted {
			res.Admitted++
		} else {
			res.Rejected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// ExtractMin yields ascending scores; fill from the back for best first
	res.Items = make([]Match, heap.Len())
	for i := len(res.Items) - 1; i >= 0; i-- {
		item, _ := heap.ExtractMin()
		res.Items[i] = Match{Candidate: item.Payload, Score: item.Score}
	}

	elapsed := time.Since(start)
	metrics.RecordQuery(kind, res.Admitted, res.Rejected, res.Skipped, elapsed)
	e.logger.Debug("recommend: ranked candidates",
		zap.String("kind", kind),
		zap.Int("limit", limit),
		zap.Int("considered", res.Considered),
		zap.Int("admitted", res.Admitted),
		zap.Int("rejected", res.Rejected),
		zap.Int("skipped", res.Skipped),
		zap.Int("returned", len(res.Items)),
		zap.Duration("elapsed", elapsed))

	return res, nil
}
