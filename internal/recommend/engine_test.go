package recommend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-rec/lr-ibcf/internal/config"
	"github.com/light-rec/lr-ibcf/internal/similarity"
	"github.com/light-rec/lr-ibcf/internal/topk"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
)

// ratings: a and b agree exactly, c is close, d shares no raters, e has no
// ratings, f is a's mirror image
func seedStore(t *testing.T) vectorstore.Store {
	t.Helper()
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	vectors := map[string]similarity.Vector{
		"a": {"u1": 5, "u2": 3},
		"b": {"u1": 5, "u2": 3},
		"c": {"u1": 3, "u2": 5},
		"d": {"u3": 4},
		"e": {},
		"f": {"u1": -5, "u2": -3},
	}
	for id, v := range vectors {
		require.NoError(t, store.Put(ctx, vectorstore.Record{ID: id, Title: "Item " + id, Vector: v}))
	}
	return store
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	engine, err := NewEngine(seedStore(t), opts)
	require.NoError(t, err)
	return engine
}

func ids(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func TestNewEngine_Defaults(t *testing.T) {
	engine, err := NewEngine(vectorstore.NewMemoryStore(), Options{})
	require.NoError(t, err)
	assert.Equal(t, topk.DefaultCapacity, engine.Capacity())
	assert.Equal(t, config.ZeroMagnitudeSkip, engine.policy)
}

func TestNewEngine_Invalid(t *testing.T) {
	_, err := NewEngine(nil, Options{})
	assert.Error(t, err)

	_, err = NewEngine(vectorstore.NewMemoryStore(), Options{Capacity: -1})
	assert.ErrorIs(t, err, topk.ErrInvalidCapacity)

	_, err = NewEngine(vectorstore.NewMemoryStore(), Options{ZeroMagnitude: "sometimes"})
	assert.Error(t, err)
}

func TestSimilar_RanksBestFirst(t *testing.T) {
	engine := newEngine(t, Options{})

	res, err := engine.Similar(context.Background(), "a", 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d"}, ids(res.Items))
	assert.InDelta(t, 1.0, res.Items[0].Score, 1e-9)
	assert.InDelta(t, 30.0/34.0, res.Items[1].Score, 1e-9)
	assert.Equal(t, 0.0, res.Items[2].Score)
	assert.Equal(t, "Item b", res.Items[0].Title)

	assert.Equal(t, 5, res.Considered)
	assert.Equal(t, 3, res.Admitted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Skipped)
}

func TestSimilar_ExcludesSelf(t *testing.T) {
	engine := newEngine(t, Options{})

	res, err := engine.Similar(context.Background(), "a", 10)
	require.NoError(t, err)

	assert.NotContains(t, ids(res.Items), "a")
	assert.Equal(t, []string{"b", "c", "d", "f"}, ids(res.Items))
	assert.InDelta(t, -1.0, res.Items[3].Score, 1e-9)
}

func TestSimilar_ZeroMagnitudeScoredAsZero(t *testing.T) {
	engine := newEngine(t, Options{ZeroMagnitude: config.ZeroMagnitudeZero})

	res, err := engine.Similar(context.Background(), "a", 3)
	require.NoError(t, err)

	// e ties d at 0 and arrives after the heap is full, so it stays out
	assert.Equal(t, []string{"b", "c", "d"}, ids(res.Items))
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 2, res.Rejected)

	res, err = engine.Similar(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c", "d", "e", "f"}, ids(res.Items))
}

func TestSimilar_DefaultLimit(t *testing.T) {
	engine := newEngine(t, Options{Capacity: 2})

	for _, limit := range []int{0, -3} {
		res, err := engine.Similar(context.Background(), "a", limit)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(res.Items))
	}
}

func TestSimilar_UnknownItem(t *testing.T) {
	engine := newEngine(t, Options{})

	_, err := engine.Similar(context.Background(), "zzz", 3)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestSimilar_ZeroMagnitudeQuery(t *testing.T) {
	for _, policy := range []config.ZeroMagnitudePolicy{config.ZeroMagnitudeSkip, config.ZeroMagnitudeZero} {
		engine := newEngine(t, Options{ZeroMagnitude: policy})

		_, err := engine.Similar(context.Background(), "e", 3)
		assert.ErrorIs(t, err, similarity.ErrZeroMagnitude, string(policy))
	}
}

func TestQuery_UnderflowingVectorIsZeroMagnitude(t *testing.T) {
	for _, policy := range []config.ZeroMagnitudePolicy{config.ZeroMagnitudeSkip, config.ZeroMagnitudeZero} {
		engine := newEngine(t, Options{ZeroMagnitude: policy})

		_, err := engine.Query(context.Background(), similarity.Vector{"u1": 1e-200}, 3)
		assert.ErrorIs(t, err, similarity.ErrZeroMagnitude, string(policy))
	}
}

func TestSimilar_Cancelled(t *testing.T) {
	engine := newEngine(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Similar(ctx, "a", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery(t *testing.T) {
	engine := newEngine(t, Options{})

	res, err := engine.Query(context.Background(), similarity.Vector{"u3": 1}, 1)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "d", res.Items[0].ID)
	assert.InDelta(t, 1.0, res.Items[0].Score, 1e-9)

	// nothing to exclude, so both a and b are candidates
	res, err = engine.Query(context.Background(), similarity.Vector{"u1": 5, "u2": 3}, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(res.Items))
	assert.Equal(t, 6, res.Considered)
}

func TestQuery_InvalidVector(t *testing.T) {
	engine := newEngine(t, Options{})

	_, err := engine.Query(context.Background(), similarity.Vector{}, 3)
	assert.ErrorIs(t, err, similarity.ErrZeroMagnitude)
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)

	_, err = engine.Query(context.Background(), similarity.Vector{"u1": nan()}, 3)
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)
}

func TestScore(t *testing.T) {
	engine := newEngine(t, Options{})
	ctx := context.Background()

	score, err := engine.Score(ctx, "a", "f")
	require.NoError(t, err)
	assert.InDelta(t, -1.0, score, 1e-9)

	_, err = engine.Score(ctx, "a", "e")
	assert.ErrorIs(t, err, similarity.ErrZeroMagnitude)

	_, err = engine.Score(ctx, "a", "zzz")
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestCustomScorer(t *testing.T) {
	// rank by raw dot product instead of cosine
	dot := func(a, b similarity.Vector) (float64, error) {
		return similarity.Dot(a, b), nil
	}
	engine := newEngine(t, Options{Scorer: dot})

	res, err := engine.Similar(context.Background(), "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(res.Items))
	assert.Equal(t, 34.0, res.Items[0].Score)

	score, err := engine.Compare(similarity.Vector{"x": 2}, similarity.Vector{"x": 3})
	require.NoError(t, err)
	assert.Equal(t, 6.0, score)
}
