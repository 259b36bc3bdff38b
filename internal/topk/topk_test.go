package topk

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeap(t *testing.T, capacity int) *BoundedTopK[string] {
	t.Helper()
	h, err := New[string](capacity)
	require.NoError(t, err)
	return h
}

func insertScores(t *testing.T, h *BoundedTopK[string], scores ...float64) {
	t.Helper()
	for _, s := range scores {
		_, err := h.Insert(ScoredItem[string]{Score: s})
		require.NoError(t, err)
	}
}

func drain(h *BoundedTopK[string]) []float64 {
	var out []float64
	for {
		item, ok := h.ExtractMin()
		if !ok {
			return out
		}
		out = append(out, item.Score)
	}
}

// assertHeap checks that every non-root item scores at least as high as its parent
func assertHeap(t *testing.T, h *BoundedTopK[string]) {
	t.Helper()
	for i := 1; i < h.count; i++ {
		parent := (i - 1) / 2
		if h.items[i].Score < h.items[parent].Score {
			t.Fatalf("heap order broken at %d: %v < parent %v", i, h.items[i].Score, h.items[parent].Score)
		}
	}
}

func TestNew(t *testing.T) {
	for _, capacity := range []int{0, -1, -20} {
		_, err := New[int](capacity)
		assert.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", capacity)
	}

	h, err := New[int](DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, h.Cap())
	assert.Equal(t, 0, h.Len())
	assert.True(t, h.IsEmpty())
	assert.False(t, h.IsFull())
}

func TestInsert_KeepsTopN(t *testing.T) {
	h := newHeap(t, 3)
	insertScores(t, h, 5, 1, 9, 3, 7)

	assert.Equal(t, 3, h.Len())
	assert.True(t, h.IsFull())

	held := make([]float64, 0, 3)
	for _, item := range h.Snapshot() {
		held = append(held, item.Score)
	}
	assert.ElementsMatch(t, []float64{5, 9, 7}, held)

	assert.Equal(t, []float64{5, 7, 9}, drain(h))
}

func TestInsert_AdmissionResult(t *testing.T) {
	h := newHeap(t, 2)

	tests := []struct {
		score    float64
		admitted bool
	}{
		{4, true},  // filling
		{2, true},  // filling, below current min is fine while not full
		{1, false}, // below min
		{2, false}, // equal to min: existing occupant wins
		{3, true},  // replaces 2
		{10, true}, // replaces 3
	}

	for _, tt := range tests {
		admitted, err := h.Insert(ScoredItem[string]{Score: tt.score})
		require.NoError(t, err)
		assert.Equal(t, tt.admitted, admitted, "score %v", tt.score)
		assertHeap(t, h)
	}

	assert.Equal(t, []float64{4, 10}, drain(h))
}

func TestInsert_EqualToMinimumKeepsOccupant(t *testing.T) {
	h := newHeap(t, 1)

	admitted, err := h.Insert(ScoredItem[string]{Payload: "first", Score: 0.5})
	require.NoError(t, err)
	require.True(t, admitted)

	admitted, err = h.Insert(ScoredItem[string]{Payload: "second", Score: 0.5})
	require.NoError(t, err)
	assert.False(t, admitted)

	root, ok := h.PeekMin()
	require.True(t, ok)
	assert.Equal(t, "first", root.Payload)
}

func TestInsert_RejectsInvalidScores(t *testing.T) {
	h := newHeap(t, 2)
	insertScores(t, h, 1)

	for _, score := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		admitted, err := h.Insert(ScoredItem[string]{Payload: "bad", Score: score})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.False(t, admitted)
	}

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, []float64{1}, drain(h))
}

func TestDiscard_DoesNotChangeState(t *testing.T) {
	h := newHeap(t, 3)
	insertScores(t, h, 0.4, 0.8, 0.6)

	before, ok := h.PeekMin()
	require.True(t, ok)

	for _, s := range []float64{0.4, 0.1, -3, 0.39} {
		admitted, err := h.Insert(ScoredItem[string]{Payload: "discarded", Score: s})
		require.NoError(t, err)
		assert.False(t, admitted)
		assert.Equal(t, 3, h.Len())

		after, ok := h.PeekMin()
		require.True(t, ok)
		assert.Equal(t, before, after)
	}

	for {
		item, ok := h.ExtractMin()
		if !ok {
			break
		}
		assert.NotEqual(t, "discarded", item.Payload)
	}
}

func TestExtractMin_Empty(t *testing.T) {
	h := newHeap(t, 4)

	item, ok := h.ExtractMin()
	assert.False(t, ok)
	assert.Equal(t, ScoredItem[string]{}, item)

	_, ok = h.PeekMin()
	assert.False(t, ok)
}

func TestExtractMin_DrainsEveryItemOnce(t *testing.T) {
	h := newHeap(t, 8)
	for i, s := range []float64{3, 1, 4, 1, 5, 9, 2, 6} {
		_, err := h.Insert(ScoredItem[string]{Payload: string(rune('a' + i)), Score: s})
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	prev := math.Inf(-1)
	for !h.IsEmpty() {
		item, ok := h.ExtractMin()
		require.True(t, ok)
		assert.False(t, seen[item.Payload], "payload %s returned twice", item.Payload)
		seen[item.Payload] = true
		assert.GreaterOrEqual(t, item.Score, prev)
		prev = item.Score
		assertHeap(t, h)
	}
	assert.Len(t, seen, 8)

	_, ok := h.ExtractMin()
	assert.False(t, ok)
}

func TestExtractMin_ReleasesPayload(t *testing.T) {
	h, err := New[*int](2)
	require.NoError(t, err)

	v := 7
	_, err = h.Insert(ScoredItem[*int]{Payload: &v, Score: 1})
	require.NoError(t, err)
	_, ok := h.ExtractMin()
	require.True(t, ok)

	assert.Nil(t, h.items[0].Payload)
}

func TestPeekMin(t *testing.T) {
	h := newHeap(t, 5)
	insertScores(t, h, 0.3, -0.2, 0.9)

	item, ok := h.PeekMin()
	require.True(t, ok)
	assert.Equal(t, -0.2, item.Score)
	assert.Equal(t, 3, h.Len())
}

func TestClear(t *testing.T) {
	h := newHeap(t, 2)
	insertScores(t, h, 5, 6, 7)

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.True(t, h.IsEmpty())
	_, ok := h.PeekMin()
	assert.False(t, ok)
	assert.Empty(t, h.Snapshot())

	fresh := newHeap(t, 2)
	for _, s := range []float64{1, 3, 2} {
		got, err := h.Insert(ScoredItem[string]{Score: s})
		require.NoError(t, err)
		want, err := fresh.Insert(ScoredItem[string]{Score: s})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, fresh.Snapshot(), h.Snapshot())
}

func TestSnapshot_IsDefensiveCopy(t *testing.T) {
	h := newHeap(t, 3)
	insertScores(t, h, 2, 1, 3)

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 1.0, snap[0].Score) // heap order: minimum first

	snap[0].Score = 100
	root, _ := h.PeekMin()
	assert.Equal(t, 1.0, root.Score)
}

func TestCapacityOne(t *testing.T) {
	h := newHeap(t, 1)
	insertScores(t, h, 3, 1, 8, 8, 2)

	assert.Equal(t, []float64{8}, drain(h))
}

func TestRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		capacity := 1 + rng.Intn(12)
		h := newHeap(t, capacity)

		n := capacity + rng.Intn(60)
		scores := make([]float64, n)
		for i := range scores {
			// small integer range forces plenty of ties
			scores[i] = float64(rng.Intn(20)) - 5
			_, err := h.Insert(ScoredItem[string]{Score: scores[i]})
			require.NoError(t, err)
			require.LessOrEqual(t, h.Len(), capacity)
			assertHeap(t, h)

			if rng.Intn(10) == 0 {
				h.ExtractMin()
				assertHeap(t, h)
			}
		}

		// rebuild from scratch without extractions to check top-N correctness
		h.Clear()
		insertScores(t, h, scores...)

		sorted := append([]float64(nil), scores...)
		sort.Float64s(sorted)
		want := sorted[len(sorted)-capacity:]

		assert.Equal(t, want, drain(h), "round %d", round)
	}
}
