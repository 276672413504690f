package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"zero query", []float32{0, 0}, []float32{1, 2}, 1},
		{"zero stored", []float32{1, 2}, []float32{0, 0}, 1},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineDistance(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineDistanceScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	b := []float32{0.6, 1.4, 0.2} // a scaled by 2
	assert.InDelta(t, 0, cosineDistance(a, b), 1e-6)
}

func TestSortAndTruncate(t *testing.T) {
	rows := []fallbackRow{
		{id: 3, distance: 0.5},
		{id: 1, distance: 0.2},
		{id: 2, distance: 0.5},
		{id: 4, distance: 0.1},
	}

	got := sortAndTruncate(rows, 3)

	assert.Len(t, got, 3)
	assert.Equal(t, int64(4), got[0].id)
	assert.Equal(t, int64(1), got[1].id)
	// Equal distances break ties by id, matching the native SQL ordering.
	assert.Equal(t, int64(2), got[2].id)
}

func TestSortAndTruncateShortInput(t *testing.T) {
	rows := []fallbackRow{{id: 1, distance: 0.3}}
	assert.Len(t, sortAndTruncate(rows, 10), 1)
}

// The fallback scan must rank identically to the native distance function:
// same data in two stores, one pinned to the fallback path, same order out.
func TestFallbackOrderMatchesNative(t *testing.T) {
	ctx := context.Background()

	chunks := []ChunkRecord{
		testChunk(1, 1, "exact match", []float32{1, 0, 0}),
		testChunk(2, 2, "orthogonal", []float32{0, 1, 0}),
		testChunk(3, 3, "close match", []float32{0.9, 0.1, 0}),
		testChunk(4, 4, "opposite", []float32{-1, 0, 0}),
		// Same embedding as chunk 3: ties must break by id on both paths.
		testChunk(5, 5, "close match twin", []float32{0.9, 0.1, 0}),
	}
	summaries := []SummaryRecord{
		{ID: 1, ProjectID: "novel", Chapter: 1, Summary: "arrival", Embedding: []float32{1, 0, 0}},
		{ID: 2, ProjectID: "novel", Chapter: 2, Summary: "storm", Embedding: []float32{0, 1, 0}},
		{ID: 3, ProjectID: "novel", Chapter: 3, Summary: "crossing", Embedding: []float32{0.5, 0.5, 0}},
	}

	native := newTestStore(t)
	fallback := newTestStore(t)
	fallback.vecState.Store(vecFallback)

	for _, s := range []*SQLiteStore{native, fallback} {
		_, err := s.UpsertChunks(ctx, chunks)
		require.NoError(t, err)
		_, err = s.UpsertSummaries(ctx, summaries)
		require.NoError(t, err)
	}

	query := []float32{0.8, 0.2, 0}

	nc, err := native.QueryChunks(ctx, "novel", query, len(chunks))
	require.NoError(t, err)
	fc, err := fallback.QueryChunks(ctx, "novel", query, len(chunks))
	require.NoError(t, err)
	require.Len(t, fc, len(nc))
	for i := range nc {
		assert.Equal(t, nc[i].Content, fc[i].Content, "rank %d", i)
		assert.InDelta(t, nc[i].Score, fc[i].Score, 1e-4)
	}

	ns, err := native.QuerySummaries(ctx, "novel", query, len(summaries))
	require.NoError(t, err)
	fs, err := fallback.QuerySummaries(ctx, "novel", query, len(summaries))
	require.NoError(t, err)
	require.Len(t, fs, len(ns))
	for i := range ns {
		assert.Equal(t, ns[i].Summary, fs[i].Summary, "rank %d", i)
		assert.InDelta(t, ns[i].Score, fs[i].Score, 1e-4)
	}
}
