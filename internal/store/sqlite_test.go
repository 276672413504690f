package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = ":memory:"
	s, err := OpenSQLite(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(id int64, chapter int, content string, embedding []float32) ChunkRecord {
	return ChunkRecord{
		ID:        id,
		ProjectID: "novel",
		Chapter:   chapter,
		Label:     "Chapter",
		Content:   content,
		Embedding: embedding,
	}
}

func TestQueryEmptyStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks, err := s.QueryChunks(ctx, "novel", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	summaries, err := s.QuerySummaries(ctx, "novel", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestQueryDegenerateInputs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks, err := s.QueryChunks(ctx, "novel", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.QueryChunks(ctx, "novel", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestUpsertIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := testChunk(1, 2, "Mara crossed the bridge.", []float32{1, 0, 0})

	report, err := s.UpsertChunks(ctx, []ChunkRecord{record})
	require.NoError(t, err)
	assert.Equal(t, UpsertReport{Inserted: 1}, report)

	record.Content = "Mara crossed the bridge at dusk."
	report, err = s.UpsertChunks(ctx, []ChunkRecord{record})
	require.NoError(t, err)
	assert.Equal(t, UpsertReport{Replaced: 1}, report)

	stats, err := s.Stats(ctx, "novel")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Chunks)

	hashes, err := s.ContentHashes(ctx, "novel", KindChunk)
	require.NoError(t, err)
	assert.Equal(t, HashContent("Mara crossed the bridge at dusk."), hashes[1])
}

func TestQueryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertChunks(ctx, []ChunkRecord{
		testChunk(1, 1, "exact match", []float32{1, 0, 0}),
		testChunk(2, 2, "unrelated", []float32{0, 1, 0}),
		testChunk(3, 3, "close match", []float32{0.9, 0.1, 0}),
	})
	require.NoError(t, err)

	got, err := s.QueryChunks(ctx, "novel", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact match", got[0].Content)
	assert.Equal(t, "close match", got[1].Content)
	assert.Less(t, got[0].Score, got[1].Score)
}

func TestQueryProjectIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	other := testChunk(1, 1, "another story entirely", []float32{1, 0, 0})
	other.ProjectID = "other"
	_, err := s.UpsertChunks(ctx, []ChunkRecord{other})
	require.NoError(t, err)

	got, err := s.QueryChunks(ctx, "novel", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummariesRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSummaries(ctx, []SummaryRecord{
		{ID: 1, ProjectID: "novel", Chapter: 1, Title: "Arrival", Summary: "Mara arrives.", Embedding: []float32{1, 0}},
		{ID: 2, ProjectID: "novel", Chapter: 2, Title: "Storm", Summary: "The storm breaks.", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)

	got, err := s.QuerySummaries(ctx, "novel", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Chapter)
	assert.Equal(t, "Storm", got[0].Title)
}

func TestDimensionMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = ":memory:"
	cfg.Dimension = 3
	s, err := OpenSQLite(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.UpsertChunks(context.Background(), []ChunkRecord{
		testChunk(1, 1, "short vector", []float32{1, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDeleteSelectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertChunks(ctx, []ChunkRecord{
		testChunk(1, 1, "one", []float32{1, 0}),
		testChunk(2, 2, "two", []float32{0, 1}),
		testChunk(3, 5, "five", []float32{1, 1}),
	})
	require.NoError(t, err)
	_, err = s.UpsertSummaries(ctx, []SummaryRecord{
		{ID: 1, ProjectID: "novel", Chapter: 1, Summary: "one", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)

	removed, err := s.Delete(ctx, "novel", ByIDs(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed) // only chunk 2; summaries has no id 2

	removed, err = s.Delete(ctx, "novel", ByChapterRange(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed) // chunk 1 plus summary 1

	removed, err = s.Delete(ctx, "novel", Everything())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed) // only chunk 3 remains

	_, err = s.Delete(ctx, "novel", Selector{})
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestSimilarityPathResolvesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.QueryChunks(ctx, "novel", []float32{1, 0}, 1)
	require.NoError(t, err)

	state := s.vecState.Load()
	assert.NotEqual(t, vecUnknown, state)

	_, err = s.QueryChunks(ctx, "novel", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, state, s.vecState.Load())
}
