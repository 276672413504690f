package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inkwell-labs/loom/internal/store"
)

// RetrieverConfig bounds the retrieval result sizes.
type RetrieverConfig struct {
	TopKChunks    int
	TopKSummaries int
}

// DefaultRetrieverConfig returns the tuned defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopKChunks:    5,
		TopKSummaries: 3,
	}
}

// Result carries everything one retrieval produced. A missing or degraded
// retrieval is reported through Reason with empty slices, never through an
// error: generation proceeds regardless.
type Result struct {
	Chunks    []ScoredChunk   `json:"chunks"`
	Summaries []ScoredSummary `json:"summaries"`
	Reason    string          `json:"reason,omitempty"` // non-empty when retrieval was skipped or degraded
}

// Retriever runs the multi-query retrieval flow: embed the enhanced query,
// over-fetch similarity candidates per query text, merge, then re-rank
// temporally against the target chapter.
type Retriever struct {
	embedder Embedder
	store    store.VectorStore
	reranker *TemporalReranker
	cfg      RetrieverConfig
	log      *zap.Logger
}

// NewRetriever creates a new Retriever. The embedder may be nil, in which
// case every retrieval degrades to an empty result with a reason; the store
// and re-ranker are required.
func NewRetriever(embedder Embedder, vs store.VectorStore, reranker *TemporalReranker, cfg RetrieverConfig, log *zap.Logger) (*Retriever, error) {
	if vs == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if reranker == nil {
		return nil, fmt.Errorf("reranker cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultRetrieverConfig()
	if cfg.TopKChunks <= 0 {
		cfg.TopKChunks = def.TopKChunks
	}
	if cfg.TopKSummaries <= 0 {
		cfg.TopKSummaries = def.TopKSummaries
	}
	return &Retriever{
		embedder: embedder,
		store:    vs,
		reranker: reranker,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Retrieve embeds the query set and returns re-ranked chunks and summaries
// for the target chapter. It never returns an error for missing or degraded
// retrieval; the Result's Reason field says why a result is empty.
func (r *Retriever) Retrieve(ctx context.Context, projectID string, q EnhancedQuery, targetChapter, totalChapters int) Result {
	if r.embedder == nil {
		return Result{
			Chunks:    []ScoredChunk{},
			Summaries: []ScoredSummary{},
			Reason:    "embedding is not configured; retrieval skipped",
		}
	}

	texts := q.AllQueries()
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		r.log.Warn("query embedding failed, proceeding without retrieval", zap.Error(err))
		return Result{
			Chunks:    []ScoredChunk{},
			Summaries: []ScoredSummary{},
			Reason:    "query embedding failed: " + err.Error(),
		}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Result{
			Chunks:    []ScoredChunk{},
			Summaries: []ScoredSummary{},
			Reason:    "embedder produced no query vector; retrieval skipped",
		}
	}

	var (
		rawChunks     []store.RetrievedChunk
		rawSummaries  []store.RetrievedSummary
		chunkReason   string
		summaryReason string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chunks, err := r.fetchChunks(gctx, projectID, vectors)
		if err != nil {
			r.log.Warn("chunk retrieval degraded", zap.String("project", projectID), zap.Error(err))
			chunkReason = "chunk retrieval failed: " + err.Error()
			return nil
		}
		rawChunks = chunks
		return nil
	})
	g.Go(func() error {
		fetchK := r.reranker.FetchK(r.cfg.TopKSummaries)
		summaries, err := r.store.QuerySummaries(gctx, projectID, vectors[0], fetchK)
		if err != nil {
			r.log.Warn("summary retrieval degraded", zap.String("project", projectID), zap.Error(err))
			summaryReason = "summary retrieval failed: " + err.Error()
			return nil
		}
		rawSummaries = summaries
		return nil
	})
	_ = g.Wait()

	result := Result{
		Chunks:    r.reranker.RerankChunks(rawChunks, targetChapter, totalChapters, r.cfg.TopKChunks),
		Summaries: r.reranker.RerankSummaries(rawSummaries, targetChapter, totalChapters, r.cfg.TopKSummaries),
	}
	switch {
	case chunkReason != "" && summaryReason != "":
		result.Reason = chunkReason + "; " + summaryReason
	case chunkReason != "":
		result.Reason = chunkReason
	case summaryReason != "":
		result.Reason = summaryReason
	}
	return result
}

// fetchChunks runs one store query per query vector and merges the results,
// keeping the best (lowest) distance for each distinct chunk.
func (r *Retriever) fetchChunks(ctx context.Context, projectID string, vectors [][]float32) ([]store.RetrievedChunk, error) {
	fetchK := r.reranker.FetchK(r.cfg.TopKChunks)
	best := make(map[string]store.RetrievedChunk)

	for _, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		chunks, err := r.store.QueryChunks(ctx, projectID, vec, fetchK)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			key := fmt.Sprintf("%d|%s|%s", c.Chapter, c.Label, store.HashContent(c.Content))
			if prev, ok := best[key]; !ok || c.Score < prev.Score {
				best[key] = c
			}
		}
	}

	merged := make([]store.RetrievedChunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	return merged, nil
}
