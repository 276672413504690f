package rag

import (
	"fmt"
	"math"
	"sort"

	"github.com/inkwell-labs/loom/internal/store"
)

// ScoredChunk wraps a retrieved chunk with its temporal re-scoring. The
// embedded Score field holds the final combined score (higher = better);
// the raw similarity survives in Similarity and under the
// "original_similarity" metadata key for diagnostics.
type ScoredChunk struct {
	store.RetrievedChunk
	Similarity    float64 `json:"similarity"`
	TemporalScore float64 `json:"temporal_score"`
	FinalScore    float64 `json:"final_score"`
}

// ScoredSummary is the summary variant of ScoredChunk.
type ScoredSummary struct {
	store.RetrievedSummary
	Similarity    float64 `json:"similarity"`
	TemporalScore float64 `json:"temporal_score"`
	FinalScore    float64 `json:"final_score"`
}

// RerankerConfig tunes the recency/locality relevance model.
type RerankerConfig struct {
	// SimilarityWeight and RecencyWeight are normalized to sum to 1 at
	// construction time.
	SimilarityWeight float64
	RecencyWeight    float64

	// DecayFactor controls how fast temporal relevance falls off with
	// chapter distance.
	DecayFactor float64

	// NearbyRange and NearbyBonus boost candidates within a few chapters
	// of the target.
	NearbyRange int
	NearbyBonus float64

	// CandidateMultiplier determines how many raw candidates to over-fetch
	// per requested result, to give the re-ordering room to work.
	CandidateMultiplier int
}

// DefaultRerankerConfig returns the tuned defaults.
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		SimilarityWeight:    0.7,
		RecencyWeight:       0.3,
		DecayFactor:         3.0,
		NearbyRange:         2,
		NearbyBonus:         0.1,
		CandidateMultiplier: 3,
	}
}

// TemporalReranker re-scores raw similarity candidates against a target
// chapter, combining semantic similarity with recency and locality.
type TemporalReranker struct {
	cfg RerankerConfig
}

// NewTemporalReranker builds a re-ranker, normalizing the score weights.
func NewTemporalReranker(cfg RerankerConfig) *TemporalReranker {
	sum := cfg.SimilarityWeight + cfg.RecencyWeight
	if sum <= 0 {
		def := DefaultRerankerConfig()
		cfg.SimilarityWeight = def.SimilarityWeight
		cfg.RecencyWeight = def.RecencyWeight
	} else if sum != 1 {
		cfg.SimilarityWeight /= sum
		cfg.RecencyWeight /= sum
	}
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 1
	}
	return &TemporalReranker{cfg: cfg}
}

// FetchK returns how many raw candidates should be requested from the store
// for a desired topK.
func (r *TemporalReranker) FetchK(topK int) int {
	return topK * r.cfg.CandidateMultiplier
}

// scores holds the per-candidate result of the relevance model.
type scores struct {
	similarity float64
	temporal   float64
	final      float64
}

// score applies the relevance model to one candidate. Candidates at or after
// the target chapter are rejected outright: retrieval must never leak future
// content into the context.
func (r *TemporalReranker) score(chapter, targetChapter, totalChapters int, distance float64) (scores, bool) {
	if chapter >= targetChapter {
		return scores{}, false
	}

	sim := 1 - distance
	if sim < 0 {
		sim = 0
	}

	temporal := 1.0
	if totalChapters > 1 {
		span := float64(targetChapter - 1)
		if span < 1 {
			span = 1
		}
		temporal = math.Exp(-r.cfg.DecayFactor * float64(targetChapter-chapter) / span)
	}

	final := sim*r.cfg.SimilarityWeight + temporal*r.cfg.RecencyWeight

	if gap := targetChapter - chapter; r.cfg.NearbyRange > 0 && gap <= r.cfg.NearbyRange {
		final += r.cfg.NearbyBonus * (1 - float64(gap-1)/float64(r.cfg.NearbyRange))
		if final > 1 {
			final = 1
		}
	}

	return scores{similarity: sim, temporal: temporal, final: final}, true
}

// RerankChunks re-scores candidates and returns the top topK by final score,
// descending. If every candidate is at or after the target chapter the
// result is empty; there is no fallback to unfiltered candidates.
func (r *TemporalReranker) RerankChunks(candidates []store.RetrievedChunk, targetChapter, totalChapters, topK int) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		sc, ok := r.score(c.Chapter, targetChapter, totalChapters, float64(c.Score))
		if !ok {
			continue
		}
		scored := ScoredChunk{
			RetrievedChunk: c,
			Similarity:     sc.similarity,
			TemporalScore:  sc.temporal,
			FinalScore:     sc.final,
		}
		if scored.Metadata == nil {
			scored.Metadata = make(map[string]string, 1)
		}
		scored.Metadata["original_similarity"] = fmt.Sprintf("%.6f", sc.similarity)
		scored.Score = float32(sc.final)
		out = append(out, scored)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// RerankSummaries is RerankChunks for summary candidates.
func (r *TemporalReranker) RerankSummaries(candidates []store.RetrievedSummary, targetChapter, totalChapters, topK int) []ScoredSummary {
	out := make([]ScoredSummary, 0, len(candidates))
	for _, c := range candidates {
		sc, ok := r.score(c.Chapter, targetChapter, totalChapters, float64(c.Score))
		if !ok {
			continue
		}
		scored := ScoredSummary{
			RetrievedSummary: c,
			Similarity:       sc.similarity,
			TemporalScore:    sc.temporal,
			FinalScore:       sc.final,
		}
		scored.Score = float32(sc.final)
		out = append(out, scored)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
