// Package config loads loom's configuration from defaults overlaid with
// LOOM_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// StoreConfig selects and tunes the vector store backend.
type StoreConfig struct {
	// Backend is "sqlite" or "milvus".
	Backend string `koanf:"backend"`
	// Path is the SQLite database file.
	Path string `koanf:"path"`
	// MilvusAddress is used when Backend is "milvus".
	MilvusAddress string `koanf:"milvus_address"`
}

// EmbedderConfig configures the OpenAI embedder.
type EmbedderConfig struct {
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
}

// RetrievalConfig tunes retrieval and temporal re-ranking.
type RetrievalConfig struct {
	TopKChunks          int     `koanf:"top_k_chunks"`
	TopKSummaries       int     `koanf:"top_k_summaries"`
	CandidateMultiplier int     `koanf:"candidate_multiplier"`
	SimilarityWeight    float64 `koanf:"similarity_weight"`
	RecencyWeight       float64 `koanf:"recency_weight"`
	DecayFactor         float64 `koanf:"decay_factor"`
	NearbyRange         int     `koanf:"nearby_range"`
	NearbyBonus         float64 `koanf:"nearby_bonus"`
	MaxEntityQueries    int     `koanf:"max_entity_queries"`
	MaxThreadQueries    int     `koanf:"max_thread_queries"`
}

// ContextConfig tunes context assembly and compression.
type ContextConfig struct {
	MaxContextTokens int     `koanf:"max_context_tokens"`
	CharsPerToken    float64 `koanf:"chars_per_token"`
	MustHaveRatio    float64 `koanf:"must_have_ratio"`
	ImportantRatio   float64 `koanf:"important_ratio"`
	ReferenceRatio   float64 `koanf:"reference_ratio"`
	// TokenCounter is "estimate" or "tiktoken".
	TokenCounter string `koanf:"token_counter"`
}

// Config is the full loom configuration surface.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Context   ContextConfig   `koanf:"context"`
	LogLevel  string          `koanf:"log_level"`
	LogDev    bool            `koanf:"log_dev"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:       "sqlite",
			Path:          "loom.db",
			MilvusAddress: "localhost:19530",
		},
		Embedder: EmbedderConfig{
			Model:     "text-embedding-3-large",
			Dimension: 3072,
		},
		Retrieval: RetrievalConfig{
			TopKChunks:          5,
			TopKSummaries:       3,
			CandidateMultiplier: 3,
			SimilarityWeight:    0.7,
			RecencyWeight:       0.3,
			DecayFactor:         3.0,
			NearbyRange:         2,
			NearbyBonus:         0.1,
			MaxEntityQueries:    3,
			MaxThreadQueries:    2,
		},
		Context: ContextConfig{
			MaxContextTokens: 4000,
			CharsPerToken:    4.0,
			MustHaveRatio:    0.45,
			ImportantRatio:   0.35,
			ReferenceRatio:   0.20,
			TokenCounter:     "estimate",
		},
		LogLevel: "info",
	}
}

const envPrefix = "LOOM_"

// sections are the config groups an env var may address; anything else is a
// top-level key. Keys themselves may contain underscores, so splitting on
// the first underscore alone would mangle LOOM_LOG_LEVEL.
var sections = []string{"store", "embedder", "retrieval", "context"}

// Load returns the defaults overlaid with LOOM_-prefixed environment
// variables. LOOM_RETRIEVAL_TOP_K_CHUNKS=8 sets retrieval.top_k_chunks.
func Load() (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		for _, sec := range sections {
			if strings.HasPrefix(s, sec+"_") {
				return sec + "." + strings.TrimPrefix(s, sec+"_")
			}
		}
		return s
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("load environment config: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
