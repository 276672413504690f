package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopKChunks)
	assert.Equal(t, 3, cfg.Retrieval.TopKSummaries)
	assert.Equal(t, 0.7, cfg.Retrieval.SimilarityWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.RecencyWeight)
	assert.Equal(t, 4000, cfg.Context.MaxContextTokens)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOOM_RETRIEVAL_TOP_K_CHUNKS", "8")
	t.Setenv("LOOM_STORE_BACKEND", "milvus")
	t.Setenv("LOOM_STORE_MILVUS_ADDRESS", "milvus:19530")
	t.Setenv("LOOM_CONTEXT_MAX_CONTEXT_TOKENS", "2500")
	t.Setenv("LOOM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Retrieval.TopKChunks)
	assert.Equal(t, "milvus", cfg.Store.Backend)
	assert.Equal(t, "milvus:19530", cfg.Store.MilvusAddress)
	assert.Equal(t, 2500, cfg.Context.MaxContextTokens)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched values keep their defaults.
	assert.Equal(t, 3, cfg.Retrieval.TopKSummaries)
}
