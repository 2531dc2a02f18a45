package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.RAG.ChunkSize)
	assert.Equal(t, DefaultMaxSources, cfg.RAG.MaxSources)
	assert.True(t, *cfg.RAG.RankSources)
	assert.Equal(t, DefaultDimension, cfg.EmbedLLM.Dimension)
	assert.Equal(t, "chromem", cfg.VectorStore.Backend)
	assert.Equal(t, DefaultCollection, cfg.VectorStore.Collection)
	assert.Equal(t, DefaultScanInterval, cfg.Indexer.Interval)
	assert.Equal(t, DefaultMaxMessages, cfg.Session.MaxMessages)
	assert.Equal(t, "model", cfg.Retrieval.Strategy)
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
rag:
  chunk_size: 128
  rank_sources: false
vector_store:
  backend: qdrant
indexer:
  interval: 5s
  extensions: [".txt"]
retrieval:
  strategy: heuristic
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.RAG.ChunkSize)
	assert.False(t, *cfg.RAG.RankSources)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, 5*time.Second, cfg.Indexer.Interval)
	assert.Equal(t, []string{".txt"}, cfg.Indexer.Extensions)
	assert.Equal(t, "heuristic", cfg.Retrieval.Strategy)
	assert.Equal(t, DefaultTopK, cfg.RAG.TopK)
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [unterminated"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
