package chromemdb

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-rag/internal/models"
)

func newTestManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("", "test_collection", true, "")
	require.NoError(t, err)
	return m
}

func TestSearchEmptyCollection(t *testing.T) {
	m := newTestManager(t)

	hits, err := m.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertSearchCount(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.Upsert(ctx, "a.txt_0", []float32{1, 0, 0}, models.Payload{Content: "alpha", Filename: "a.txt", ChunkIndex: 0, TotalChunks: 2, TokenCount: 3}))
	require.NoError(t, m.Upsert(ctx, "a.txt_1", []float32{0, 1, 0}, models.Payload{Content: "beta", Filename: "a.txt", ChunkIndex: 1, TotalChunks: 2, TokenCount: 4}))

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := m.Search(ctx, []float32{0.1, 0.9, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.txt_1", hits[0].ID)
	assert.Equal(t, "beta", hits[0].Content)
	assert.Equal(t, "a.txt", hits[0].Filename)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.Equal(t, 4, hits[0].TokenCount)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestUpsertOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.Upsert(ctx, "doc_0", []float32{1, 0}, models.Payload{Content: "old"}))
	require.NoError(t, m.Upsert(ctx, "doc_0", []float32{0, 1}, models.Payload{Content: "new"}))

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := m.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Content)
}

func TestUpsertRequiresID(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Upsert(context.Background(), "", []float32{1}, models.Payload{Content: "x"}))
}

func TestPersistentDB(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewVectorDBManager(dir, "persisted", false, "")
	require.NoError(t, err)
	require.NoError(t, m.Upsert(ctx, "p_0", []float32{1, 0}, models.Payload{Content: "kept"}))

	reopened, err := NewVectorDBManager(dir, "persisted", false, "")
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, reopened.Ready(ctx))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestInMemoryWithoutKeyWarns(t *testing.T) {
	buf := captureLog(t)

	m, err := NewVectorDBManager(t.TempDir(), "volatile", true, "")
	require.NoError(t, err)

	assert.False(t, m.Durable())
	assert.Contains(t, buf.String(), "vectors will be lost on exit")
	assert.NoError(t, m.Close())
}

func TestDurableConfigurationsDoNotWarn(t *testing.T) {
	buf := captureLog(t)

	persistent, err := NewVectorDBManager(t.TempDir(), "disk", false, "")
	require.NoError(t, err)
	exported, err := NewVectorDBManager(t.TempDir(), "exported", true, strings.Repeat("k", 32))
	require.NoError(t, err)

	assert.True(t, persistent.Durable())
	assert.True(t, exported.Durable())
	assert.NotContains(t, buf.String(), "vectors will be lost on exit")
}
