package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-rag/internal/models"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, "b", []float32{0, 1}, models.Payload{Content: "b"}))
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, models.Payload{Content: "a"}))
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0.1}, models.Payload{Content: "a2"}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, s.Upserts())
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	hits, err := s.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a2", hits[0].Content)
}

func TestStoreFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetFailure(errors.New("down"))

	assert.False(t, s.Ready(ctx))
	assert.Error(t, s.Upsert(ctx, "a", []float32{1}, models.Payload{}))
	_, err := s.Search(ctx, []float32{1}, 3)
	assert.Error(t, err)

	s.SetFailure(nil)
	assert.True(t, s.Ready(ctx))
}

func TestHybridSearchBoostsKeywordMatches(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, "near", []float32{1, 0}, models.Payload{Content: "Unrelated shopping notes."}))
	require.NoError(t, s.Upsert(ctx, "far", []float32{0.6, 0.8}, models.Payload{Content: "Retinol dosage guidance."}))

	vectorOnly, err := s.HybridSearch(ctx, "retinol dosage?", []float32{1, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, vectorOnly, 2)
	assert.Equal(t, "near", vectorOnly[0].ID)

	hybrid, err := s.HybridSearch(ctx, "retinol dosage?", []float32{1, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, hybrid, 2)
	assert.Equal(t, "far", hybrid[0].ID)
	assert.InDelta(t, 1.1, hybrid[0].Score, 1e-6)
	assert.InDelta(t, 1.0, hybrid[1].Score, 1e-6)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"what", "retinol", "dose", "mean"}, queryTerms("What retinol dose? Retinol, I mean"))
	assert.Empty(t, queryTerms("a an ?"))
}
