// Package vectorstore defines the vector store contract and opens the configured backend.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"personal-rag/internal/chromemdb"
	"personal-rag/internal/config"
	"personal-rag/internal/db"
	"personal-rag/internal/models"
	"personal-rag/internal/vectorstore/memory"
	"personal-rag/internal/vectorstore/qdrant"
)

// Store persists vectors with their payload and answers nearest-neighbour queries.
// Upsert overwrites whatever is stored under the same id.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, payload models.Payload) error
	Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Ready(ctx context.Context) bool
	Close() error
}

// KeywordSearcher is implemented by stores that can add keyword matches on
// the chunk text to the vector ranking. A chunk that matches the query terms
// can outrank a closer vector.
type KeywordSearcher interface {
	HybridSearch(ctx context.Context, query string, vector []float32, k int, keywordWeight float64) ([]models.SearchResult, error)
}

var (
	ErrUnknownBackend    = errors.New("unknown vector store backend")
	ErrDimensionMismatch = errors.New("embedding dimension not supported by backend")
)

var (
	_ Store = (*chromemdb.VectorDBManager)(nil)
	_ Store = (*db.Store)(nil)
	_ Store = (*qdrant.Storage)(nil)
	_ Store = (*memory.Store)(nil)

	_ KeywordSearcher = (*db.Store)(nil)
	_ KeywordSearcher = (*memory.Store)(nil)
)

// Open connects to the backend named in cfg.VectorStore.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	vs := cfg.VectorStore
	log.Info().Str("backend", vs.Backend).Str("collection", vs.Collection).Msg("Opening vector store")

	switch vs.Backend {
	case "chromem":
		m, err := chromemdb.NewVectorDBManager(vs.Path, vs.Collection, vs.InMemory, vs.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "postgres":
		if cfg.EmbedLLM.Dimension != db.Dimension {
			return nil, fmt.Errorf("%w: postgres column is vector(%d), embed_llm.dimension is %d",
				ErrDimensionMismatch, db.Dimension, cfg.EmbedLLM.Dimension)
		}
		s, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		s := qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Collection,
			Dimension:  cfg.EmbedLLM.Dimension,
			Timeout:    vs.Qdrant.Timeout,
		})
		if err := s.EnsureCollection(ctx); err != nil {
			// The store may come up later; callers see per-call failures until then.
			log.Error().Err(err).Msg("Could not ensure qdrant collection")
		}
		return s, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, vs.Backend)
	}
}
