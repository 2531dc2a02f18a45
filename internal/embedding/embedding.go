package embedding

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"personal-rag/internal/config"
)

// Embedder turns text into fixed-length vectors, one per input in input order.
// langchaingo's embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// New builds the embedder described by cfg. Every provider except "hash" is
// wrapped with a query cache and the hash fallback tier.
func New(cfg *config.LLMConfig) (Embedder, error) {
	hash := NewHashEmbedder(cfg.Dimension)

	var primary Embedder
	var err error
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		log.Info().Int("dimension", cfg.Dimension).Msg("Using hash embeddings")
		return hash, nil
	case "ollama":
		primary, err = NewOllamaEmbedder(cfg)
	case "openai":
		primary, err = NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	cached := NewCached(primary, cfg.CacheSize, cfg.CacheTTL)
	return NewFallback(cached, hash, FallbackOptions{
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
		Failures:  cfg.BreakerFailures,
		Cooldown:  cfg.BreakerCooldown,
	}), nil
}

// NewOllamaEmbedder creates an embedder backed by an ollama server.
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating ollama embedder")

	opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// NewOpenAIEmbedder creates an embedder for any OpenAI compatible endpoint.
func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(llmConfig.Model),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// HashEmbedder derives a pseudo-embedding from the MD5 digest of the text.
// It is deterministic and never fails, which makes it the degraded tier.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = config.DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.embed(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	sum := md5.Sum([]byte(text))
	vector := make([]float32, h.dimension)
	for i := range vector {
		vector[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vector
}

func checkVectors(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", want, len(vectors))
	}
	for _, v := range vectors {
		if dimension > 0 && len(v) != dimension {
			return fmt.Errorf("%w: expected %d, received %d", ErrDimensionMismatch, dimension, len(v))
		}
	}
	return nil
}
