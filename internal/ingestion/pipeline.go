// Package ingestion turns raw file bytes into embedded chunks and stores them.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"personal-rag/internal/chunker"
	"personal-rag/internal/embedding"
	"personal-rag/internal/helper"
	"personal-rag/internal/models"
	"personal-rag/internal/parser"
	"personal-rag/internal/tokenizer"
	"personal-rag/internal/vectorstore"
)

// ExtractFunc pulls plain text out of a file.
type ExtractFunc func(data []byte, filename string) (string, error)

// IDFunc names the stored point of a chunk.
type IDFunc func(filename string, chunkIndex int) string

// DeterministicID is used by the indexer so re-indexing overwrites in place.
func DeterministicID(filename string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", filename, chunkIndex)
}

// UploadID adds a random suffix so repeated uploads of one name never collide.
// Re-uploading a file therefore adds vectors instead of replacing them.
func UploadID(filename string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d_%s", filename, chunkIndex, helper.ShortID())
}

type Pipeline struct {
	chunker  *chunker.Chunker
	tok      tokenizer.Tokenizer
	embedder embedding.Embedder
	extract  ExtractFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces parser.ExtractText.
func WithExtractor(fn ExtractFunc) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.extract = fn
		}
	}
}

func NewPipeline(tok tokenizer.Tokenizer, maxTokens int, embedder embedding.Embedder, opts ...Option) *Pipeline {
	if tok == nil {
		tok = tokenizer.Default()
	}
	p := &Pipeline{
		chunker:  chunker.New(tok, maxTokens),
		tok:      tok,
		embedder: embedder,
		extract:  parser.ExtractText,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts, chunks and embeds one document. Any failure, including a
// panic in a format parser, yields an empty result for the whole document.
func (p *Pipeline) Process(ctx context.Context, data []byte, filename string) (chunks []models.Chunk) {
	processID := helper.ShortID()
	logger := log.With().Str("process_id", processID).Str("filename", filename).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Dur("duration", time.Since(start)).Msg("Document processing failed")
			chunks = nil
		}
	}()

	logger.Info().Int("bytes", len(data)).Msg("Starting document processing")

	text, err := p.extract(data, filename)
	if err != nil {
		logger.Error().Err(err).Msg("Text extraction failed")
		return nil
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn().Msg("No text content found")
		return nil
	}

	text = parser.NormalizeWhitespace(text)
	texts := p.chunker.Chunk(text)
	if len(texts) == 0 {
		logger.Warn().Msg("No chunks created")
		return nil
	}

	tokenCounts := make([]int, len(texts))
	totalTokens := 0
	for i, t := range texts {
		tokenCounts[i] = p.tok.Count(t)
		totalTokens += tokenCounts[i]
		logger.Debug().Int("chunk", i).Int("tokens", tokenCounts[i]).Int("chars", len(t)).Msg("Chunk created")
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		logger.Error().Err(err).Msg("Embedding generation failed")
		return nil
	}
	if len(vectors) != len(texts) {
		logger.Error().Int("chunks", len(texts)).Int("vectors", len(vectors)).Msg("Embedding count mismatch")
		return nil
	}

	chunks = make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{
			Content:    t,
			TokenCount: tokenCounts[i],
			Embedding:  vectors[i],
			Metadata: models.ChunkMetadata{
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(texts),
			},
		}
	}

	logger.Info().
		Int("chunks", len(chunks)).
		Int("total_tokens", totalTokens).
		Dur("duration", time.Since(start)).
		Msg("Document processing complete")
	return chunks
}

// StoreChunks upserts every chunk under ids(filename, index) and reports how
// many were stored. Failures are collected, not fatal.
func StoreChunks(ctx context.Context, store vectorstore.Store, chunks []models.Chunk, ids IDFunc) (int, error) {
	stored := 0
	var errs []error
	for _, c := range chunks {
		id := ids(c.Metadata.Filename, c.Metadata.ChunkIndex)
		if err := store.Upsert(ctx, id, c.Embedding, models.PayloadFor(c)); err != nil {
			log.Error().Err(err).Str("id", id).Msg("Failed to store chunk")
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}

// Ingest processes a document and stores its chunks.
func (p *Pipeline) Ingest(ctx context.Context, store vectorstore.Store, data []byte, filename string, ids IDFunc) (*models.UploadResult, error) {
	chunks := p.Process(ctx, data, filename)

	result := &models.UploadResult{
		Filename:      filename,
		ChunksCreated: len(chunks),
		Chunks:        chunks,
	}
	for _, c := range chunks {
		result.TotalTokens += c.TokenCount
	}

	stored, err := StoreChunks(ctx, store, chunks, ids)
	result.ChunksStored = stored
	if err != nil {
		return result, fmt.Errorf("stored %d of %d chunks: %w", stored, len(chunks), err)
	}
	return result, nil
}

// Upload is the interactive entry point; every call gets fresh ids.
func (p *Pipeline) Upload(ctx context.Context, store vectorstore.Store, data []byte, filename string) (*models.UploadResult, error) {
	uploadID := helper.ShortID()
	log.Info().Str("upload_id", uploadID).Str("filename", filename).Msg("Starting document upload")

	result, err := p.Ingest(ctx, store, data, filename, UploadID)
	if err != nil {
		log.Error().Err(err).Str("upload_id", uploadID).Msg("Upload incomplete")
		return result, err
	}
	log.Info().
		Str("upload_id", uploadID).
		Int("chunks", result.ChunksStored).
		Int("total_tokens", result.TotalTokens).
		Msg("Upload complete")
	return result, nil
}
