package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"personal-rag/internal/models"
)

const compress = false

// VectorDBManager keeps chunk vectors in a chromem-go collection.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	inMemory      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens (or creates) the database and its collection.
// In-memory databases are seeded from the export file when one exists.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database folder: %w", err)
		}
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		inMemory:      inMemory,
		encryptionKey: encryptionKey,
	}
	if dbPath != "" {
		m.filePath = filepath.Join(dbPath, collectionName+".chromem")
	}

	if inMemory && m.filePath != "" {
		if _, statErr := os.Stat(m.filePath); statErr == nil {
			if err := m.Import(); err != nil {
				log.Warn().Err(err).Str("file", m.filePath).Msg("Could not import vector database export")
			}
		}
	}

	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	if !m.Durable() {
		log.Warn().
			Str("collection", collectionName).
			Msg("In-memory vector database without an encryption key or path, vectors will be lost on exit")
	}
	return m, nil
}

// Durable reports whether vectors outlive the process, either on disk or
// through the encrypted export written on Close.
func (m *VectorDBManager) Durable() bool {
	return !m.inMemory || (m.encryptionKey != "" && m.filePath != "")
}

// GetOrCreateCollection selects the collection all other calls operate on.
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Upsert adds the document or replaces the one stored under the same id.
func (m *VectorDBManager) Upsert(ctx context.Context, id string, vector []float32, payload models.Payload) error {
	if id == "" {
		return errors.New("document id is required")
	}
	doc := chromem.Document{
		ID:        id,
		Content:   payload.Content,
		Metadata:  toMetadata(payload),
		Embedding: vector,
	}
	if err := m.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding is required")
	}
	n := min(k, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		hits = append(hits, fromResult(r))
	}
	return hits, nil
}

func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	return m.collection.Count(), nil
}

func (m *VectorDBManager) Ready(_ context.Context) bool {
	return m.collection != nil
}

// Close exports in-memory databases so a restart can pick them up again.
func (m *VectorDBManager) Close() error {
	if !m.inMemory || !m.Durable() {
		return nil
	}
	return m.Export()
}

// DeleteCollection drops the collection and everything in it.
func (m *VectorDBManager) DeleteCollection() error {
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the collection to an encrypted file.
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(m.dbPath, 0o755); err != nil {
		return fmt.Errorf("failed to create database folder: %w", err)
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", m.filePath).Msg("Exporting vector database")
	if err := m.db.ExportToFile(m.filePath, compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads a previous export into the database.
func (m *VectorDBManager) Import() error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func toMetadata(p models.Payload) map[string]string {
	return map[string]string{
		"filename":     p.Filename,
		"chunk_index":  strconv.Itoa(p.ChunkIndex),
		"total_chunks": strconv.Itoa(p.TotalChunks),
		"token_count":  strconv.Itoa(p.TokenCount),
	}
}

func fromResult(r chromem.Result) models.SearchResult {
	chunkIndex, _ := strconv.Atoi(r.Metadata["chunk_index"])
	tokenCount, _ := strconv.Atoi(r.Metadata["token_count"])
	return models.SearchResult{
		ID:         r.ID,
		Content:    r.Content,
		Filename:   r.Metadata["filename"],
		ChunkIndex: chunkIndex,
		TokenCount: tokenCount,
		Score:      float64(r.Similarity),
	}
}
