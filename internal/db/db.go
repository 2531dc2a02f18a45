package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"personal-rag/internal/config"
	"personal-rag/internal/models"
)

// Dimension is the width of the embedding column; the table is created with it.
const Dimension = 768

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Filename      string          `bun:"filename,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	TotalChunks   int             `bun:"total_chunks,notnull"`
	TokenCount    int             `bun:"token_count,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector(768)"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
	Score         float64         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver, or with lib/pq when driver is "pq".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	switch cfg.Driver {
	case "pq", "postgres":
		return sql.Open("postgres", cfg.DSN)
	default:
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// Store is the postgres/pgvector vector store.
type Store struct {
	db *bun.DB
}

// Open connects, creates the documents table if needed and returns the store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Upsert(ctx context.Context, id string, vector []float32, payload models.Payload) error {
	doc := &Document{
		ID:          id,
		Content:     payload.Content,
		Filename:    payload.Filename,
		ChunkIndex:  payload.ChunkIndex,
		TotalChunks: payload.TotalChunks,
		TokenCount:  payload.TokenCount,
		Embedding:   pgvector.NewVector(vector),
		UpdatedAt:   time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(doc).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("filename = EXCLUDED.filename").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("total_chunks = EXCLUDED.total_chunks").
		Set("token_count = EXCLUDED.token_count").
		Set("embedding = EXCLUDED.embedding").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", id, err)
	}
	return nil
}

// Search ranks by cosine distance; the score is the cosine similarity.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	query := pgvector.NewVector(vector)
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "filename", "chunk_index", "token_count").
		ColumnExpr("1 - (embedding <=> ?) AS score", query).
		OrderExpr("embedding <=> ?", query).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	return toResults(docs), nil
}

func toResults(docs []Document) []models.SearchResult {
	results := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = models.SearchResult{
			ID:         d.ID,
			Content:    d.Content,
			Filename:   d.Filename,
			ChunkIndex: d.ChunkIndex,
			TokenCount: d.TokenCount,
			Score:      d.Score,
		}
	}
	return results
}

// HybridSearch adds keywordWeight times the normalized full-text rank of the
// query to the cosine similarity.
func (s *Store) HybridSearch(ctx context.Context, query string, vector []float32, k int, keywordWeight float64) ([]models.SearchResult, error) {
	if keywordWeight <= 0 || query == "" {
		return s.Search(ctx, vector, k)
	}
	qv := pgvector.NewVector(vector)
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "filename", "chunk_index", "token_count").
		ColumnExpr("1 - (embedding <=> ?) + ? * ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', ?), 32) AS score",
			qv, keywordWeight, query).
		OrderExpr("score DESC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return toResults(docs), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
}

func (s *Store) Ready(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
