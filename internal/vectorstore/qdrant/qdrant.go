// Package qdrant is a small REST client for a Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"personal-rag/internal/models"
)

// Qdrant point ids must be integers or UUIDs, so string ids are mapped to a
// name-based UUID and kept in the payload under this key.
const idPayloadKey = "doc_id"

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a document id to the UUID it is stored under.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// EnsureCollection creates the cosine collection when it does not exist yet.
func (s *Storage) EnsureCollection(ctx context.Context) error {
	if s.dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

func (s *Storage) Upsert(ctx context.Context, id string, vector []float32, payload models.Payload) error {
	point := map[string]any{
		"id":     PointID(id),
		"vector": vector,
		"payload": map[string]any{
			idPayloadKey:   id,
			"content":      payload.Content,
			"filename":     payload.Filename,
			"chunk_index":  payload.ChunkIndex,
			"total_chunks": payload.TotalChunks,
			"token_count":  payload.TokenCount,
		},
	}
	body := map[string]any{"points": []any{point}}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		res := models.SearchResult{Score: r.Score, ID: fmt.Sprint(r.ID)}
		if v, ok := r.Payload[idPayloadKey].(string); ok {
			res.ID = v
		}
		if v, ok := r.Payload["content"].(string); ok {
			res.Content = v
		}
		if v, ok := r.Payload["filename"].(string); ok {
			res.Filename = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			res.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["token_count"].(float64); ok {
			res.TokenCount = int(v)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Ready(ctx context.Context) bool {
	_, err := s.do(ctx, http.MethodGet, s.url+"/collections", nil, nil)
	return err == nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
