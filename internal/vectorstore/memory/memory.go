// Package memory is a process-local vector store with exact cosine search.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"personal-rag/internal/models"
)

type point struct {
	vector  []float32
	payload models.Payload
}

type Store struct {
	mu      sync.RWMutex
	points  map[string]point
	upserts int
	fail    error
}

func New() *Store {
	return &Store{points: make(map[string]point)}
}

// Upserts counts every Upsert call that succeeded.
func (s *Store) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// SetFailure makes every call fail with err until cleared with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// IDs returns the stored ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Upsert(_ context.Context, id string, vector []float32, payload models.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if id == "" {
		return errors.New("document id is required")
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	s.points[id] = point{vector: v, payload: payload}
	s.upserts++
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	return s.HybridSearch(ctx, "", vector, k, 0)
}

// HybridSearch scores every point by cosine similarity plus keywordWeight
// times the share of query terms found in its content.
func (s *Store) HybridSearch(_ context.Context, query string, vector []float32, k int, keywordWeight float64) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}

	var terms []string
	if keywordWeight > 0 {
		terms = queryTerms(query)
	}

	results := make([]models.SearchResult, 0, len(s.points))
	for id, p := range s.points {
		score := cosine(vector, p.vector)
		if len(terms) > 0 {
			score += keywordWeight * termCoverage(terms, p.payload.Content)
		}
		results = append(results, models.SearchResult{
			ID:         id,
			Content:    p.payload.Content,
			Filename:   p.payload.Filename,
			ChunkIndex: p.payload.ChunkIndex,
			TokenCount: p.payload.TokenCount,
			Score:      score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return 0, s.fail
	}
	return len(s.points), nil
}

func (s *Store) Ready(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail == nil
}

func (s *Store) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// queryTerms splits a query into distinct lower-case words of three or more letters.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func termCoverage(terms []string, content string) float64 {
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
