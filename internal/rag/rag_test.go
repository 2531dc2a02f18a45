package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-rag/internal/config"
	"personal-rag/internal/embedding"
	"personal-rag/internal/intent"
	"personal-rag/internal/models"
	"personal-rag/internal/session"
	"personal-rag/internal/vectorstore/memory"
)

type countingStore struct {
	*memory.Store
	mu       sync.Mutex
	searches int
}

func (s *countingStore) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	return s.Store.Search(ctx, vector, k)
}

func (s *countingStore) HybridSearch(ctx context.Context, query string, vector []float32, k int, weight float64) ([]models.SearchResult, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	return s.Store.HybridSearch(ctx, query, vector, k, weight)
}

type testGenerator struct {
	mu      sync.Mutex
	answer  string
	prompts []string
}

func (g *testGenerator) Complete(_ context.Context, prompt string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.answer
}

func (g *testGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type fixedDecider bool

func (d fixedDecider) ShouldRetrieve(_ context.Context, _ string, history []session.Message) bool {
	return len(history) == 0 || bool(d)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

type fixture struct {
	rag      *RAG
	store    *countingStore
	gen      *testGenerator
	sessions *session.Store
}

func newFixture(t *testing.T, fetch bool) *fixture {
	t.Helper()
	classifier, err := intent.Load("")
	require.NoError(t, err)

	f := &fixture{
		store:    &countingStore{Store: memory.New()},
		gen:      &testGenerator{answer: "Generated answer."},
		sessions: session.NewStore(config.SessionConfig{}),
	}
	f.rag = NewRAG(Dependencies{
		Store:      f.store,
		Embedder:   embedding.NewHashEmbedder(16),
		Generator:  f.gen,
		Sessions:   f.sessions,
		Decider:    fixedDecider(fetch),
		Classifier: classifier,
	}, config.RAGConfig{})
	return f
}

func (f *fixture) addDoc(t *testing.T, id, filename, content string) {
	t.Helper()
	vector, err := embedding.NewHashEmbedder(16).EmbedQuery(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, f.store.Upsert(context.Background(), id, vector, models.Payload{
		Content:  content,
		Filename: filename,
	}))
}

func TestQueryWithDocuments(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "Salicylic acid clears pores. PMID: 12345678")
	f.addDoc(t, "b.txt_0", "b.txt", "Benzoyl peroxide kills bacteria.")

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{
		Query: "What's the safest acne treatment for teenagers with sensitive skin?",
	})
	require.NoError(t, err)

	assert.True(t, resp.UsedDocuments)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Generated answer.", resp.Answer)
	assert.Len(t, resp.SearchResults, 2)
	assert.Equal(t, []string{"https://pubmed.ncbi.nlm.nih.gov/12345678/"}, resp.Sources)
	assert.Equal(t, "acne_prone_consumers", resp.IntentAnalysis.PrimarySegment)

	prompt := f.gen.lastPrompt()
	assert.Contains(t, prompt, "Salicylic acid clears pores.")
	assert.Contains(t, prompt, "Benzoyl peroxide kills bacteria.")
	assert.Contains(t, prompt, "acne or breakouts")

	sess, ok := f.sessions.Get(resp.SessionID)
	require.True(t, ok)
	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, resp.Sources, msgs[1].Sources)
	assert.Len(t, sess.Context(), 2)
}

func TestQuerySourcesFallBackToFilenames(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "No links here.")
	f.addDoc(t, "a.txt_1", "a.txt", "Still no links.")

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, resp.Sources)
}

func TestQueryZeroHitsAnswersWithoutDocuments(t *testing.T) {
	f := newFixture(t, true)

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "hello there", SessionID: "s1"})
	require.NoError(t, err)

	assert.False(t, resp.UsedDocuments)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.SearchResults)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "Generated answer.", resp.Answer)
	assert.NotContains(t, f.gen.lastPrompt(), "Context:")
	assert.Contains(t, f.gen.lastPrompt(), "Answer briefly (max 50 words): hello there")
	assert.Equal(t, 1, f.store.searches)
}

func TestQueryStoreFailureDegrades(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "Some content.")
	f.store.SetFailure(errors.New("connection refused"))

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "question"})
	require.NoError(t, err)
	assert.False(t, resp.UsedDocuments)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "Generated answer.", resp.Answer)
}

func TestQueryEmbedderFailureDegrades(t *testing.T) {
	f := newFixture(t, true)
	f.rag.embedder = failingEmbedder{}

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "question"})
	require.NoError(t, err)
	assert.False(t, resp.UsedDocuments)
	assert.Zero(t, f.store.searches)
}

func TestQueryReusesContext(t *testing.T) {
	f := newFixture(t, false)
	f.addDoc(t, "a.txt_0", "a.txt", "Niacinamide calms redness. https://example.org/niacinamide")

	first, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "What is niacinamide?", SessionID: "s"})
	require.NoError(t, err)
	require.True(t, first.UsedDocuments)
	require.Equal(t, 1, f.store.searches)

	f.gen.answer = "Follow-up answer."
	second, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "tell me more", SessionID: "s"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.searches)
	assert.True(t, second.UsedDocuments)
	assert.Empty(t, second.SearchResults)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, "Follow-up answer.", second.Answer)

	prompt := f.gen.lastPrompt()
	assert.Contains(t, prompt, "Generated answer.")
	assert.Contains(t, prompt, "Niacinamide calms redness.")
	assert.Contains(t, prompt, "user: What is niacinamide?")

	sess, _ := f.sessions.Get("s")
	msgs := sess.Messages()
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		assert.Equal(t, want, m.Role)
	}
}

func TestRetrievalReplacesSessionContext(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "First document.")

	_, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "one", SessionID: "s"})
	require.NoError(t, err)

	require.NoError(t, f.store.Upsert(context.Background(), "a.txt_0", make([]float32, 16), models.Payload{
		Content:  "Replaced document.",
		Filename: "c.txt",
	}))

	_, err = f.rag.Query(context.Background(), models.QueryRequest{Query: "two", SessionID: "s"})
	require.NoError(t, err)

	sess, _ := f.sessions.Get("s")
	assert.Equal(t, []string{"Replaced document."}, sess.Context())
	assert.Equal(t, []string{"c.txt"}, sess.Sources())
}

func TestQueryGeneratorErrorIsAnswer(t *testing.T) {
	f := newFixture(t, true)
	f.gen.answer = models.ErrorAnswerPrefix + "quota exceeded"

	resp, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "question", SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, models.ErrorAnswerPrefix+"quota exceeded", resp.Answer)

	sess, _ := f.sessions.Get("s")
	assert.Len(t, sess.Messages(), 2)
}

func TestQueryRejectsEmpty(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.rag.Query(context.Background(), models.QueryRequest{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, f.sessions.Len())
}

func TestConcurrentQueriesKeepHistoryPaired(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "Shared content.")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.rag.Query(context.Background(), models.QueryRequest{
				Query:     fmt.Sprintf("question %d", i),
				SessionID: "shared",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, _ := f.sessions.Get("shared")
	msgs := sess.Messages()
	require.Len(t, msgs, config.DefaultMaxMessages)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, models.RoleUser, msgs[i].Role)
		assert.True(t, strings.HasPrefix(msgs[i].Content, "question "))
		assert.Equal(t, models.RoleAssistant, msgs[i+1].Role)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true)
	f.addDoc(t, "a.txt_0", "a.txt", "Some content.")

	status := f.rag.Health(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.StoreReady)
	assert.Equal(t, 1, status.VectorCount)

	f.store.SetFailure(errors.New("down"))
	status = f.rag.Health(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.False(t, status.StoreReady)
}

type constantEmbedder struct{}

func (constantEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constantEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestQueryKeywordWeightPrefersMatchingChunk(t *testing.T) {
	classifier, err := intent.Load("")
	require.NoError(t, err)

	for _, tt := range []struct {
		weight float64
		want   string
	}{
		{weight: 0, want: "a.txt_0"},
		{weight: 0.3, want: "b.txt_0"},
	} {
		store := &countingStore{Store: memory.New()}
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, "a.txt_0", []float32{1, 0}, models.Payload{Content: "Unrelated shopping list.", Filename: "a.txt"}))
		require.NoError(t, store.Upsert(ctx, "b.txt_0", []float32{1, 0}, models.Payload{Content: "Retinol dosage guidance.", Filename: "b.txt"}))

		r := NewRAG(Dependencies{
			Store:      store,
			Embedder:   constantEmbedder{},
			Generator:  &testGenerator{answer: "ok"},
			Sessions:   session.NewStore(config.SessionConfig{}),
			Decider:    fixedDecider(true),
			Classifier: classifier,
		}, config.RAGConfig{TopK: 1, KeywordWeight: tt.weight})

		resp, err := r.Query(ctx, models.QueryRequest{Query: "retinol dosage"})
		require.NoError(t, err)
		require.Len(t, resp.SearchResults, 1)
		assert.Equal(t, tt.want, resp.SearchResults[0].ID, "keyword weight %v", tt.weight)
		assert.Equal(t, 1, store.searches)
	}
}
