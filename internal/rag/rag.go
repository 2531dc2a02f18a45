package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"personal-rag/internal/config"
	"personal-rag/internal/embedding"
	"personal-rag/internal/helper"
	"personal-rag/internal/intent"
	"personal-rag/internal/llmservice"
	"personal-rag/internal/models"
	"personal-rag/internal/retrieval"
	"personal-rag/internal/session"
	"personal-rag/internal/sources"
	"personal-rag/internal/vectorstore"
)

var ErrEmptyQuery = errors.New("query is empty")

// Query states, logged as each one is reached.
const (
	StateReceived         = "RECEIVED"
	StateSessionResolved  = "SESSION_RESOLVED"
	StateIntentClassified = "INTENT_CLASSIFIED"
	StateRetrievalDecided = "RETRIEVAL_DECIDED"
	StateRetrieved        = "RETRIEVED"
	StateContextReused    = "CONTEXT_REUSED"
	StateAnswered         = "ANSWERED"
)

type Dependencies struct {
	Store      vectorstore.Store
	Embedder   embedding.Embedder
	Generator  llmservice.Generator
	Sessions   *session.Store
	Decider    retrieval.Decider
	Classifier *intent.Classifier
}

type RAG struct {
	store      vectorstore.Store
	embedder   embedding.Embedder
	generator  llmservice.Generator
	sessions   *session.Store
	decider    retrieval.Decider
	classifier *intent.Classifier
	cfg        config.RAGConfig
}

func NewRAG(deps Dependencies, cfg config.RAGConfig) *RAG {
	if cfg.TopK <= 0 {
		cfg.TopK = config.DefaultTopK
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = config.DefaultMaxSources
	}
	if cfg.ReuseMessages <= 0 {
		cfg.ReuseMessages = config.DefaultReuseMessages
	}
	if cfg.RankSources == nil {
		rank := true
		cfg.RankSources = &rank
	}
	return &RAG{
		store:      deps.Store,
		embedder:   deps.Embedder,
		generator:  deps.Generator,
		sessions:   deps.Sessions,
		decider:    deps.Decider,
		classifier: deps.Classifier,
		cfg:        cfg,
	}
}

// Query answers one question inside its session. Store and generator failures
// degrade the answer; only an empty query is an error.
func (r *RAG) Query(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	logger := log.With().Str("query_id", helper.ShortID()).Logger()
	logger.Info().Str("state", StateReceived).Str("query", query).Msg("Query received")

	sess := r.sessions.GetOrCreate(req.SessionID)
	end := sess.BeginTurn()
	defer end()
	logger = logger.With().Str("session_id", sess.ID).Logger()
	logger.Debug().Str("state", StateSessionResolved).Msg("Session resolved")

	analysis := r.classifier.Classify(query)
	logger.Debug().
		Str("state", StateIntentClassified).
		Str("segment", analysis.PrimarySegment).
		Str("category", analysis.PrimaryIntentCategory).
		Str("job", analysis.PrimaryJobToBeDone).
		Float64("confidence", analysis.Confidence).
		Msg("Intent classified")

	history := sess.Messages()
	sess.AppendMessage(models.RoleUser, query, nil)

	fetch := r.decider.ShouldRetrieve(ctx, query, history)
	logger.Debug().Str("state", StateRetrievalDecided).Bool("fetch", fetch).Msg("Retrieval decided")

	framing := r.classifier.Framing(analysis)
	conversation := formatConversation(recent(history, r.cfg.ReuseMessages))

	resp := &models.QueryResponse{
		SessionID:      sess.ID,
		Sources:        []string{},
		SearchResults:  []models.SearchResult{},
		IntentAnalysis: analysis,
	}

	var prompt string
	if fetch {
		prompt = r.retrieve(ctx, logger, sess, resp, framing, conversation, query)
	} else {
		prompt = r.reuse(logger, sess, resp, framing, conversation, query)
	}

	resp.Answer = r.generator.Complete(ctx, prompt)
	sess.AppendMessage(models.RoleAssistant, resp.Answer, resp.Sources)

	logger.Info().
		Str("state", StateAnswered).
		Bool("used_documents", resp.UsedDocuments).
		Int("sources", len(resp.Sources)).
		Bool("failed", llmservice.IsErrorAnswer(resp.Answer)).
		Dur("duration", time.Since(start)).
		Msg("Query complete")
	return resp, nil
}

// retrieve runs a fresh search and returns the prompt. A failed search falls
// back to an ungrounded prompt and leaves the cached context alone.
func (r *RAG) retrieve(ctx context.Context, logger zerolog.Logger, sess *session.Session, resp *models.QueryResponse, framing, conversation, query string) string {
	results, err := r.search(ctx, query)
	if err != nil {
		logger.Error().Err(err).Str("state", StateRetrieved).Msg("Search failed, answering without documents")
		return noContextPrompt(framing, conversation, query)
	}

	contents := make([]string, len(results))
	for i, res := range results {
		contents[i] = res.Content
	}
	srcs := sources.Select(results, r.cfg.MaxSources, *r.cfg.RankSources)
	if len(srcs) == 0 {
		srcs = sources.Filenames(results)
	}
	sess.SetRetrieval(contents, srcs)

	logger.Info().Str("state", StateRetrieved).Int("hits", len(results)).Strs("sources", srcs).Msg("Documents retrieved")
	if len(results) == 0 {
		return noContextPrompt(framing, conversation, query)
	}

	resp.SearchResults = results
	resp.Sources = nonNil(srcs)
	resp.UsedDocuments = true
	return contextPrompt(framing, strings.Join(contents, models.ContextSeparator), conversation, query)
}

// reuse builds the prompt from the latest assistant answers and the context
// cached by the last retrieval.
func (r *RAG) reuse(logger zerolog.Logger, sess *session.Session, resp *models.QueryResponse, framing, conversation, query string) string {
	var parts []string
	for _, m := range sess.Recent(r.cfg.ReuseMessages) {
		if m.Role == models.RoleAssistant && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	cached := sess.Context()
	parts = append(parts, cached...)

	resp.Sources = nonNil(sess.Sources())
	resp.UsedDocuments = len(cached) > 0
	logger.Info().Str("state", StateContextReused).Int("parts", len(parts)).Msg("Reusing conversation context")

	if len(parts) == 0 {
		return noContextPrompt(framing, conversation, query)
	}
	return contextPrompt(framing, strings.Join(parts, models.ContextSeparator), conversation, query)
}

func (r *RAG) search(ctx context.Context, query string) ([]models.SearchResult, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	var results []models.SearchResult
	if ks, ok := r.store.(vectorstore.KeywordSearcher); ok && r.cfg.KeywordWeight > 0 {
		results, err = ks.HybridSearch(ctx, query, vector, r.cfg.TopK, r.cfg.KeywordWeight)
	} else {
		results, err = r.store.Search(ctx, vector, r.cfg.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return results, nil
}

// Health reports whether the vector store answers and how many vectors it holds.
func (r *RAG) Health(ctx context.Context) models.HealthStatus {
	status := models.HealthStatus{Status: "healthy", CheckedAt: time.Now()}
	status.StoreReady = r.store.Ready(ctx)
	if !status.StoreReady {
		status.Status = "degraded"
		return status
	}
	count, err := r.store.Count(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count vectors")
		status.Status = "degraded"
		return status
	}
	status.VectorCount = count
	return status
}

func contextPrompt(framing, docs, conversation, query string) string {
	return fmt.Sprintf(models.ContextPromptTemplate, framing, docs, conversation, query)
}

func noContextPrompt(framing, conversation, query string) string {
	return fmt.Sprintf(models.NoContextPromptTemplate, framing, conversation, query)
}

func formatConversation(msgs []session.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return "Conversation so far:\n" + session.FormatConversation(msgs) + "\n"
}

func recent(msgs []session.Message, n int) []session.Message {
	if len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
