// Package retrieval decides whether a query needs a fresh document search.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"personal-rag/internal/llmservice"
	"personal-rag/internal/models"
	"personal-rag/internal/session"
)

// Decider reports whether query should trigger a vector search given the
// conversation so far. history excludes the query itself.
type Decider interface {
	ShouldRetrieve(ctx context.Context, query string, history []session.Message) bool
}

const (
	StrategyModel     = "model"
	StrategyHeuristic = "heuristic"
)

// New returns the decider for strategy. The model strategy needs gen and
// degrades to the heuristic without it.
func New(strategy string, gen llmservice.Generator) (Decider, error) {
	switch strategy {
	case "", StrategyModel:
		if gen == nil {
			log.Warn().Msg("No generator for model-assisted retrieval decision, using heuristic")
			return Heuristic{}, nil
		}
		return NewModelAssisted(gen), nil
	case StrategyHeuristic:
		return Heuristic{}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval strategy: %s", strategy)
	}
}

var followUpIndicators = []string{
	"what about",
	"how about",
	"tell me more",
	"more about",
	"also",
	"elaborate",
	"explain further",
	"and what",
}

// Heuristic treats follow-up phrasing as answerable from the conversation once
// at least two messages exist.
type Heuristic struct{}

func (Heuristic) ShouldRetrieve(_ context.Context, query string, history []session.Message) bool {
	if len(history) < 2 {
		return true
	}
	return !IsFollowUp(query)
}

// IsFollowUp reports whether query reads like a continuation of the conversation.
func IsFollowUp(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.HasSuffix(q, "?") {
		return true
	}
	for _, indicator := range followUpIndicators {
		if strings.Contains(q, indicator) {
			return true
		}
	}
	return false
}

// ModelAssisted asks the generative service to pick between a fresh search and
// the chat context. Anything but a clear USE_CHAT_CONTEXT means fetch.
type ModelAssisted struct {
	gen          llmservice.Generator
	historyLimit int
}

func NewModelAssisted(gen llmservice.Generator) *ModelAssisted {
	return &ModelAssisted{gen: gen, historyLimit: 4}
}

func (m *ModelAssisted) ShouldRetrieve(ctx context.Context, query string, history []session.Message) bool {
	if len(history) == 0 {
		return true
	}
	if len(history) > m.historyLimit {
		history = history[len(history)-m.historyLimit:]
	}

	prompt := fmt.Sprintf(models.DecisionPromptTemplate, session.FormatConversation(history), query)
	reply := m.gen.Complete(ctx, prompt)
	if llmservice.IsErrorAnswer(reply) {
		log.Warn().Str("reply", reply).Msg("Retrieval decision failed, fetching documents")
		return true
	}

	decision := parseDecision(reply)
	log.Debug().Str("decision", decision).Msg("Retrieval decision")
	return decision != models.DecisionReuse
}

func parseDecision(reply string) string {
	upper := strings.ToUpper(reply)
	hasFetch := strings.Contains(upper, models.DecisionFetch)
	hasReuse := strings.Contains(upper, models.DecisionReuse)
	if hasReuse && !hasFetch {
		return models.DecisionReuse
	}
	return models.DecisionFetch
}
