package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"personal-rag/internal/config"
	"personal-rag/internal/models"
)

// Generator completes a prompt. Failures come back as text starting with
// models.ErrorAnswerPrefix instead of an error.
type Generator interface {
	Complete(ctx context.Context, prompt string) string
}

// Backend is a raw text-generation call.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

type Service struct {
	backend Backend
	timeout time.Duration
	limiter *rate.Limiter
}

// NewService wraps a backend with a per-call timeout and an optional rate limit.
func NewService(backend Backend, timeout time.Duration, requestsPerSecond float64) *Service {
	s := &Service{backend: backend, timeout: timeout}
	if requestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return s
}

// New creates the generative service described by llmConfig.
func New(ctx context.Context, llmConfig *config.LLMConfig) (*Service, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating generative service")

	var backend Backend
	switch strings.ToLower(llmConfig.Provider) {
	case "gemini":
		b, err := NewGemini(ctx, llmConfig)
		if err != nil {
			return nil, err
		}
		backend = b
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		backend = &LangChain{llm: llm}
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		backend = &LangChain{llm: llm}
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", llmConfig.Provider)
	}
	return NewService(backend, llmConfig.Timeout, llmConfig.RequestsPerSecond), nil
}

func (s *Service) Complete(ctx context.Context, prompt string) string {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return ErrorAnswer(err)
		}
	}

	text, err := s.backend.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Generation failed")
		return ErrorAnswer(err)
	}
	return StripThinking(text)
}

// Summarize returns a short summary of text.
func (s *Service) Summarize(ctx context.Context, text string) string {
	return s.Complete(ctx, fmt.Sprintf(models.SummaryPromptTemplate, text))
}

func ErrorAnswer(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorAnswerPrefix + "request timed out"
	}
	return models.ErrorAnswerPrefix + err.Error()
}

// IsErrorAnswer reports whether text is a failure carried as an answer.
func IsErrorAnswer(text string) bool {
	return strings.HasPrefix(text, models.ErrorAnswerPrefix)
}

// StripThinking removes <think> blocks some models emit before the answer.
func StripThinking(text string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
}

// LangChain adapts any langchaingo model.
type LangChain struct {
	llm llms.Model
}

func NewLangChain(llm llms.Model) *LangChain {
	return &LangChain{llm: llm}
}

func (l *LangChain) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l.llm, prompt)
}
