package llmservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"personal-rag/internal/config"
	"personal-rag/internal/models"
)

type testBackend struct {
	answer  string
	err     error
	delay   time.Duration
	prompts []string
}

func (b *testBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.prompts = append(b.prompts, prompt)
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return b.answer, b.err
}

func TestCompleteReturnsAnswer(t *testing.T) {
	backend := &testBackend{answer: "  <think>pondering</think>\nThe answer.  "}
	s := NewService(backend, time.Second, 0)

	assert.Equal(t, "The answer.", s.Complete(context.Background(), "question"))
	assert.Equal(t, []string{"question"}, backend.prompts)
}

func TestCompleteReturnsErrorAsText(t *testing.T) {
	s := NewService(&testBackend{err: errors.New("quota exceeded")}, time.Second, 0)

	answer := s.Complete(context.Background(), "question")
	assert.Equal(t, models.ErrorAnswerPrefix+"quota exceeded", answer)
	assert.True(t, IsErrorAnswer(answer))
}

func TestCompleteTimeout(t *testing.T) {
	s := NewService(&testBackend{answer: "late", delay: time.Second}, 10*time.Millisecond, 0)

	answer := s.Complete(context.Background(), "question")
	assert.True(t, IsErrorAnswer(answer))
	assert.Contains(t, answer, "timed out")
}

func TestSummarizeUsesSummaryPrompt(t *testing.T) {
	backend := &testBackend{answer: "short"}
	s := NewService(backend, 0, 10)

	assert.Equal(t, "short", s.Summarize(context.Background(), "long text"))
	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "concise summary")
	assert.Contains(t, backend.prompts[0], "long text")
}

// testModel implements llms.Model for testing
type testModel struct {
	answer string
}

func (m *testModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *testModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainBackend(t *testing.T) {
	s := NewService(NewLangChain(&testModel{answer: "from fake"}), time.Second, 0)
	assert.Equal(t, "from fake", s.Complete(context.Background(), "hi"))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := New(context.Background(), &config.LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
