package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"personal-rag/internal/config"
)

var ErrMissingAPIKey = errors.New("gemini api key not provided")

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, llmConfig *config.LLMConfig) (*Gemini, error) {
	key := strings.TrimSpace(llmConfig.Key)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: llmConfig.Model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
