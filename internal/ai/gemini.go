package ai

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

// GeminiProvider completes prompts through the Gemini API. One client is
// shared across calls; Close releases it at shutdown.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, pipeline.Fatalf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", pipeline.Fatalf("gemini: empty completion")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", pipeline.Fatalf("gemini: no text parts in completion")
	}
	return sb.String(), nil
}
