package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

type AnthropicProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

const anthropicMaxTokens = 4096

func NewAnthropicProvider(baseURL, apiKey, model string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicReq struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []anthropicMsg `json:"messages"`
}

type anthropicResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.Client == nil {
		return "", errors.New("anthropic: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", pipeline.Fatalf("anthropic: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return "", pipeline.Fatalf("anthropic: model is required")
	}

	b, err := json.Marshal(anthropicReq{
		Model:     p.Model,
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropicMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", pipeline.ClassifyHTTPStatus(resp.StatusCode, "anthropic: "+string(body))
	}

	var decoded anthropicResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil {
		return "", errors.New(decoded.Error.Message)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", pipeline.Fatalf("anthropic: empty completion")
	}
	return sb.String(), nil
}
