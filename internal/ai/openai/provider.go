package openai

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

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/config"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// Provider implements models.LLMProvider against an OpenAI compatible chat
// completions endpoint. vLLM and Ollama are served by the same client under
// their own names.
type Provider struct {
	name   string
	cfg    config.OpenAIConfig
	client *http.Client
}

// NewProvider creates a chat completions client reporting itself as name.
func NewProvider(name string, cfg config.OpenAIConfig) *Provider {
	return &Provider{
		name:   name,
		cfg:    cfg,
		client: &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.client = c
	return p
}

func (p *Provider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens: req.MaxOutputTokens,
	})
	if err != nil {
		return models.CompletionResponse{}, fmt.Errorf("encoding chat request: %w", err)
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.CompletionResponse{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.name, Err: fmt.Errorf("reading response: %w", err)}
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.name, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding chat response: %w", decodeErr)}
	}
	if len(parsed.Choices) == 0 {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.name, StatusCode: resp.StatusCode, Err: errors.New("response has no choices")}
	}

	out := models.CompletionResponse{
		Text:      parsed.Choices[0].Message.Content,
		LatencyMs: latency,
		Provider:  p.name,
		Model:     p.cfg.Model,
	}
	if parsed.Model != "" {
		out.Model = parsed.Model
	}
	if parsed.Usage != nil {
		prompt, completion := parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
		out.PromptTokens = &prompt
		out.CompletionTokens = &completion
	}
	return out, nil
}

var _ models.LLMProvider = (*Provider)(nil)
