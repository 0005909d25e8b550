package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/config"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	genai "google.golang.org/genai"
)

// Provider implements models.LLMProvider on top of the official genai client.
type Provider struct {
	cli   *genai.Client
	model string
}

// NewProvider builds a Gemini API client. baseURL overrides the endpoint and
// is empty outside tests.
func NewProvider(ctx context.Context, cfg config.GeminiConfig, baseURL string) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Provider{cli: cli, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	gc := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	start := time.Now()
	resp, err := p.cli.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.UserPrompt}}}},
		gc,
	)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.Name(), Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.CompletionResponse{}, &models.ProviderError{Provider: p.Name(), Err: errors.New("response has no candidates")}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	out := models.CompletionResponse{
		Text:      text.String(),
		LatencyMs: latency,
		Provider:  p.Name(),
		Model:     p.model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		prompt, completion := int(u.PromptTokenCount), int(u.CandidatesTokenCount)
		out.PromptTokens = &prompt
		out.CompletionTokens = &completion
	}
	return out, nil
}

var _ models.LLMProvider = (*Provider)(nil)
