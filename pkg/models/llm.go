// Package models contains shared data models used across the service.
package models

import (
	"context"
	"fmt"
)

// LLMProvider is the interface all language model integrations implement.
// Never call a specific vendor directly; always inject this interface.
type LLMProvider interface {
	// Complete sends one system+user prompt pair and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Name returns the provider identifier (e.g. "openai", "gemini").
	Name() string
}

// CompletionRequest is the input to a single language model call.
type CompletionRequest struct {
	SystemPrompt    string
	UserPrompt      string
	MaxOutputTokens int
}

// CompletionResponse carries the generated text and usage counters.
// Token counts are nil when the provider does not report them.
type CompletionResponse struct {
	Text             string
	PromptTokens     *int
	CompletionTokens *int
	LatencyMs        int64
	Provider         string
	Model            string
}

// ProviderError is a transport, HTTP or auth failure from a model provider.
// It fails the run; it is never retried beyond the JSON repair attempt.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
