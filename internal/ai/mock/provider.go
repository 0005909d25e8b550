package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// ErrScriptExhausted is returned once a scripted provider has no replies left.
var ErrScriptExhausted = errors.New("mock provider script exhausted")

// DefaultResponse satisfies both the standard result and the criterion verdict shapes.
const DefaultResponse = `{"summary":"Mock summary for testing","milestones":[],"requirements":[],"openQuestions":[],"metadata":[],"status":"found","comment":"Mock verdict","citations":[]}`

// MockProvider satisfies models.LLMProvider for testing and records every request.
type MockProvider struct {
	Name_        string
	Model        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error)

	mu    sync.Mutex
	calls []models.CompletionRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return models.CompletionResponse{Provider: m.Name_, Model: m.Model}, nil
}

// Calls returns a copy of the requests received so far.
func (m *MockProvider) Calls() []models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewMockProvider returns a MockProvider that answers every call with DefaultResponse.
func NewMockProvider() *MockProvider {
	m := &MockProvider{Name_: "mock", Model: "mock-v1"}
	m.CompleteFunc = func(_ context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
		return m.reply(Reply{Text: DefaultResponse, PromptTokens: 10, CompletionTokens: 5, LatencyMs: 1}), nil
	}
	return m
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		Model: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			return models.CompletionResponse{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		Model: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			<-ctx.Done()
			return models.CompletionResponse{}, ai.ErrInferenceTimeout
		},
	}
}

// Reply is one scripted provider answer. A non-nil Err is returned instead of text.
type Reply struct {
	Text             string
	Err              error
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int64
}

// NewScriptedProvider answers calls with replies in order, then ErrScriptExhausted.
func NewScriptedProvider(replies ...Reply) *MockProvider {
	m := &MockProvider{Name_: "mock", Model: "mock-v1"}
	var (
		mu   sync.Mutex
		next int
	)
	m.CompleteFunc = func(_ context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return models.CompletionResponse{}, ErrScriptExhausted
		}
		r := replies[next]
		next++
		if r.Err != nil {
			return models.CompletionResponse{}, r.Err
		}
		return m.reply(r), nil
	}
	return m
}

func (m *MockProvider) reply(r Reply) models.CompletionResponse {
	model := r.Model
	if model == "" {
		model = m.Model
	}
	prompt, completion := r.PromptTokens, r.CompletionTokens
	return models.CompletionResponse{
		Text:             r.Text,
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		LatencyMs:        r.LatencyMs,
		Provider:         m.Name_,
		Model:            model,
	}
}

// Compile-time check that MockProvider implements LLMProvider.
var _ models.LLMProvider = (*MockProvider)(nil)
