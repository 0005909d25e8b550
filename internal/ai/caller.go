package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// StrictJSONSuffix is appended to both prompts on the repair attempt.
const StrictJSONSuffix = "\n\nRespond with strictly valid JSON only. No explanations, no markdown, no code fences."

// Usage is token and latency telemetry. Token counts stay nil until a
// provider reports them.
type Usage struct {
	PromptTokens     *int
	CompletionTokens *int
	LatencyMs        int64
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     addCounts(u.PromptTokens, o.PromptTokens),
		CompletionTokens: addCounts(u.CompletionTokens, o.CompletionTokens),
		LatencyMs:        u.LatencyMs + o.LatencyMs,
	}
}

func addCounts(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	total := 0
	if a != nil {
		total += *a
	}
	if b != nil {
		total += *b
	}
	return &total
}

// JSONResult is a parsed model response with the telemetry of every attempt.
type JSONResult struct {
	Raw      json.RawMessage
	Usage    Usage
	Provider string
	Model    string
}

// Caller turns a text completion provider into a JSON producing one.
type Caller struct {
	provider models.LLMProvider
	timeout  time.Duration
}

// NewCaller wraps provider. A zero timeout leaves model calls without a deadline.
func NewCaller(provider models.LLMProvider, timeout time.Duration) *Caller {
	return &Caller{provider: provider, timeout: timeout}
}

// ProviderName reports the configured provider.
func (c *Caller) ProviderName() string { return c.provider.Name() }

// CallJSON makes at most two attempts: the prompts as given, then, if the
// first response does not parse, the prompts with StrictJSONSuffix appended.
// The returned result carries summed usage even when err is non-nil.
func (c *Caller) CallJSON(ctx context.Context, system, user string, maxOutputTokens int) (JSONResult, error) {
	var res JSONResult

	raw, err := c.attempt(ctx, &res, system, user, maxOutputTokens)
	if err == nil {
		res.Raw = raw
		return res, nil
	}
	var parseErr *JSONParseError
	if !errors.As(err, &parseErr) {
		return res, err
	}

	raw, err = c.attempt(ctx, &res, system+StrictJSONSuffix, user+StrictJSONSuffix, maxOutputTokens)
	if err != nil {
		return res, err
	}
	res.Raw = raw
	return res, nil
}

func (c *Caller) attempt(ctx context.Context, res *JSONResult, system, user string, maxOutputTokens int) (json.RawMessage, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.provider.Complete(callCtx, models.CompletionRequest{
		SystemPrompt:    system,
		UserPrompt:      user,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		res.Provider, res.Model = c.provider.Name(), ""
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return nil, err
	}

	res.Usage = res.Usage.Add(Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		LatencyMs:        resp.LatencyMs,
	})
	res.Provider = resp.Provider
	res.Model = resp.Model

	return ParseJSONLoose(resp.Text)
}
