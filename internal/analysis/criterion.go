package analysis

import (
	"context"
	"fmt"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// JSONCaller is the model capability the evaluators need. *ai.Caller implements it.
type JSONCaller interface {
	CallJSON(ctx context.Context, system, user string, maxOutputTokens int) (ai.JSONResult, error)
}

// Evaluator issues the model calls of a run and validates their output.
type Evaluator struct {
	caller JSONCaller
}

func NewEvaluator(caller JSONCaller) *Evaluator {
	return &Evaluator{caller: caller}
}

// EvaluateCriterion judges one criterion against the whole document context.
// The returned result carries telemetry even when err is non-nil.
func (e *Evaluator) EvaluateCriterion(ctx context.Context, c models.Criterion, fullContext string) (models.CriterionVerdict, ai.JSONResult, error) {
	res, err := e.caller.CallJSON(ctx, criterionSystemPrompt, criterionUserPrompt(c, fullContext), CriterionMaxOutputTokens)
	if err != nil {
		return models.CriterionVerdict{}, res, fmt.Errorf("criterion %q: %w", c.Key, err)
	}
	v, err := ValidateCriterionVerdict(res.Raw)
	if err != nil {
		return models.CriterionVerdict{}, res, fmt.Errorf("criterion %q: %w", c.Key, err)
	}
	return models.CriterionVerdict{
		CriterionKey: c.Key,
		Title:        c.Title,
		Status:       v.Status,
		Comment:      v.Comment,
		Answer:       v.Answer,
		Score:        v.Score,
		Weight:       c.Weight,
		Citations:    v.Citations,
	}, res, nil
}

// EvaluateChunk extracts a partial standard result from one chunk.
func (e *Evaluator) EvaluateChunk(ctx context.Context, chunk Chunk, total int) (models.StandardResult, ai.JSONResult, error) {
	res, err := e.caller.CallJSON(ctx, standardSystemPrompt, standardUserPrompt(chunk, total), StandardMaxOutputTokens)
	if err != nil {
		return models.StandardResult{}, res, fmt.Errorf("chunk %d: %w", chunk.Index+1, err)
	}
	partial, err := ValidateStandardResult(res.Raw)
	if err != nil {
		return models.StandardResult{}, res, fmt.Errorf("chunk %d: %w", chunk.Index+1, err)
	}
	return partial, res, nil
}
