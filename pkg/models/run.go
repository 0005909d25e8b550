package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusQueued   = "queued"
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

const (
	RunKindStandard = "standard"
	RunKindCriteria = "criteria"
)

// Run tracks one admitted analysis request for a project. The API returns the run
// on POST /api/v1/projects/{id}/runs; clients poll until status is finished or failed.
//
// Status moves queued -> running -> finished|failed and never regresses.
// StartedAt is set once the run is running, FinishedAt and ResultID only on success,
// ErrorMessage only on failure.
type Run struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	OrgID            uuid.UUID  `db:"org_id"            json:"org_id"`
	ProjectID        uuid.UUID  `db:"project_id"        json:"project_id"`
	Kind             string     `db:"kind"              json:"kind"`
	Status           string     `db:"status"            json:"status"`
	ErrorMessage     *string    `db:"error_message"     json:"error_message,omitempty"`
	QueuedAt         time.Time  `db:"queued_at"         json:"queued_at"`
	StartedAt        *time.Time `db:"started_at"        json:"started_at,omitempty"`
	FinishedAt       *time.Time `db:"finished_at"       json:"finished_at,omitempty"`
	ResultID         *uuid.UUID `db:"result_id"         json:"result_id,omitempty"`
	Provider         string     `db:"provider"          json:"provider,omitempty"`
	Model            string     `db:"model"             json:"model,omitempty"`
	PromptTokens     *int       `db:"prompt_tokens"     json:"prompt_tokens,omitempty"`
	CompletionTokens *int       `db:"completion_tokens" json:"completion_tokens,omitempty"`
	LatencyMs        *int64     `db:"latency_ms"        json:"latency_ms,omitempty"`
	CreatedBy        string     `db:"created_by"        json:"created_by"`
	Seq              int64      `db:"seq"               json:"-"`
}

// Active reports whether the run still occupies the queue.
func (r *Run) Active() bool {
	return r.Status == RunStatusQueued || r.Status == RunStatusRunning
}

// RunTelemetry is the aggregated LLM usage recorded on a run.
type RunTelemetry struct {
	Provider         string
	Model            string
	PromptTokens     *int
	CompletionTokens *int
	LatencyMs        *int64
}

// ValidRunKind reports whether kind names a supported analysis.
func ValidRunKind(kind string) bool {
	return kind == RunKindStandard || kind == RunKindCriteria
}
