package models

import (
	"time"

	"github.com/google/uuid"
)

// Result is the persisted, immutable output of a finished run.
// Exactly one of Standard and Criteria is set, matching Kind.
type Result struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	OrgID     uuid.UUID       `db:"org_id"     json:"org_id"`
	ProjectID uuid.UUID       `db:"project_id" json:"project_id"`
	RunID     uuid.UUID       `db:"run_id"     json:"run_id"`
	Kind      string          `db:"kind"       json:"kind"`
	Standard  *StandardResult `db:"-"          json:"standard,omitempty"`
	Criteria  *CriteriaResult `db:"-"          json:"criteria,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Citation is a page number plus a verbatim quote substantiating a claim.
type Citation struct {
	Page  int    `json:"page"`
	Quote string `json:"quote"`
}

// StandardResult is the payload of a standard analysis.
type StandardResult struct {
	Summary       string          `json:"summary"`
	Milestones    []Milestone     `json:"milestones"`
	Requirements  []Requirement   `json:"requirements"`
	OpenQuestions []OpenQuestion  `json:"openQuestions"`
	Metadata      []MetadataEntry `json:"metadata"`
}

type Milestone struct {
	Title    string    `json:"title"`
	Date     *string   `json:"date,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
}

type Requirement struct {
	Title    string    `json:"title"`
	Category *string   `json:"category,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
}

type OpenQuestion struct {
	Question string    `json:"question"`
	Citation *Citation `json:"citation,omitempty"`
}

type MetadataEntry struct {
	Label    string    `json:"label"`
	Value    string    `json:"value"`
	Citation *Citation `json:"citation,omitempty"`
}

// Criterion verdict statuses.
const (
	VerdictFound    = "found"
	VerdictNotFound = "not_found"
	VerdictPartial  = "partial"
)

// CriteriaResult is the payload of a criteria analysis: one verdict per
// template criterion, in template order.
type CriteriaResult struct {
	TemplateID uuid.UUID          `json:"templateId"`
	Items      []CriterionVerdict `json:"items"`
}

type CriterionVerdict struct {
	CriterionKey string     `json:"criterionKey"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Comment      *string    `json:"comment,omitempty"`
	Answer       *string    `json:"answer,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Weight       int        `json:"weight"`
	Citations    []Citation `json:"citations"`
}
