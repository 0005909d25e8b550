package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer types a criterion can ask for.
const (
	AnswerTypeBoolean = "boolean"
	AnswerTypeScale   = "scale"
	AnswerTypeText    = "text"
)

// Template is an ordered, immutable set of evaluation criteria.
type Template struct {
	ID        uuid.UUID   `db:"id"         json:"id"`
	OrgID     uuid.UUID   `db:"org_id"     json:"org_id"`
	Name      string      `db:"name"       json:"name"`
	Criteria  []Criterion `db:"criteria"   json:"criteria"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// Criterion is a single evaluation question defined by a template.
type Criterion struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Hints       *string  `json:"hints,omitempty"`
	AnswerType  string   `json:"answer_type"`
	Weight      int      `json:"weight"`
	Required    bool     `json:"required"`
	Keywords    []string `json:"keywords,omitempty"`
}
