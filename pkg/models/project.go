package models

import (
	"time"

	"github.com/google/uuid"
)

// Project groups the tender documents that are analyzed together.
type Project struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	OrgID      uuid.UUID  `db:"org_id"      json:"org_id"`
	Name       string     `db:"name"        json:"name"`
	TemplateID *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
	CreatedBy  string     `db:"created_by"  json:"created_by"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
}

// Document is an uploaded file whose text has already been extracted page by page.
type Document struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	OrgID     uuid.UUID `db:"org_id"     json:"org_id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Name      string    `db:"name"       json:"name"`
	PageCount int       `db:"page_count" json:"page_count"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DocumentPage is the extracted text of one page.
// DocumentIndex is the position of the owning document within its project
// (by creation order), so pages of several documents keep a stable order.
type DocumentPage struct {
	DocumentID    uuid.UUID `db:"document_id" json:"document_id"`
	DocumentIndex int       `db:"-"           json:"document_index"`
	Number        int       `db:"page_number" json:"page"`
	Text          string    `db:"text"        json:"text"`
}
