package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

const maxPagesPerDocument = 5000

type pageRequest struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// NewUploadDocumentHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/documents. Text extraction happens
// upstream; the request carries the text of every page.
func NewUploadDocumentHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		projectID, ok := pathID(w, r, "projectID")
		if !ok {
			return
		}

		var req struct {
			Name  string        `json:"name"`
			Pages []pageRequest `json:"pages"`
		}
		if !response.Decode(w, r, &req) {
			return
		}

		name, ok := validName(req.Name)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"name is required and must be at most 200 characters", nil)
			return
		}
		pages, details := validatePages(req.Pages)
		if details != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid pages", details)
			return
		}

		doc := &models.Document{
			ID:        uuid.New(),
			OrgID:     org,
			ProjectID: projectID,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateDocument(r.Context(), doc, pages); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, doc)
	}
}

func validatePages(in []pageRequest) ([]models.DocumentPage, map[string]string) {
	if len(in) == 0 {
		return nil, map[string]string{"pages": "at least one page is required"}
	}
	if len(in) > maxPagesPerDocument {
		return nil, map[string]string{"pages": fmt.Sprintf("at most %d pages are accepted", maxPagesPerDocument)}
	}

	seen := make(map[int]bool, len(in))
	pages := make([]models.DocumentPage, len(in))
	for i, p := range in {
		if p.Page < 1 {
			return nil, map[string]string{fmt.Sprintf("pages[%d].page", i): "must be at least 1"}
		}
		if seen[p.Page] {
			return nil, map[string]string{fmt.Sprintf("pages[%d].page", i): fmt.Sprintf("page %d appears twice", p.Page)}
		}
		seen[p.Page] = true
		pages[i] = models.DocumentPage{Number: p.Page, Text: p.Text}
	}
	return pages, nil
}
