package store

import (
	"context"
	"errors"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Admission errors. They describe the queue, not a run, and are never persisted.
var (
	ErrNoActiveRun       = errors.New("no queued or running analysis run")
	ErrRunQueued         = errors.New("analysis run is still queued")
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// Store is the data access interface. All database operations go through here.
//
// The run methods are the only way runs change state. SubmitRun, AcquireRun,
// CompleteRun, FailRun and PromoteNext each execute atomically and are
// serialized per organization, so that at most limit runs of an organization
// are ever running.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultOrganization(ctx context.Context) (*models.Organization, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Project, error)
	SetProjectTemplate(ctx context.Context, id uuid.UUID, orgID uuid.UUID, templateID uuid.UUID) error

	CreateDocument(ctx context.Context, doc *models.Document, pages []models.DocumentPage) error
	// ListProjectPages returns every page of the project ordered by
	// (document index, page number).
	ListProjectPages(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID) ([]models.DocumentPage, error)

	CreateTemplate(ctx context.Context, tmpl *models.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Template, error)

	// SubmitRun inserts run as running when the organization has fewer than
	// limit active runs and as queued otherwise. It sets run.Status, run.StartedAt
	// and run.Seq.
	SubmitRun(ctx context.Context, run *models.Run, limit int) error
	// AcquireRun returns the oldest queued or running run of the project and
	// kind, promoting it if it is queued and the organization is under limit.
	AcquireRun(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string, limit int, now time.Time) (*models.Run, error)
	// CompleteRun stores result, marks the run finished and promotes queued
	// runs. The promoted runs are returned.
	CompleteRun(ctx context.Context, runID uuid.UUID, result *models.Result, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error)
	// FailRun marks the run failed with message and promotes queued runs.
	FailRun(ctx context.Context, runID uuid.UUID, message string, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error)
	// PromoteNext promotes the organization's oldest queued runs while fewer
	// than limit are running.
	PromoteNext(ctx context.Context, orgID uuid.UUID, limit int, now time.Time) ([]*models.Run, error)
	GetRun(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Run, error)
	// ListRunningRuns returns every running run across organizations in FIFO
	// order, so a restarted process can pick up runs nobody is executing.
	ListRunningRuns(ctx context.Context) ([]*models.Run, error)
	GetLatestRun(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string) (*models.Run, error)
	GetResult(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Result, error)
}

type runUpdateParams struct {
	Telemetry *models.RunTelemetry
}

type RunUpdateOption func(*runUpdateParams)

// WithTelemetry records provider, model and usage on the run.
func WithTelemetry(t models.RunTelemetry) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.Telemetry = &t
	}
}

func applyRunOptions(opts []RunUpdateOption) *runUpdateParams {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

var validTransitions = map[string][]string{
	models.RunStatusQueued:  {models.RunStatusRunning},
	models.RunStatusRunning: {models.RunStatusFinished, models.RunStatusFailed},
}

func canTransition(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
