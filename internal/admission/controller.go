// Package admission enforces the per-organization cap on active analysis runs.
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/cache"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

const defaultStatusTTL = 24 * time.Hour

// Controller owns every run state change. The store serializes the changes
// per organization; the controller supplies the cap and the clock, mirrors
// statuses into the cache and logs each transition.
type Controller struct {
	store     store.Store
	cache     cache.Cache
	limit     int
	now       func() time.Time
	statusTTL time.Duration
}

type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithStatusTTL sets how long mirrored run statuses live in the cache.
func WithStatusTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		c.statusTTL = ttl
	}
}

// NewController creates a Controller. rc may be nil, in which case statuses
// are only read from the store. A limit below 1 is treated as 1.
func NewController(s store.Store, rc cache.Cache, limit int, opts ...Option) *Controller {
	if limit < 1 {
		limit = 1
	}
	c := &Controller{
		store:     s,
		cache:     rc,
		limit:     limit,
		now:       time.Now,
		statusTTL: defaultStatusTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Limit reports the maximum number of running runs per organization.
func (c *Controller) Limit() int { return c.limit }

// Submit creates a run, as running if the organization is under its cap and
// as queued otherwise.
func (c *Controller) Submit(ctx context.Context, orgID, projectID uuid.UUID, kind, createdBy string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.New(),
		OrgID:     orgID,
		ProjectID: projectID,
		Kind:      kind,
		QueuedAt:  c.now().UTC(),
		CreatedBy: createdBy,
	}
	if err := c.store.SubmitRun(ctx, run, c.limit); err != nil {
		return nil, err
	}

	slog.Info("analysis run submitted",
		"run_id", run.ID,
		"org_id", orgID,
		"project_id", projectID,
		"kind", kind,
		"status_transition", "-> "+run.Status,
	)
	c.mirror(ctx, run)
	return run, nil
}

// Acquire returns the running run for project and kind, promoting the oldest
// queued one if the cap allows. It returns store.ErrNoActiveRun or
// store.ErrRunQueued when there is nothing the caller may execute.
func (c *Controller) Acquire(ctx context.Context, orgID, projectID uuid.UUID, kind string) (*models.Run, error) {
	run, err := c.store.AcquireRun(ctx, orgID, projectID, kind, c.limit, c.now().UTC())
	if err != nil {
		return nil, err
	}
	c.mirror(ctx, run)
	return run, nil
}

// Complete stores result, finishes run and returns the runs promoted in the
// same transaction.
func (c *Controller) Complete(ctx context.Context, run *models.Run, result *models.Result, tel models.RunTelemetry) ([]*models.Run, error) {
	promoted, err := c.store.CompleteRun(ctx, run.ID, result, c.limit, c.now().UTC(), store.WithTelemetry(tel))
	if err != nil {
		return nil, err
	}

	slog.Info("analysis run finished",
		"run_id", run.ID,
		"org_id", run.OrgID,
		"result_id", result.ID,
		"status_transition", models.RunStatusRunning+" -> "+models.RunStatusFinished,
	)
	c.mirrorStatus(ctx, run.OrgID, run.ID, models.RunStatusFinished)
	c.logPromoted(ctx, promoted)
	return promoted, nil
}

// Fail marks run failed with message and returns the runs promoted in the
// same transaction.
func (c *Controller) Fail(ctx context.Context, run *models.Run, message string, tel models.RunTelemetry) ([]*models.Run, error) {
	promoted, err := c.store.FailRun(ctx, run.ID, message, c.limit, c.now().UTC(), store.WithTelemetry(tel))
	if err != nil {
		return nil, err
	}

	slog.Warn("analysis run failed",
		"run_id", run.ID,
		"org_id", run.OrgID,
		"error", message,
		"status_transition", models.RunStatusRunning+" -> "+models.RunStatusFailed,
	)
	c.mirrorStatus(ctx, run.OrgID, run.ID, models.RunStatusFailed)
	c.logPromoted(ctx, promoted)
	return promoted, nil
}

// PromoteNext starts queued runs of the organization while it is under its cap.
func (c *Controller) PromoteNext(ctx context.Context, orgID uuid.UUID) ([]*models.Run, error) {
	promoted, err := c.store.PromoteNext(ctx, orgID, c.limit, c.now().UTC())
	if err != nil {
		return nil, err
	}
	c.logPromoted(ctx, promoted)
	return promoted, nil
}

func (c *Controller) logPromoted(ctx context.Context, promoted []*models.Run) {
	for _, r := range promoted {
		slog.Info("analysis run promoted",
			"run_id", r.ID,
			"org_id", r.OrgID,
			"project_id", r.ProjectID,
			"kind", r.Kind,
			"status_transition", models.RunStatusQueued+" -> "+models.RunStatusRunning,
		)
		c.mirror(ctx, r)
	}
}

func (c *Controller) mirror(ctx context.Context, run *models.Run) {
	c.mirrorStatus(ctx, run.OrgID, run.ID, run.Status)
}

// mirrorStatus is best-effort: the store stays authoritative.
func (c *Controller) mirrorStatus(ctx context.Context, orgID, runID uuid.UUID, status string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetRunStatus(ctx, orgID, runID, status, c.statusTTL); err != nil {
		slog.Warn("run status cache write failed", "run_id", runID, "error", err)
	}
}
