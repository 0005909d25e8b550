package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Organizations ---

func (s *PostgresStore) GetDefaultOrganization(ctx context.Context) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE name = 'default' LIMIT 1`,
	).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default organization: %w", err)
	}
	return &o, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, org_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OrgID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE org_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL`, id, orgID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, project *models.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, org_id, name, template_id, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		project.ID, project.OrgID, project.Name, project.TemplateID, project.CreatedBy,
		project.CreatedAt, project.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, template_id, created_by, created_at, updated_at
		 FROM projects WHERE id = $1 AND org_id = $2`, id, orgID,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.TemplateID, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SetProjectTemplate(ctx context.Context, id uuid.UUID, orgID uuid.UUID, templateID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET template_id = $3, updated_at = NOW()
		 WHERE id = $1 AND org_id = $2
		   AND EXISTS (SELECT 1 FROM templates WHERE id = $3 AND org_id = $2)`,
		id, orgID, templateID)
	if err != nil {
		return fmt.Errorf("set project template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Documents ---

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document, pages []models.DocumentPage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND org_id = $2)`,
		doc.ProjectID, doc.OrgID).Scan(&exists); err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	doc.PageCount = len(pages)
	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (id, org_id, project_id, name, page_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.OrgID, doc.ProjectID, doc.Name, doc.PageCount, doc.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create document: %w", err)
	}

	rows := make([][]any, len(pages))
	for i, p := range pages {
		rows[i] = []any{doc.ID, p.Number, p.Text}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"document_pages"},
		[]string{"document_id", "page_number", "text"},
		pgx.CopyFromRows(rows)); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert document pages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjectPages(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID) ([]models.DocumentPage, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND org_id = $2)`,
		projectID, orgID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT p.document_id, d.idx, p.page_number, p.text
		 FROM document_pages p
		 JOIN (
		   SELECT id, ROW_NUMBER() OVER (ORDER BY created_at, seq) - 1 AS idx
		   FROM documents WHERE project_id = $1 AND org_id = $2
		 ) d ON d.id = p.document_id
		 ORDER BY d.idx, p.page_number`, projectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list project pages: %w", err)
	}
	defer rows.Close()

	var pages []models.DocumentPage
	for rows.Next() {
		var p models.DocumentPage
		var idx int64
		if err := rows.Scan(&p.DocumentID, &idx, &p.Number, &p.Text); err != nil {
			return nil, fmt.Errorf("scan document page: %w", err)
		}
		p.DocumentIndex = int(idx)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// --- Templates ---

func (s *PostgresStore) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	criteria, err := json.Marshal(tmpl.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (id, org_id, name, criteria, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tmpl.ID, tmpl.OrgID, tmpl.Name, criteria, tmpl.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Template, error) {
	var t models.Template
	var criteria []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, criteria, created_at FROM templates WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&t.ID, &t.OrgID, &t.Name, &criteria, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if err := json.Unmarshal(criteria, &t.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return &t, nil
}

// --- Runs ---

const runColumns = `id, org_id, project_id, kind, status, error_message, queued_at, started_at, finished_at,
	result_id, provider, model, prompt_tokens, completion_tokens, latency_ms, created_by, seq`

func scanRun(row pgx.Row) (*models.Run, error) {
	var r models.Run
	err := row.Scan(&r.ID, &r.OrgID, &r.ProjectID, &r.Kind, &r.Status, &r.ErrorMessage,
		&r.QueuedAt, &r.StartedAt, &r.FinishedAt, &r.ResultID, &r.Provider, &r.Model,
		&r.PromptTokens, &r.CompletionTokens, &r.LatencyMs, &r.CreatedBy, &r.Seq)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// lockOrg serializes admission decisions for one organization until tx ends.
func lockOrg(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, orgID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock organization: %w", err)
	}
	return nil
}

func countRuns(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, statuses ...string) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis_runs WHERE org_id = $1 AND status = ANY($2)`,
		orgID, statuses).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SubmitRun(ctx context.Context, run *models.Run, limit int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submit run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockOrg(ctx, tx, run.OrgID); err != nil {
		return err
	}
	active, err := countRuns(ctx, tx, run.OrgID, models.RunStatusQueued, models.RunStatusRunning)
	if err != nil {
		return err
	}

	if active < limit {
		started := run.QueuedAt
		run.Status = models.RunStatusRunning
		run.StartedAt = &started
	} else {
		run.Status = models.RunStatusQueued
		run.StartedAt = nil
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO analysis_runs (id, org_id, project_id, kind, status, queued_at, started_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`,
		run.ID, run.OrgID, run.ProjectID, run.Kind, run.Status, run.QueuedAt, run.StartedAt, run.CreatedBy,
	).Scan(&run.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submit run: %w", err)
	}
	return nil
}

func (s *PostgresStore) AcquireRun(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string, limit int, now time.Time) (*models.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin acquire run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockOrg(ctx, tx, orgID); err != nil {
		return nil, err
	}

	run, err := scanRun(tx.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs
		 WHERE org_id = $1 AND project_id = $2 AND kind = $3 AND status IN ('queued', 'running')
		 ORDER BY queued_at, seq LIMIT 1`, orgID, projectID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveRun
	}
	if err != nil {
		return nil, fmt.Errorf("find pending run: %w", err)
	}

	if run.Status == models.RunStatusQueued {
		running, err := countRuns(ctx, tx, orgID, models.RunStatusRunning)
		if err != nil {
			return nil, err
		}
		if running >= limit {
			return nil, ErrRunQueued
		}
		run, err = startRun(ctx, tx, run.ID, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit acquire run: %w", err)
	}
	return run, nil
}

func startRun(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (*models.Run, error) {
	run, err := scanRun(tx.QueryRow(ctx,
		`UPDATE analysis_runs SET status = 'running', started_at = $2
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+runColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// beginTerminal opens the transaction for a running -> finished|failed write
// and locks the run's organization.
func (s *PostgresStore) beginTerminal(ctx context.Context, runID uuid.UUID, to string) (pgx.Tx, uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("begin run transition: %w", err)
	}

	var orgID uuid.UUID
	var status string
	err = tx.QueryRow(ctx, `SELECT org_id, status FROM analysis_runs WHERE id = $1`, runID).Scan(&orgID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, uuid.Nil, ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, uuid.Nil, fmt.Errorf("get run status: %w", err)
	}
	if !canTransition(status, to) {
		_ = tx.Rollback(ctx)
		return nil, uuid.Nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, to)
	}
	if err := lockOrg(ctx, tx, orgID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, uuid.Nil, err
	}
	return tx, orgID, nil
}

func telemetryArgs(t *models.RunTelemetry) (string, string, *int, *int, *int64) {
	if t == nil {
		return "", "", nil, nil, nil
	}
	return t.Provider, t.Model, t.PromptTokens, t.CompletionTokens, t.LatencyMs
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID uuid.UUID, result *models.Result, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error) {
	params := applyRunOptions(opts)

	payload, err := encodePayload(result)
	if err != nil {
		return nil, err
	}

	tx, orgID, err := s.beginTerminal(ctx, runID, models.RunStatusFinished)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	provider, model, prompt, completion, latency := telemetryArgs(params.Telemetry)
	tag, err := tx.Exec(ctx,
		`UPDATE analysis_runs SET status = 'finished', finished_at = $2, result_id = $3,
		   provider = $4, model = $5, prompt_tokens = $6, completion_tokens = $7, latency_ms = $8
		 WHERE id = $1 AND status = 'running'`,
		runID, now, result.ID, provider, model, prompt, completion, latency)
	if err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO analysis_results (id, org_id, project_id, run_id, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.OrgID, result.ProjectID, runID, result.Kind, payload, result.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert result: %w", err)
	}

	promoted, err := promoteTx(ctx, tx, orgID, limit, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete run: %w", err)
	}
	return promoted, nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID uuid.UUID, message string, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error) {
	params := applyRunOptions(opts)

	tx, orgID, err := s.beginTerminal(ctx, runID, models.RunStatusFailed)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	provider, model, prompt, completion, latency := telemetryArgs(params.Telemetry)
	tag, err := tx.Exec(ctx,
		`UPDATE analysis_runs SET status = 'failed', finished_at = $2, error_message = $3,
		   provider = $4, model = $5, prompt_tokens = $6, completion_tokens = $7, latency_ms = $8
		 WHERE id = $1 AND status = 'running'`,
		runID, now, message, provider, model, prompt, completion, latency)
	if err != nil {
		return nil, fmt.Errorf("fail run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvalidTransition
	}

	promoted, err := promoteTx(ctx, tx, orgID, limit, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit fail run: %w", err)
	}
	return promoted, nil
}

func (s *PostgresStore) PromoteNext(ctx context.Context, orgID uuid.UUID, limit int, now time.Time) ([]*models.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockOrg(ctx, tx, orgID); err != nil {
		return nil, err
	}
	promoted, err := promoteTx(ctx, tx, orgID, limit, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promote: %w", err)
	}
	return promoted, nil
}

// promoteTx expects the organization row to be locked by tx.
func promoteTx(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, limit int, now time.Time) ([]*models.Run, error) {
	running, err := countRuns(ctx, tx, orgID, models.RunStatusRunning)
	if err != nil {
		return nil, err
	}
	if running >= limit {
		return nil, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id FROM analysis_runs WHERE org_id = $1 AND status = 'queued'
		 ORDER BY queued_at, seq LIMIT $2`, orgID, limit-running)
	if err != nil {
		return nil, fmt.Errorf("find queued runs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan queued runs: %w", err)
	}

	promoted := make([]*models.Run, 0, len(ids))
	for _, id := range ids {
		run, err := startRun(ctx, tx, id, now)
		if err != nil {
			return nil, err
		}
		promoted = append(promoted, run)
	}
	return promoted, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE id = $1 AND org_id = $2`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRunningRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM analysis_runs
		 WHERE status = 'running'
		 ORDER BY queued_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	defer rows.Close()

	running := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan running run: %w", err)
		}
		running = append(running, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	return running, nil
}

func (s *PostgresStore) GetLatestRun(ctx context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string) (*models.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs
		 WHERE org_id = $1 AND project_id = $2 AND kind = $3
		 ORDER BY queued_at DESC, seq DESC LIMIT 1`, orgID, projectID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return run, nil
}

// --- Results ---

func encodePayload(result *models.Result) ([]byte, error) {
	var v any
	switch result.Kind {
	case models.RunKindStandard:
		v = result.Standard
	case models.RunKindCriteria:
		v = result.Criteria
	default:
		return nil, fmt.Errorf("unknown result kind %q", result.Kind)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result payload: %w", err)
	}
	return payload, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Result, error) {
	var r models.Result
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, project_id, run_id, kind, payload, created_at
		 FROM analysis_results WHERE id = $1 AND org_id = $2`, id, orgID,
	).Scan(&r.ID, &r.OrgID, &r.ProjectID, &r.RunID, &r.Kind, &payload, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	switch r.Kind {
	case models.RunKindStandard:
		r.Standard = &models.StandardResult{}
		err = json.Unmarshal(payload, r.Standard)
	case models.RunKindCriteria:
		r.Criteria = &models.CriteriaResult{}
		err = json.Unmarshal(payload, r.Criteria)
	default:
		err = fmt.Errorf("unknown result kind %q", r.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
