package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory. It backs local development
// (STORE_BACKEND=memory) and the service tests. A single mutex serializes every
// operation, which gives run admission the same atomicity as the row lock used
// by PostgresStore.
type MemoryStore struct {
	mu sync.Mutex

	defaultOrg models.Organization
	orgs       map[uuid.UUID]models.Organization
	apiKeys    map[uuid.UUID]*models.APIKey
	projects   map[uuid.UUID]*models.Project
	documents  map[uuid.UUID][]*models.Document // by project, creation order
	pages      map[uuid.UUID][]models.DocumentPage
	templates  map[uuid.UUID]*models.Template
	runs       map[uuid.UUID]*models.Run
	results    map[uuid.UUID]*models.Result
	seq        int64
}

// NewMemoryStore creates an empty store seeded with the default organization.
func NewMemoryStore() *MemoryStore {
	now := time.Now().UTC()
	def := models.Organization{ID: uuid.New(), Name: "default", CreatedAt: now, UpdatedAt: now}
	return &MemoryStore{
		defaultOrg: def,
		orgs:       map[uuid.UUID]models.Organization{def.ID: def},
		apiKeys:    make(map[uuid.UUID]*models.APIKey),
		projects:   make(map[uuid.UUID]*models.Project),
		documents:  make(map[uuid.UUID][]*models.Document),
		pages:      make(map[uuid.UUID][]models.DocumentPage),
		templates:  make(map[uuid.UUID]*models.Template),
		runs:       make(map[uuid.UUID]*models.Run),
		results:    make(map[uuid.UUID]*models.Result),
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Organizations ---

func (s *MemoryStore) GetDefaultOrganization(_ context.Context) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org := s.defaultOrg
	return &org, nil
}

// CreateOrganization adds an organization. Postgres deployments provision
// organizations through migrations.
func (s *MemoryStore) CreateOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; ok {
		return ErrDuplicateKey
	}
	s.orgs[org.ID] = *org
	return nil
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return ErrDuplicateKey
	}
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.OrgID == orgID && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.OrgID != orgID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	k.UpdatedAt = now
	return nil
}

// --- Projects ---

func (s *MemoryStore) CreateProject(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; ok {
		return ErrDuplicateKey
	}
	cp := *project
	s.projects[project.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.OrgID != orgID {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SetProjectTemplate(_ context.Context, id uuid.UUID, orgID uuid.UUID, templateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.OrgID != orgID {
		return ErrNotFound
	}
	if t, ok := s.templates[templateID]; !ok || t.OrgID != orgID {
		return ErrNotFound
	}
	p.TemplateID = &templateID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Documents ---

func (s *MemoryStore) CreateDocument(_ context.Context, doc *models.Document, pages []models.DocumentPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[doc.ProjectID]
	if !ok || p.OrgID != doc.OrgID {
		return ErrNotFound
	}
	if _, ok := s.pages[doc.ID]; ok {
		return ErrDuplicateKey
	}
	seen := make(map[int]bool, len(pages))
	for _, page := range pages {
		if seen[page.Number] {
			return ErrDuplicateKey
		}
		seen[page.Number] = true
	}

	cp := *doc
	cp.PageCount = len(pages)
	s.documents[doc.ProjectID] = append(s.documents[doc.ProjectID], &cp)

	stored := make([]models.DocumentPage, len(pages))
	for i, page := range pages {
		page.DocumentID = doc.ID
		stored[i] = page
	}
	s.pages[doc.ID] = stored
	doc.PageCount = len(pages)
	return nil
}

func (s *MemoryStore) ListProjectPages(_ context.Context, orgID uuid.UUID, projectID uuid.UUID) ([]models.DocumentPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OrgID != orgID {
		return nil, ErrNotFound
	}

	var out []models.DocumentPage
	for idx, doc := range s.documents[projectID] {
		for _, page := range s.pages[doc.ID] {
			page.DocumentIndex = idx
			out = append(out, page)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DocumentIndex != out[j].DocumentIndex {
			return out[i].DocumentIndex < out[j].DocumentIndex
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// --- Templates ---

func (s *MemoryStore) CreateTemplate(_ context.Context, tmpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[tmpl.ID]; ok {
		return ErrDuplicateKey
	}
	cp := *tmpl
	cp.Criteria = append([]models.Criterion(nil), tmpl.Criteria...)
	s.templates[tmpl.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.OrgID != orgID {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Criteria = append([]models.Criterion(nil), t.Criteria...)
	return &cp, nil
}

// --- Runs ---

func (s *MemoryStore) SubmitRun(_ context.Context, run *models.Run, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return ErrDuplicateKey
	}

	active := 0
	for _, r := range s.runs {
		if r.OrgID == run.OrgID && r.Active() {
			active++
		}
	}

	s.seq++
	run.Seq = s.seq
	if active < limit {
		started := run.QueuedAt
		run.Status = models.RunStatusRunning
		run.StartedAt = &started
	} else {
		run.Status = models.RunStatusQueued
		run.StartedAt = nil
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) AcquireRun(_ context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string, limit int, now time.Time) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.Run
	for _, r := range s.runs {
		if r.OrgID == orgID && r.ProjectID == projectID && r.Kind == kind && r.Active() {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoActiveRun
	}
	sortFIFO(pending)

	oldest := pending[0]
	if oldest.Status == models.RunStatusQueued {
		if s.runningCount(orgID) >= limit {
			return nil, ErrRunQueued
		}
		s.start(oldest, now)
	}
	return copyRun(oldest), nil
}

func (s *MemoryStore) CompleteRun(_ context.Context, runID uuid.UUID, result *models.Result, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error) {
	params := applyRunOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	if !canTransition(r.Status, models.RunStatusFinished) {
		return nil, ErrInvalidTransition
	}
	if _, ok := s.results[result.ID]; ok {
		return nil, ErrDuplicateKey
	}

	cp := *result
	s.results[result.ID] = &cp

	finished := now
	r.Status = models.RunStatusFinished
	r.FinishedAt = &finished
	r.ResultID = &cp.ID
	applyTelemetry(r, params.Telemetry)

	return s.promote(r.OrgID, limit, now), nil
}

func (s *MemoryStore) FailRun(_ context.Context, runID uuid.UUID, message string, limit int, now time.Time, opts ...RunUpdateOption) ([]*models.Run, error) {
	params := applyRunOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	if !canTransition(r.Status, models.RunStatusFailed) {
		return nil, ErrInvalidTransition
	}

	finished := now
	r.Status = models.RunStatusFailed
	r.FinishedAt = &finished
	r.ErrorMessage = &message
	applyTelemetry(r, params.Telemetry)

	return s.promote(r.OrgID, limit, now), nil
}

func (s *MemoryStore) PromoteNext(_ context.Context, orgID uuid.UUID, limit int, now time.Time) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promote(orgID, limit, now), nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.OrgID != orgID {
		return nil, ErrNotFound
	}
	return copyRun(r), nil
}

func (s *MemoryStore) ListRunningRuns(_ context.Context) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := []*models.Run{}
	for _, r := range s.runs {
		if r.Status == models.RunStatusRunning {
			running = append(running, copyRun(r))
		}
	}
	sortFIFO(running)
	return running, nil
}

func (s *MemoryStore) GetLatestRun(_ context.Context, orgID uuid.UUID, projectID uuid.UUID, kind string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Run
	for _, r := range s.runs {
		if r.OrgID != orgID || r.ProjectID != projectID || r.Kind != kind {
			continue
		}
		if latest == nil || runBefore(latest, r) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyRun(latest), nil
}

func (s *MemoryStore) GetResult(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok || r.OrgID != orgID {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// promote must be called with s.mu held.
func (s *MemoryStore) promote(orgID uuid.UUID, limit int, now time.Time) []*models.Run {
	running := s.runningCount(orgID)
	if running >= limit {
		return nil
	}

	var queued []*models.Run
	for _, r := range s.runs {
		if r.OrgID == orgID && r.Status == models.RunStatusQueued {
			queued = append(queued, r)
		}
	}
	sortFIFO(queued)

	var promoted []*models.Run
	for _, r := range queued {
		if running >= limit {
			break
		}
		s.start(r, now)
		running++
		promoted = append(promoted, copyRun(r))
	}
	return promoted
}

func (s *MemoryStore) runningCount(orgID uuid.UUID) int {
	n := 0
	for _, r := range s.runs {
		if r.OrgID == orgID && r.Status == models.RunStatusRunning {
			n++
		}
	}
	return n
}

func (s *MemoryStore) start(r *models.Run, now time.Time) {
	started := now
	r.Status = models.RunStatusRunning
	r.StartedAt = &started
}

func applyTelemetry(r *models.Run, t *models.RunTelemetry) {
	if t == nil {
		return
	}
	r.Provider = t.Provider
	r.Model = t.Model
	r.PromptTokens = t.PromptTokens
	r.CompletionTokens = t.CompletionTokens
	r.LatencyMs = t.LatencyMs
}

// runBefore orders runs FIFO by queued_at, then by insertion sequence.
func runBefore(a, b *models.Run) bool {
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	return a.Seq < b.Seq
}

func sortFIFO(runs []*models.Run) {
	sort.Slice(runs, func(i, j int) bool { return runBefore(runs[i], runs[j]) })
}

func copyRun(r *models.Run) *models.Run {
	cp := *r
	return &cp
}

var _ Store = (*MemoryStore)(nil)
