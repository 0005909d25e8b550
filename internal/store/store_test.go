package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture is a store plus an organization nobody else in the test uses.
type fixture struct {
	s     store.Store
	orgID uuid.UUID
}

type fixtureFunc func(t *testing.T) fixture

// runStoreSuite exercises behavior every Store implementation must share.
func runStoreSuite(t *testing.T, newFixture fixtureFunc) {
	tests := map[string]func(t *testing.T, f fixture){
		"APIKeyLifecycle":           testAPIKeyLifecycle,
		"APIKeyDuplicateID":         testAPIKeyDuplicateID,
		"ProjectScopedByOrg":        testProjectScopedByOrg,
		"ProjectTemplate":           testProjectTemplate,
		"PagesOrdered":              testPagesOrdered,
		"DuplicatePageNumber":       testDuplicatePageNumber,
		"TemplateRoundtrip":         testTemplateRoundtrip,
		"SubmitRespectsLimit":       testSubmitRespectsLimit,
		"ConcurrentSubmits":         testConcurrentSubmits,
		"AcquireNoActiveRun":        testAcquireNoActiveRun,
		"AcquireQueuedAtCapacity":   testAcquireQueuedAtCapacity,
		"AcquireReturnsRunning":     testAcquireReturnsRunning,
		"CompletePromotesFIFO":      testCompletePromotesFIFO,
		"FailRecordsMessage":        testFailRecordsMessage,
		"InvalidTransitions":        testInvalidTransitions,
		"PromoteNextUpToLimit":      testPromoteNextUpToLimit,
		"ListRunningRuns":           testListRunningRuns,
		"FIFOTieBreakByInsertion":   testFIFOTieBreakByInsertion,
		"LatestRunAndResult":        testLatestRunAndResult,
		"CriteriaResultRoundtrip":   testCriteriaResultRoundtrip,
		"DefaultOrganizationExists": testDefaultOrganization,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t))
		})
	}
}

// --- helpers ---

func baseTime() time.Time {
	return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}

func createProject(t *testing.T, f fixture) *models.Project {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Project{
		ID:        uuid.New(),
		OrgID:     f.orgID,
		Name:      "Bridge renovation " + uuid.NewString()[:4],
		CreatedBy: "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.s.CreateProject(context.Background(), p))
	return p
}

func submit(t *testing.T, f fixture, projectID uuid.UUID, kind string, queuedAt time.Time, limit int) *models.Run {
	t.Helper()
	run := &models.Run{
		ID:        uuid.New(),
		OrgID:     f.orgID,
		ProjectID: projectID,
		Kind:      kind,
		QueuedAt:  queuedAt,
		CreatedBy: "tester",
	}
	require.NoError(t, f.s.SubmitRun(context.Background(), run, limit))
	return run
}

func standardResult(run *models.Run, summary string) *models.Result {
	return &models.Result{
		ID:        uuid.New(),
		OrgID:     run.OrgID,
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		Kind:      models.RunKindStandard,
		Standard: &models.StandardResult{
			Summary:       summary,
			Milestones:    []models.Milestone{},
			Requirements:  []models.Requirement{},
			OpenQuestions: []models.OpenQuestion{},
			Metadata:      []models.MetadataEntry{},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }

// --- Organizations ---

func testDefaultOrganization(t *testing.T, f fixture) {
	org, err := f.s.GetDefaultOrganization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", org.Name)
	assert.NotEqual(t, uuid.Nil, org.ID)
}

// --- API Keys ---

func testAPIKeyLifecycle(t *testing.T, f fixture) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	prefix := "tk_" + uuid.NewString()[:5]

	key := &models.APIKey{
		ID:        uuid.New(),
		OrgID:     f.orgID,
		Name:      "ci",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: prefix,
		Scopes:    []string{models.ScopeRead, models.ScopeWrite},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.s.CreateAPIKey(ctx, key))

	keys, err := f.s.GetAPIKeyByPrefix(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"read", "write"}, keys[0].Scopes)

	require.NoError(t, f.s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err = f.s.GetAPIKeyByPrefix(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	listed, err := f.s.ListAPIKeys(ctx, f.orgID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	assert.ErrorIs(t, f.s.RevokeAPIKey(ctx, key.ID, uuid.New()), store.ErrNotFound)
	require.NoError(t, f.s.RevokeAPIKey(ctx, key.ID, f.orgID))
	assert.ErrorIs(t, f.s.RevokeAPIKey(ctx, key.ID, f.orgID), store.ErrNotFound)

	listed, err = f.s.ListAPIKeys(ctx, f.orgID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	keys, err = f.s.GetAPIKeyByPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testAPIKeyDuplicateID(t *testing.T, f fixture) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.New()

	require.NoError(t, f.s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, OrgID: f.orgID, Name: "dup1", KeyHash: "h1", KeyPrefix: "tk_dup1",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}))
	err := f.s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, OrgID: f.orgID, Name: "dup2", KeyHash: "h2", KeyPrefix: "tk_dup2",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Projects & templates ---

func testProjectScopedByOrg(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)

	got, err := f.s.GetProject(ctx, p.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Nil(t, got.TemplateID)

	_, err = f.s.GetProject(ctx, p.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.s.GetProject(ctx, uuid.New(), f.orgID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testProjectTemplate(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)

	assert.ErrorIs(t, f.s.SetProjectTemplate(ctx, p.ID, f.orgID, uuid.New()), store.ErrNotFound)

	tmpl := &models.Template{
		ID:        uuid.New(),
		OrgID:     f.orgID,
		Name:      "Suitability",
		Criteria:  []models.Criterion{{Key: "iso", Title: "ISO 9001", AnswerType: models.AnswerTypeBoolean, Weight: 10}},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, f.s.CreateTemplate(ctx, tmpl))
	require.NoError(t, f.s.SetProjectTemplate(ctx, p.ID, f.orgID, tmpl.ID))

	got, err := f.s.GetProject(ctx, p.ID, f.orgID)
	require.NoError(t, err)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, tmpl.ID, *got.TemplateID)
}

func testTemplateRoundtrip(t *testing.T, f fixture) {
	ctx := context.Background()
	desc := "Company holds a valid certificate"
	tmpl := &models.Template{
		ID:    uuid.New(),
		OrgID: f.orgID,
		Name:  "Eligibility",
		Criteria: []models.Criterion{
			{Key: "iso", Title: "ISO 9001", Description: &desc, AnswerType: models.AnswerTypeBoolean, Weight: 30, Required: true, Keywords: []string{"ISO", "9001"}},
			{Key: "refs", Title: "References", AnswerType: models.AnswerTypeText, Weight: 70},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, f.s.CreateTemplate(ctx, tmpl))

	got, err := f.s.GetTemplate(ctx, tmpl.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Criteria, got.Criteria)

	_, err = f.s.GetTemplate(ctx, tmpl.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Documents ---

func testPagesOrdered(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	docA := &models.Document{ID: uuid.New(), OrgID: f.orgID, ProjectID: p.ID, Name: "a.pdf", CreatedAt: t0}
	require.NoError(t, f.s.CreateDocument(ctx, docA, []models.DocumentPage{
		{Number: 3, Text: "a3"}, {Number: 1, Text: "a1"}, {Number: 2, Text: "a2"},
	}))
	assert.Equal(t, 3, docA.PageCount)

	docB := &models.Document{ID: uuid.New(), OrgID: f.orgID, ProjectID: p.ID, Name: "b.pdf", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, f.s.CreateDocument(ctx, docB, []models.DocumentPage{
		{Number: 2, Text: "b2"}, {Number: 1, Text: "b1"},
	}))

	pages, err := f.s.ListProjectPages(ctx, f.orgID, p.ID)
	require.NoError(t, err)

	var texts []string
	for _, pg := range pages {
		texts = append(texts, pg.Text)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2"}, texts)
	assert.Equal(t, 0, pages[0].DocumentIndex)
	assert.Equal(t, 1, pages[4].DocumentIndex)
	assert.Equal(t, docB.ID, pages[4].DocumentID)

	empty := createProject(t, f)
	pages, err = f.s.ListProjectPages(ctx, f.orgID, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	_, err = f.s.ListProjectPages(ctx, uuid.New(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicatePageNumber(t *testing.T, f fixture) {
	p := createProject(t, f)
	doc := &models.Document{ID: uuid.New(), OrgID: f.orgID, ProjectID: p.ID, Name: "dup.pdf", CreatedAt: time.Now().UTC()}
	err := f.s.CreateDocument(context.Background(), doc, []models.DocumentPage{
		{Number: 1, Text: "x"}, {Number: 1, Text: "y"},
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Runs ---

func testSubmitRespectsLimit(t *testing.T, f fixture) {
	p := createProject(t, f)
	t0 := baseTime()

	first := submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	assert.Equal(t, models.RunStatusRunning, first.Status)
	require.NotNil(t, first.StartedAt)
	assert.True(t, first.StartedAt.Equal(t0))

	second := submit(t, f, p.ID, models.RunKindCriteria, t0.Add(time.Second), 1)
	assert.Equal(t, models.RunStatusQueued, second.Status)
	assert.Nil(t, second.StartedAt)
	assert.Greater(t, second.Seq, first.Seq)

	// Queued runs count against the limit too.
	other := createProject(t, f)
	third := submit(t, f, other.ID, models.RunKindStandard, t0.Add(2*time.Second), 2)
	assert.Equal(t, models.RunStatusQueued, third.Status)
}

func testConcurrentSubmits(t *testing.T, f fixture) {
	p := createProject(t, f)
	t0 := baseTime()

	const n = 12
	var wg sync.WaitGroup
	runs := make([]*models.Run, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i] = &models.Run{
				ID: uuid.New(), OrgID: f.orgID, ProjectID: p.ID, Kind: models.RunKindStandard,
				QueuedAt: t0.Add(time.Duration(i) * time.Millisecond), CreatedBy: "tester",
			}
			errs[i] = f.s.SubmitRun(context.Background(), runs[i], 1)
		}(i)
	}
	wg.Wait()

	running := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if runs[i].Status == models.RunStatusRunning {
			running++
		}
	}
	assert.Equal(t, 1, running)
}

func testAcquireNoActiveRun(t *testing.T, f fixture) {
	p := createProject(t, f)
	_, err := f.s.AcquireRun(context.Background(), f.orgID, p.ID, models.RunKindStandard, 1, baseTime())
	assert.ErrorIs(t, err, store.ErrNoActiveRun)
}

func testAcquireQueuedAtCapacity(t *testing.T, f fixture) {
	a := createProject(t, f)
	b := createProject(t, f)
	t0 := baseTime()

	submit(t, f, a.ID, models.RunKindStandard, t0, 1)
	queued := submit(t, f, b.ID, models.RunKindStandard, t0.Add(time.Second), 1)
	require.Equal(t, models.RunStatusQueued, queued.Status)

	_, err := f.s.AcquireRun(context.Background(), f.orgID, b.ID, models.RunKindStandard, 1, t0.Add(2*time.Second))
	assert.ErrorIs(t, err, store.ErrRunQueued)

	got, err := f.s.GetRun(context.Background(), queued.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, got.Status)

	// With room under the limit the queued run is promoted on acquire.
	acquired, err := f.s.AcquireRun(context.Background(), f.orgID, b.ID, models.RunKindStandard, 2, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, queued.ID, acquired.ID)
	assert.Equal(t, models.RunStatusRunning, acquired.Status)
	require.NotNil(t, acquired.StartedAt)
	assert.True(t, acquired.StartedAt.Equal(t0.Add(3*time.Second)))
}

func testAcquireReturnsRunning(t *testing.T, f fixture) {
	p := createProject(t, f)
	run := submit(t, f, p.ID, models.RunKindStandard, baseTime(), 1)

	got, err := f.s.AcquireRun(context.Background(), f.orgID, p.ID, models.RunKindStandard, 1, baseTime().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.True(t, got.StartedAt.Equal(baseTime()))

	_, err = f.s.AcquireRun(context.Background(), f.orgID, p.ID, models.RunKindCriteria, 1, baseTime())
	assert.ErrorIs(t, err, store.ErrNoActiveRun)
}

func testCompletePromotesFIFO(t *testing.T, f fixture) {
	ctx := context.Background()
	a := createProject(t, f)
	b := createProject(t, f)
	t0 := baseTime()

	r1 := submit(t, f, a.ID, models.RunKindStandard, t0, 1)
	r2 := submit(t, f, b.ID, models.RunKindStandard, t0.Add(time.Second), 1)
	r3 := submit(t, f, a.ID, models.RunKindCriteria, t0.Add(2*time.Second), 1)

	result := standardResult(r1, "done")
	finishedAt := t0.Add(time.Minute)
	promoted, err := f.s.CompleteRun(ctx, r1.ID, result, 1, finishedAt, store.WithTelemetry(models.RunTelemetry{
		Provider: "mock", Model: "mock-v1", PromptTokens: intPtr(100), CompletionTokens: intPtr(40), LatencyMs: int64Ptr(250),
	}))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, r2.ID, promoted[0].ID)
	assert.Equal(t, models.RunStatusRunning, promoted[0].Status)
	assert.True(t, promoted[0].StartedAt.Equal(finishedAt))

	done, err := f.s.GetRun(ctx, r1.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, done.Status)
	require.NotNil(t, done.ResultID)
	assert.Equal(t, result.ID, *done.ResultID)
	assert.True(t, done.FinishedAt.Equal(finishedAt))
	assert.Nil(t, done.ErrorMessage)
	assert.Equal(t, "mock", done.Provider)
	assert.Equal(t, 100, *done.PromptTokens)
	assert.Equal(t, int64(250), *done.LatencyMs)

	still, err := f.s.GetRun(ctx, r3.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, still.Status)

	stored, err := f.s.GetResult(ctx, result.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, stored.RunID)
	require.NotNil(t, stored.Standard)
	assert.Equal(t, "done", stored.Standard.Summary)
}

func testFailRecordsMessage(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	r1 := submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	r2 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(time.Second), 1)

	promoted, err := f.s.FailRun(ctx, r1.ID, "model response is not valid JSON", 1, t0.Add(time.Minute),
		store.WithTelemetry(models.RunTelemetry{Provider: "mock", Model: "mock-v1"}))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, r2.ID, promoted[0].ID)

	failed, err := f.s.GetRun(ctx, r1.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "model response is not valid JSON", *failed.ErrorMessage)
	assert.Nil(t, failed.ResultID)
	assert.NotNil(t, failed.StartedAt)
	assert.NotNil(t, failed.FinishedAt)
	assert.Equal(t, "mock-v1", failed.Model)
}

func testInvalidTransitions(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	r1 := submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	r2 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(time.Second), 1)

	// Queued runs cannot finish or fail.
	_, err := f.s.CompleteRun(ctx, r2.ID, standardResult(r2, "x"), 1, t0)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	_, err = f.s.FailRun(ctx, r2.ID, "boom", 1, t0)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = f.s.FailRun(ctx, r1.ID, "boom", 1, t0)
	require.NoError(t, err)

	// Terminal runs never regress.
	_, err = f.s.FailRun(ctx, r1.ID, "again", 1, t0)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	_, err = f.s.CompleteRun(ctx, r1.ID, standardResult(r1, "late"), 1, t0)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := f.s.GetRun(ctx, r1.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "boom", *got.ErrorMessage)

	_, err = f.s.FailRun(ctx, uuid.New(), "missing", 1, t0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListRunningRuns(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	r1 := submit(t, f, p.ID, models.RunKindStandard, t0, 2)
	r2 := submit(t, f, p.ID, models.RunKindCriteria, t0.Add(time.Second), 2)
	r3 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(2*time.Second), 2)
	require.Equal(t, models.RunStatusQueued, r3.Status)

	// Other organizations may share the store, so only this one's runs count.
	mine := func() []uuid.UUID {
		all, err := f.s.ListRunningRuns(ctx)
		require.NoError(t, err)
		var ids []uuid.UUID
		for _, r := range all {
			if r.OrgID == f.orgID {
				assert.Equal(t, models.RunStatusRunning, r.Status)
				ids = append(ids, r.ID)
			}
		}
		return ids
	}
	assert.Equal(t, []uuid.UUID{r1.ID, r2.ID}, mine())

	_, err := f.s.FailRun(ctx, r1.ID, "interrupted", 2, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r2.ID, r3.ID}, mine())
}

func testPromoteNextUpToLimit(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	r2 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(time.Second), 1)
	r3 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(2*time.Second), 1)
	r4 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(3*time.Second), 1)

	// Something is running: no-op under a limit of one.
	promoted, err := f.s.PromoteNext(ctx, f.orgID, 1, t0)
	require.NoError(t, err)
	assert.Empty(t, promoted)

	promoted, err = f.s.PromoteNext(ctx, f.orgID, 3, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, r2.ID, promoted[0].ID)
	assert.Equal(t, r3.ID, promoted[1].ID)

	last, err := f.s.GetRun(ctx, r4.ID, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, last.Status)
}

func testFIFOTieBreakByInsertion(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	r1 := submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	tieA := submit(t, f, p.ID, models.RunKindCriteria, t0.Add(time.Second), 1)
	tieB := submit(t, f, p.ID, models.RunKindStandard, t0.Add(time.Second), 1)

	promoted, err := f.s.FailRun(ctx, r1.ID, "boom", 1, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, tieA.ID, promoted[0].ID)

	promoted, err = f.s.FailRun(ctx, tieA.ID, "boom", 1, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, tieB.ID, promoted[0].ID)
}

func testLatestRunAndResult(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	t0 := baseTime()

	_, err := f.s.GetLatestRun(ctx, f.orgID, p.ID, models.RunKindStandard)
	assert.ErrorIs(t, err, store.ErrNotFound)

	r1 := submit(t, f, p.ID, models.RunKindStandard, t0, 1)
	_, err = f.s.CompleteRun(ctx, r1.ID, standardResult(r1, "first"), 1, t0.Add(time.Minute))
	require.NoError(t, err)
	r2 := submit(t, f, p.ID, models.RunKindStandard, t0.Add(2*time.Minute), 1)

	latest, err := f.s.GetLatestRun(ctx, f.orgID, p.ID, models.RunKindStandard)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)

	_, err = f.s.GetLatestRun(ctx, f.orgID, p.ID, models.RunKindCriteria)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.s.GetResult(ctx, uuid.New(), f.orgID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCriteriaResultRoundtrip(t *testing.T, f fixture) {
	ctx := context.Background()
	p := createProject(t, f)
	run := submit(t, f, p.ID, models.RunKindCriteria, baseTime(), 1)

	comment := "Certificate on page 4"
	answer := "true"
	result := &models.Result{
		ID:        uuid.New(),
		OrgID:     f.orgID,
		ProjectID: p.ID,
		RunID:     run.ID,
		Kind:      models.RunKindCriteria,
		Criteria: &models.CriteriaResult{
			TemplateID: uuid.New(),
			Items: []models.CriterionVerdict{{
				CriterionKey: "iso",
				Title:        "ISO 9001",
				Status:       models.VerdictFound,
				Comment:      &comment,
				Answer:       &answer,
				Weight:       30,
				Citations:    []models.Citation{{Page: 4, Quote: "ISO 9001:2015"}},
			}},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err := f.s.CompleteRun(ctx, run.ID, result, 1, baseTime().Add(time.Minute))
	require.NoError(t, err)

	got, err := f.s.GetResult(ctx, result.ID, f.orgID)
	require.NoError(t, err)
	require.NotNil(t, got.Criteria)
	assert.Nil(t, got.Standard)
	assert.Equal(t, result.Criteria.Items, got.Criteria.Items)
	assert.Equal(t, result.Criteria.TemplateID, got.Criteria.TemplateID)
}

// --- MemoryStore ---

func newMemoryFixture(t *testing.T) fixture {
	t.Helper()
	s := store.NewMemoryStore()
	org := &models.Organization{ID: uuid.New(), Name: "acme-" + uuid.NewString()[:6], CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return fixture{s: s, orgID: org.ID}
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, newMemoryFixture)
}

func TestMemoryStore_Ping(t *testing.T) {
	assert.NoError(t, store.NewMemoryStore().Ping(context.Background()))
}
