package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/admission"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/cache"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownKind   = errors.New("unknown analysis kind")
	ErrRunInProgress = errors.New("analysis run is already being processed")
)

const (
	DefaultPagesPerChunk     = 10
	DefaultTemplateCacheSize = 256

	maxErrorMessageBytes = 1000
	failureWriteTimeout  = 10 * time.Second
	resultCacheTTL       = time.Hour
)

// Config tunes run execution.
type Config struct {
	PagesPerChunk     int
	EvalConcurrency   int
	TemplateCacheSize int
}

// Outcome is what a successfully executed run produced.
type Outcome struct {
	RunID    uuid.UUID `json:"run_id"`
	Status   string    `json:"status"`
	ResultID uuid.UUID `json:"result_id"`
}

// LatestRun is the newest run of a project and kind with its result, if any.
// Both fields are nil when the project has no run of that kind.
type LatestRun struct {
	Run    *models.Run    `json:"run"`
	Result *models.Result `json:"result"`
}

// Service drives analysis runs from admission to a stored result.
type Service struct {
	store     store.Store
	admission *admission.Controller
	evaluator *Evaluator
	cache     cache.Cache
	templates *lru.Cache[uuid.UUID, *models.Template]

	providerName    string
	pagesPerChunk   int
	evalConcurrency int
	now             func() time.Time
	manual          bool

	// base parents dispatched runs; stop cancels it on shutdown.
	base     context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	stopped  bool
	inflight sync.Map
	wg       sync.WaitGroup
}

type Option func(*Service)

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithManualExecution disables background dispatch. Admitted runs then wait
// for RunStandardAnalysis or RunCriteriaAnalysis.
func WithManualExecution() Option {
	return func(s *Service) {
		s.manual = true
	}
}

// NewService wires a Service. rc may be nil.
func NewService(s store.Store, ctrl *admission.Controller, caller JSONCaller, rc cache.Cache, cfg Config, opts ...Option) (*Service, error) {
	if cfg.PagesPerChunk < 1 {
		cfg.PagesPerChunk = DefaultPagesPerChunk
	}
	if cfg.EvalConcurrency < 1 {
		cfg.EvalConcurrency = 1
	}
	if cfg.TemplateCacheSize < 1 {
		cfg.TemplateCacheSize = DefaultTemplateCacheSize
	}
	templates, err := lru.New[uuid.UUID, *models.Template](cfg.TemplateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}

	base, stop := context.WithCancel(context.Background())
	svc := &Service{
		store:           s,
		admission:       ctrl,
		evaluator:       NewEvaluator(caller),
		cache:           rc,
		templates:       templates,
		pagesPerChunk:   cfg.PagesPerChunk,
		evalConcurrency: cfg.EvalConcurrency,
		now:             time.Now,
		base:            base,
		stop:            stop,
	}
	if named, ok := caller.(interface{ ProviderName() string }); ok {
		svc.providerName = named.ProviderName()
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// --- Submission ---

// SubmitRun admits a run for the project. Requests that could never succeed
// are rejected with ErrNoContent or ErrMissingTemplate before a run exists.
// A run admitted as running starts executing in the background.
func (s *Service) SubmitRun(ctx context.Context, orgID, projectID uuid.UUID, kind, createdBy string) (*models.Run, error) {
	if !models.ValidRunKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := s.precheck(ctx, orgID, projectID, kind); err != nil {
		return nil, err
	}

	run, err := s.admission.Submit(ctx, orgID, projectID, kind, createdBy)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusRunning {
		s.dispatch(run)
	}
	return run, nil
}

// precheck rejects runs that have nothing to analyze.
func (s *Service) precheck(ctx context.Context, orgID, projectID uuid.UUID, kind string) error {
	project, err := s.store.GetProject(ctx, projectID, orgID)
	if err != nil {
		return err
	}
	if kind == models.RunKindCriteria {
		if project.TemplateID == nil {
			return ErrMissingTemplate
		}
		if _, err := s.template(ctx, orgID, *project.TemplateID); err != nil {
			return err
		}
	}
	pages, err := s.store.ListProjectPages(ctx, orgID, projectID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return ErrNoContent
	}
	return nil
}

// --- Execution ---

// RunStandardAnalysis executes the project's pending standard run.
func (s *Service) RunStandardAnalysis(ctx context.Context, orgID, projectID uuid.UUID) (*Outcome, error) {
	return s.acquireAndExecute(ctx, orgID, projectID, models.RunKindStandard)
}

// RunCriteriaAnalysis executes the project's pending criteria run.
func (s *Service) RunCriteriaAnalysis(ctx context.Context, orgID, projectID uuid.UUID) (*Outcome, error) {
	return s.acquireAndExecute(ctx, orgID, projectID, models.RunKindCriteria)
}

func (s *Service) acquireAndExecute(ctx context.Context, orgID, projectID uuid.UUID, kind string) (*Outcome, error) {
	if err := s.precheck(ctx, orgID, projectID, kind); err != nil {
		return nil, err
	}
	run, err := s.admission.Acquire(ctx, orgID, projectID, kind)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, run)
}

// Wait blocks until every dispatched run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// ResumeRunning dispatches runs the store reports as running, such as runs
// promoted while a previous process was shutting down. Call it once at
// startup, before any other process can be executing them.
func (s *Service) ResumeRunning(ctx context.Context) (int, error) {
	runs, err := s.store.ListRunningRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running runs: %w", err)
	}
	for _, r := range runs {
		slog.Info("resuming analysis run", "run_id", r.ID, "org_id", r.OrgID, "kind", r.Kind)
	}
	s.dispatchAll(runs)
	return len(runs), nil
}

// Shutdown cancels dispatched runs and waits for them to record their
// outcome, or for ctx to expire. Runs promoted from then on stay running in
// the store for ResumeRunning.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) dispatch(run *models.Run) {
	if s.manual {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		slog.Info("analysis run left for resumption", "run_id", run.ID, "org_id", run.OrgID)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in run dispatcher", "run_id", run.ID, "panic", r)
			}
		}()

		if _, err := s.execute(s.base, run); err != nil && !errors.Is(err, ErrRunInProgress) {
			slog.Warn("dispatched analysis run did not finish",
				"run_id", run.ID,
				"org_id", run.OrgID,
				"kind", run.Kind,
				"error", err,
			)
		}
	}()
}

func (s *Service) dispatchAll(runs []*models.Run) {
	for _, r := range runs {
		s.dispatch(r)
	}
}

// execute processes a running run. Once it is claimed, every path out of
// execute either completes the run or fails it exactly once.
func (s *Service) execute(ctx context.Context, run *models.Run) (out *Outcome, err error) {
	if _, busy := s.inflight.LoadOrStore(run.ID, struct{}{}); busy {
		return nil, ErrRunInProgress
	}
	defer s.inflight.Delete(run.ID)

	start := time.Now()
	tel := newTelemetry(s.providerName)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during analysis run",
				"run_id", run.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("analysis run panicked: %v", r)
			out = nil
		}
		if err != nil {
			s.fail(ctx, run, err, tel)
			return
		}
		slog.Info("analysis run completed",
			"run_id", run.ID,
			"org_id", run.OrgID,
			"kind", run.Kind,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	switch run.Kind {
	case models.RunKindStandard:
		return s.executeStandard(ctx, run, tel)
	case models.RunKindCriteria:
		return s.executeCriteria(ctx, run, tel)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, run.Kind)
	}
}

func (s *Service) executeStandard(ctx context.Context, run *models.Run, tel *telemetry) (*Outcome, error) {
	pages, err := s.pages(ctx, run)
	if err != nil {
		return nil, err
	}
	chunks, err := ChunkPages(pages, s.pagesPerChunk)
	if err != nil {
		return nil, err
	}

	partials := make([]models.StandardResult, len(chunks))
	err = s.forEach(ctx, len(chunks), tel, func(ctx context.Context, i int) (ai.JSONResult, error) {
		partial, res, err := s.evaluator.EvaluateChunk(ctx, chunks[i], len(chunks))
		if err == nil {
			partials[i] = partial
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}

	merged := MergeStandardResults(partials)
	return s.complete(ctx, run, &models.Result{
		ID:        uuid.New(),
		OrgID:     run.OrgID,
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		Kind:      models.RunKindStandard,
		Standard:  &merged,
		CreatedAt: s.now().UTC(),
	}, tel)
}

func (s *Service) executeCriteria(ctx context.Context, run *models.Run, tel *telemetry) (*Outcome, error) {
	project, err := s.store.GetProject(ctx, run.ProjectID, run.OrgID)
	if err != nil {
		return nil, err
	}
	if project.TemplateID == nil {
		return nil, ErrMissingTemplate
	}
	tmpl, err := s.template(ctx, run.OrgID, *project.TemplateID)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages(ctx, run)
	if err != nil {
		return nil, err
	}
	docs := RenderPages(pages)

	verdicts := make([]models.CriterionVerdict, len(tmpl.Criteria))
	err = s.forEach(ctx, len(tmpl.Criteria), tel, func(ctx context.Context, i int) (ai.JSONResult, error) {
		v, res, err := s.evaluator.EvaluateCriterion(ctx, tmpl.Criteria[i], docs)
		if err == nil {
			verdicts[i] = v
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, run, &models.Result{
		ID:        uuid.New(),
		OrgID:     run.OrgID,
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		Kind:      models.RunKindCriteria,
		Criteria:  &models.CriteriaResult{TemplateID: tmpl.ID, Items: verdicts},
		CreatedAt: s.now().UTC(),
	}, tel)
}

func (s *Service) pages(ctx context.Context, run *models.Run) ([]models.DocumentPage, error) {
	pages, err := s.store.ListProjectPages(ctx, run.OrgID, run.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoContent
	}
	return pages, nil
}

// forEach runs fn for indexes 0..n-1, sequentially unless EvalConcurrency > 1.
// Callers write results into index-addressed slots, so output order never
// depends on completion order. The first error stops further work.
func (s *Service) forEach(ctx context.Context, n int, tel *telemetry, fn func(ctx context.Context, i int) (ai.JSONResult, error)) error {
	if s.evalConcurrency <= 1 {
		for i := 0; i < n; i++ {
			res, err := fn(ctx, i)
			tel.record(i, res, err == nil)
			if err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.evalConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := fn(gctx, i)
			tel.record(i, res, err == nil)
			return err
		})
	}
	return g.Wait()
}

func (s *Service) complete(ctx context.Context, run *models.Run, result *models.Result, tel *telemetry) (*Outcome, error) {
	promoted, err := s.admission.Complete(ctx, run, result, tel.runTelemetry())
	if err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}
	s.cacheResult(ctx, result)
	s.dispatchAll(promoted)
	return &Outcome{RunID: run.ID, Status: models.RunStatusFinished, ResultID: result.ID}, nil
}

// fail records cause on the run. It runs on a context detached from the
// caller's cancellation and is attempted once.
func (s *Service) fail(ctx context.Context, run *models.Run, cause error, tel *telemetry) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	promoted, err := s.admission.Fail(fctx, run, errorMessage(cause), tel.runTelemetry())
	if err != nil {
		slog.Error("recording analysis run failure",
			"run_id", run.ID,
			"org_id", run.OrgID,
			"cause", cause,
			"error", err,
		)
		return
	}
	s.dispatchAll(promoted)
}

// --- Reads ---

// GetLatestRun returns the newest run of kind for the project and its result.
func (s *Service) GetLatestRun(ctx context.Context, orgID, projectID uuid.UUID, kind string) (*LatestRun, error) {
	if !models.ValidRunKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := s.store.GetProject(ctx, projectID, orgID); err != nil {
		return nil, err
	}

	run, err := s.store.GetLatestRun(ctx, orgID, projectID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return &LatestRun{}, nil
	}
	if err != nil {
		return nil, err
	}
	latest := &LatestRun{Run: run}
	if run.ResultID == nil {
		return latest, nil
	}
	if latest.Result, err = s.result(ctx, orgID, *run.ResultID); err != nil {
		return nil, err
	}
	return latest, nil
}

// GetRun returns a run of the organization.
func (s *Service) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error) {
	return s.store.GetRun(ctx, runID, orgID)
}

// GetRunStatus answers status polls from the cache, falling back to the store.
func (s *Service) GetRunStatus(ctx context.Context, orgID, runID uuid.UUID) (string, error) {
	if s.cache != nil {
		status, found, err := s.cache.GetRunStatus(ctx, orgID, runID)
		if err != nil {
			slog.Warn("run status cache read failed", "run_id", runID, "error", err)
		} else if found {
			return status, nil
		}
	}
	run, err := s.store.GetRun(ctx, runID, orgID)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

func (s *Service) template(ctx context.Context, orgID, id uuid.UUID) (*models.Template, error) {
	if tmpl, ok := s.templates.Get(id); ok && tmpl.OrgID == orgID {
		return tmpl, nil
	}
	tmpl, err := s.store.GetTemplate(ctx, id, orgID)
	if err != nil {
		return nil, err
	}
	s.templates.Add(id, tmpl)
	return tmpl, nil
}

func (s *Service) result(ctx context.Context, orgID, id uuid.UUID) (*models.Result, error) {
	if s.cache != nil {
		data, found, err := s.cache.Get(ctx, cache.ResultKey(orgID, id))
		if err == nil && found {
			var r models.Result
			if err := json.Unmarshal(data, &r); err == nil {
				return &r, nil
			}
		}
	}
	r, err := s.store.GetResult(ctx, id, orgID)
	if err != nil {
		return nil, err
	}
	s.cacheResult(ctx, r)
	return r, nil
}

func (s *Service) cacheResult(ctx context.Context, r *models.Result) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.ResultKey(r.OrgID, r.ID), data, resultCacheTTL); err != nil {
		slog.Warn("result cache write failed", "result_id", r.ID, "error", err)
	}
}

// --- Telemetry ---

// telemetry accumulates usage over every model call of a run. Provider and
// model come from the successful call with the highest index.
type telemetry struct {
	mu       sync.Mutex
	usage    ai.Usage
	calls    int
	provider string
	model    string
	lastOK   int
}

func newTelemetry(provider string) *telemetry {
	return &telemetry{provider: provider, lastOK: -1}
}

func (t *telemetry) record(index int, res ai.JSONResult, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.usage = t.usage.Add(res.Usage)
	switch {
	case ok && index >= t.lastOK:
		t.lastOK = index
		t.provider, t.model = res.Provider, res.Model
	case t.lastOK < 0 && res.Provider != "":
		t.provider, t.model = res.Provider, res.Model
	}
}

func (t *telemetry) runTelemetry() models.RunTelemetry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := models.RunTelemetry{
		Provider:         t.provider,
		Model:            t.model,
		PromptTokens:     t.usage.PromptTokens,
		CompletionTokens: t.usage.CompletionTokens,
	}
	if t.calls > 0 {
		latency := t.usage.LatencyMs
		out.LatencyMs = &latency
	}
	return out
}

// errorMessage flattens err to a single line for storage on the run.
func errorMessage(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if msg == "" {
		msg = "analysis failed"
	}
	return truncateString(msg, maxErrorMessageBytes)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
