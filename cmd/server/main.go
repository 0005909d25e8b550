// Package main is the entrypoint for the tender analysis API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/admission"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/analysis"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/handler"
	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/cache"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/config"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("reading .env", "error", err)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store_backend", cfg.Store.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create AI provider
	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	// 5. Admission control and the analysis service
	ctrl := admission.NewController(st, redisCache, cfg.Analysis.MaxActiveRunsPerOrg)
	svc, err := analysis.NewService(st, ctrl, ai.NewCaller(provider, cfg.AI.InferenceTimeout), redisCache, analysis.Config{
		PagesPerChunk:     cfg.Analysis.PagesPerChunk,
		EvalConcurrency:   cfg.Analysis.EvalConcurrency,
		TemplateCacheSize: cfg.Analysis.TemplateCacheSize,
	})
	if err != nil {
		return fmt.Errorf("create analysis service: %w", err)
	}

	if err := bootstrapKey(ctx, st, cfg.Server.BootstrapAdminKey); err != nil {
		return err
	}

	n, err := svc.ResumeRunning(ctx)
	if err != nil {
		return fmt.Errorf("resume analysis runs: %w", err)
	}
	if n > 0 {
		slog.Info("resumed analysis runs", "count", n)
	}

	// 6. Build router with dependencies
	router := api.NewRouter(dependencies(st, redisCache, svc, cfg.Server.RateLimitPerMinute))

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	// In-flight runs are cancelled and recorded as failed before the store closes.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("analysis shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore returns the configured store and a func releasing its resources.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresStore(pool), pool.Close, nil
}

func bootstrapKey(ctx context.Context, st store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}
	org, err := st.GetDefaultOrganization(ctx)
	if err != nil {
		return fmt.Errorf("load default organization: %w", err)
	}
	created, err := handler.EnsureAdminKey(ctx, st, org.ID, rawKey, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if created {
		slog.Info("bootstrap admin key registered", "org_id", org.ID, "key_prefix", rawKey[:mw.KeyPrefixLen])
	}
	return nil
}

func dependencies(st store.Store, c cache.Cache, svc *analysis.Service, requestsPerMin int) api.Dependencies {
	return api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(c, requestsPerMin),

		HealthHandler: healthHandler(st, c),

		CreateProject:      handler.NewCreateProjectHandler(st),
		GetProject:         handler.NewGetProjectHandler(st),
		SetProjectTemplate: handler.NewSetProjectTemplateHandler(st),
		UploadDocument:     handler.NewUploadDocumentHandler(st),

		CreateTemplate: handler.NewCreateTemplateHandler(st),
		GetTemplate:    handler.NewGetTemplateHandler(st),

		SubmitRun:    handler.NewSubmitRunHandler(svc),
		LatestRun:    handler.NewLatestRunHandler(svc),
		GetRun:       handler.NewGetRunHandler(svc),
		GetRunStatus: handler.NewRunStatusHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(st, bcrypt.DefaultCost),
		ListKeysHandler:  handler.NewListKeysHandler(st),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(st),
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			slog.Warn("health check: database", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check: cache", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
