package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/docuvec/embedq/internal/config"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/health"
	"github.com/docuvec/embedq/internal/maintenance"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/platform/postgres"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/worker"
)

// application holds the wired component graph. Everything hangs off the
// stores; the queue engine, worker pool, and admin API share the same
// instances so they observe one coherent state.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	configCache *queue.ConfigCache
	coordinator *queue.Coordinator
	pool        *worker.Pool
	jobs        *maintenance.Jobs
	aggregator  *health.Aggregator

	router http.Handler

	maintenanceStop context.CancelFunc
}

// newApplication loads configuration and wires every component: database
// and migrations, stores, the queue engine, provider clients, the worker
// pool, maintenance jobs, and the HTTP router.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, appLogger); err != nil {
		return nil, err
	}

	tasks := postgres.NewPostgresTaskStore(db)
	workers := postgres.NewPostgresWorkerStore(db)
	windows := postgres.NewPostgresRateLimitStore(db)
	configStore := postgres.NewPostgresConfigStore(db)

	configCache, err := queue.NewConfigCache(ctx, configStore, seedQueueConfig(cfg.Queue))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue configuration: %w", err)
	}

	coordinator := queue.NewCoordinator(windows, configCache)
	tuner := queue.NewStrategyTuner()
	scheduler := queue.NewScheduler(tasks, coordinator, tuner, configCache)
	engine := queue.NewRetryEngine(tasks, coordinator, configCache)
	intake := queue.NewIntake(tasks, db)

	providers := provider.NewRouter()
	if cfg.Provider.GeminiAPIKey != "" {
		gemini, err := provider.NewGeminiClient(ctx, appLogger, cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		providers.Register(gemini)
	}
	providers.SetFallback(cfg.Provider.DefaultProvider)

	pool := worker.NewPool(worker.RunnerConfig{
		PollInterval:      time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Queue.HeartbeatIntervalMs) * time.Millisecond,
	}, scheduler, engine, providers, tuner, configCache, workers, tasks)

	jobs := maintenance.NewJobs(tasks, pool, configCache)
	aggregator := health.NewAggregator(tasks, workers)

	app := &application{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		configCache: configCache,
		coordinator: coordinator,
		pool:        pool,
		jobs:        jobs,
		aggregator:  aggregator,
	}
	app.router = app.setupRouter(tasks, workers, intake, providers)

	app.startMaintenance(appLogger)
	return app, nil
}

// seedQueueConfig maps the file/env configuration onto the runtime queue
// configuration used on first boot, before a stored one exists.
func seedQueueConfig(cfg config.QueueConfig) domain.QueueConfig {
	seed := domain.DefaultQueueConfig()
	seed.BatchSize = cfg.BatchSize
	seed.MaxConcurrentWorkers = cfg.MaxConcurrentWorkers
	seed.BaseRetryDelay = time.Duration(cfg.BaseRetryDelayMs) * time.Millisecond
	seed.MaxRetryDelay = time.Duration(cfg.MaxRetryDelayMs) * time.Millisecond
	seed.StaleWorkerThreshold = time.Duration(cfg.StaleWorkerSeconds) * time.Second
	seed.ProcessingTimeout = time.Duration(cfg.ProcessingTimeoutSec) * time.Second
	seed.RetentionPeriod = time.Duration(cfg.RetentionHours) * time.Hour
	seed.DefaultCooldown = time.Duration(cfg.DefaultCooldownSec) * time.Second
	seed.Strategy = domain.Strategy(cfg.Strategy)
	return seed
}

// startMaintenance launches the periodic maintenance runner. It hangs
// off Background so request cancellation never stops housekeeping.
func (app *application) startMaintenance(appLogger *slog.Logger) {
	interval := time.Duration(app.config.Queue.MaintenanceIntervalS) * time.Second
	runner := maintenance.NewRunner(app.jobs, interval)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), appLogger))
	app.maintenanceStop = cancel
	go runner.Run(ctx)
}

// cleanup releases application resources in reverse dependency order:
// workers first so their final store writes still have a database.
func (app *application) cleanup() {
	if app.maintenanceStop != nil {
		app.maintenanceStop()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.pool.StopAll(stopCtx); err != nil {
		app.logger.Error("failed to stop workers cleanly", "error", err)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
