package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/health"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// RunnerConfig carries the loop timings for a Runner.
type RunnerConfig struct {
	// PollInterval is how long the runner sleeps after an empty batch.
	PollInterval time.Duration

	// HeartbeatInterval is how often the runner refreshes its liveness
	// record.
	HeartbeatInterval time.Duration
}

// Runner is the processing loop for one worker. It polls the scheduler,
// resolves each claimed item's provider, and routes the outcome through
// the retry engine. Systemic errors (store or scheduler failures) back the
// loop off; they are never charged against an item.
type Runner struct {
	id        uuid.UUID
	cfg       RunnerConfig
	scheduler *queue.Scheduler
	engine    *queue.RetryEngine
	router    *provider.Router
	tuner     *queue.StrategyTuner
	workers   store.WorkerStore
	tasks     store.TaskStore
	now       func() time.Time
}

// NewRunner creates a Runner for an already-registered worker.
func NewRunner(
	id uuid.UUID,
	cfg RunnerConfig,
	scheduler *queue.Scheduler,
	engine *queue.RetryEngine,
	router *provider.Router,
	tuner *queue.StrategyTuner,
	workers store.WorkerStore,
	tasks store.TaskStore,
) *Runner {
	return &Runner{
		id:        id,
		cfg:       cfg,
		scheduler: scheduler,
		engine:    engine,
		router:    router,
		tuner:     tuner,
		workers:   workers,
		tasks:     tasks,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the worker's identifier.
func (r *Runner) ID() uuid.UUID {
	return r.id
}

// Run executes the processing loop until the context is cancelled. On the
// way out it releases any still-claimed items and marks the worker
// stopped, so a cooperative shutdown never strands work.
func (r *Runner) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With("worker_id", r.id)
	ctx = logger.WithLogger(ctx, log)

	log.Info("worker started",
		"poll_interval", r.cfg.PollInterval,
		"heartbeat_interval", r.cfg.HeartbeatInterval)

	heartbeat := time.NewTicker(r.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	status := domain.WorkerStatusIdle

	for {
		select {
		case <-ctx.Done():
			r.shutdown(log)
			return
		default:
		}
		r.beat(ctx, heartbeat, status)

		batch, err := r.scheduler.GetNextBatch(ctx, r.id, 0)
		if err != nil {
			if ctx.Err() != nil {
				r.shutdown(log)
				return
			}
			log.Error("failed to get next batch", "error", err)
			if !r.sleep(ctx, r.cfg.PollInterval) {
				r.shutdown(log)
				return
			}
			continue
		}

		if len(batch) == 0 {
			status = domain.WorkerStatusIdle
			if !r.sleep(ctx, r.cfg.PollInterval) {
				r.shutdown(log)
				return
			}
			continue
		}

		status = domain.WorkerStatusActive
		for _, item := range batch {
			if ctx.Err() != nil {
				r.shutdown(log)
				return
			}
			// A batch of slow provider calls can outlast the stale
			// threshold; keep the liveness record fresh between items so
			// another process's reclamation never releases in-flight work.
			r.beat(ctx, heartbeat, status)
			r.process(ctx, item)
		}
	}
}

// beat writes a heartbeat when the ticker has a pending tick.
func (r *Runner) beat(ctx context.Context, heartbeat *time.Ticker, status domain.WorkerStatus) {
	select {
	case <-heartbeat.C:
		if err := r.workers.Heartbeat(ctx, r.id, status); err != nil {
			logger.FromContext(ctx).Warn("heartbeat failed", "error", err)
		}
	default:
	}
}

// process drives one item through its provider call and records the
// outcome on the item, the worker record, and the strategy tuner.
func (r *Runner) process(ctx context.Context, item *domain.QueueItem) {
	log := logger.FromContext(ctx)
	start := r.now()

	client, err := r.router.Resolve(item.Provider)
	if err != nil {
		// No registered client can ever serve this item; retrying is
		// pointless.
		err = provider.NewProviderError(item.Provider, provider.KindTerminal, 0, err)
		r.finish(ctx, item, start, 0, err)
		return
	}

	result, err := client.Embed(ctx, item)
	if err != nil {
		r.finish(ctx, item, start, 0, err)
		return
	}

	log.Debug("item embedded",
		"item_id", item.ID,
		"provider", item.Provider,
		"dimensions", len(result.Vector),
		"actual_cost", result.ActualCost)

	r.finish(ctx, item, start, result.ActualCost, nil)
}

// finish applies the item transition and outcome bookkeeping for one
// processed item.
func (r *Runner) finish(ctx context.Context, item *domain.QueueItem, start time.Time, actualCost int, taskErr error) {
	log := logger.FromContext(ctx)
	elapsed := r.now().Sub(start)

	var transitionErr error
	rateLimited := false
	outcome := health.OutcomeSuccess
	if taskErr == nil {
		transitionErr = r.engine.HandleSuccess(ctx, item, r.id, actualCost)
	} else {
		rateLimited = provider.KindOf(taskErr) == provider.KindRateLimited
		if rateLimited {
			outcome = health.OutcomeRateLimited
		} else {
			outcome = health.OutcomeError
		}
		transitionErr = r.engine.HandleFailure(ctx, item, r.id, taskErr)
	}
	if transitionErr != nil {
		log.Error("failed to record item outcome",
			"item_id", item.ID,
			"error", transitionErr)
	}

	if err := r.workers.RecordOutcome(ctx, r.id, elapsed, taskErr == nil, rateLimited); err != nil {
		log.Warn("failed to record worker outcome", "error", err)
	}
	r.tuner.RecordOutcome(rateLimited)
	health.ObserveTask(item.Provider, outcome, elapsed)
}

// shutdown releases the worker's claims and marks it stopped. It uses a
// fresh context because the loop's context is already cancelled.
func (r *Runner) shutdown(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	released, err := r.tasks.ReleaseByWorker(ctx, r.id)
	if err != nil {
		log.Warn("failed to release claims on shutdown", "error", err)
	} else if released > 0 {
		log.Info("released claims on shutdown", "count", released)
	}

	if err := r.workers.MarkStopped(ctx, r.id); err != nil {
		log.Warn("failed to mark worker stopped", "error", err)
	}

	log.Info("worker stopped")
}

// sleep waits for the given duration or context cancellation. It reports
// false when the context ended first.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
