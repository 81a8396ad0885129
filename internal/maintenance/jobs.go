package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/store"
	"github.com/docuvec/embedq/internal/worker"
)

// Jobs bundles the maintenance operations. Every job returns the number
// of rows it touched; zero matches is a normal outcome, not an error.
type Jobs struct {
	tasks  store.TaskStore
	pool   *worker.Pool
	config *queue.ConfigCache
	now    func() time.Time
}

// NewJobs creates the maintenance job set.
func NewJobs(tasks store.TaskStore, pool *worker.Pool, config *queue.ConfigCache) *Jobs {
	return &Jobs{
		tasks:  tasks,
		pool:   pool,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the jobs' clock. Test helper.
func (j *Jobs) SetClock(now func() time.Time) {
	j.now = now
}

// CleanupOldItems deletes terminal items older than the configured
// retention period and returns the number removed.
func (j *Jobs) CleanupOldItems(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	retention := j.config.Snapshot().RetentionPeriod
	cutoff := j.now().Add(-retention)

	deleted, err := j.tasks.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}

	if deleted > 0 {
		log.Info("cleaned up old terminal items", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// RequeueFailedItems re-admits up to maxItems dead-lettered items back to
// pending with a fresh retry budget. Administrative recovery after a
// systemic outage.
func (j *Jobs) RequeueFailedItems(ctx context.Context, maxItems int) (int, error) {
	log := logger.FromContext(ctx)

	requeued, err := j.tasks.RequeueFailed(ctx, maxItems)
	if err != nil {
		return 0, fmt.Errorf("requeue failed: %w", err)
	}

	if requeued > 0 {
		log.Info("requeued dead-lettered items", "requeued", requeued, "max_items", maxItems)
	}
	return requeued, nil
}

// ResetRateLimited promotes up to maxItems rate-limited items whose
// cooldown has passed. The scheduler already promotes these on every
// cycle; this is the safety net for a queue with no active schedulers.
func (j *Jobs) ResetRateLimited(ctx context.Context, maxItems int) (int, error) {
	log := logger.FromContext(ctx)

	promoted, err := j.tasks.PromoteRateLimited(ctx, j.now(), maxItems)
	if err != nil {
		return 0, fmt.Errorf("rate-limited reset failed: %w", err)
	}

	if promoted > 0 {
		log.Info("reset rate-limited items", "promoted", promoted)
	}
	return promoted, nil
}

// ReclaimStaleWorkers delegates to the worker pool's reclamation pass.
func (j *Jobs) ReclaimStaleWorkers(ctx context.Context) (worker.ReclaimReport, error) {
	return j.pool.ReclaimStaleWorkers(ctx)
}

// RunAll executes every maintenance job once. Failures are logged and do
// not stop the remaining jobs; one broken job must not starve the others.
func (j *Jobs) RunAll(ctx context.Context) {
	log := logger.FromContext(ctx)

	if _, err := j.CleanupOldItems(ctx); err != nil {
		log.Error("cleanup job failed", "error", err)
	}
	if _, err := j.ResetRateLimited(ctx, 0); err != nil {
		log.Error("rate-limited reset job failed", "error", err)
	}
	if _, err := j.ReclaimStaleWorkers(ctx); err != nil {
		log.Error("stale worker reclamation failed", "error", err)
	}
}
