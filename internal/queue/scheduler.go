package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// Scheduler assembles claim batches. Each cycle it takes one configuration
// snapshot, promotes rate-limited items whose cooldown has passed, excludes
// providers with an active cooldown, and claims a strategy-sized batch for
// the calling worker.
type Scheduler struct {
	tasks       store.TaskStore
	coordinator *Coordinator
	tuner       *StrategyTuner
	config      *ConfigCache
	now         func() time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	tasks store.TaskStore,
	coordinator *Coordinator,
	tuner *StrategyTuner,
	config *ConfigCache,
) *Scheduler {
	return &Scheduler{
		tasks:       tasks,
		coordinator: coordinator,
		tuner:       tuner,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the scheduler's clock. Test helper.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// GetNextBatch claims the next batch of work for the given worker. The
// effective batch size is strategy-tuned; a positive batchSize lowers it
// further for callers that want less, never raises it. It returns an
// empty batch without error when the queue is paused or no eligible
// items exist.
func (s *Scheduler) GetNextBatch(ctx context.Context, workerID uuid.UUID, batchSize int) ([]*domain.QueueItem, error) {
	log := logger.FromContext(ctx)

	cfg := s.config.Snapshot()
	if !cfg.QueueEnabled {
		return nil, nil
	}

	now := s.now()
	promoted, err := s.tasks.PromoteRateLimited(ctx, now, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to promote rate-limited items: %w", err)
	}
	if promoted > 0 {
		log.Info("promoted rate-limited items back to pending", "count", promoted)
	}

	excluded, err := s.coordinator.ExcludedProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve excluded providers: %w", err)
	}

	limit := s.tuner.BatchSize(cfg)
	if batchSize > 0 && batchSize < limit {
		limit = batchSize
	}
	items, err := s.tasks.ClaimBatch(ctx, workerID, limit, excluded)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}

	if len(items) > 0 {
		log.Debug("claimed batch",
			"worker_id", workerID,
			"count", len(items),
			"limit", limit,
			"excluded_providers", excluded)
	}

	return items, nil
}
