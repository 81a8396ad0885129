package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// RetryEngine turns task outcomes into item state transitions. It is the
// single place where failure classification, backoff, retry budgets, and
// provider cooldowns come together.
type RetryEngine struct {
	tasks       store.TaskStore
	coordinator *Coordinator
	config      *ConfigCache
	now         func() time.Time
}

// NewRetryEngine creates a RetryEngine.
func NewRetryEngine(tasks store.TaskStore, coordinator *Coordinator, config *ConfigCache) *RetryEngine {
	return &RetryEngine{
		tasks:       tasks,
		coordinator: coordinator,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's clock. Test helper.
func (e *RetryEngine) SetClock(now func() time.Time) {
	e.now = now
}

// HandleSuccess completes the item and clears the provider's failure
// streak.
func (e *RetryEngine) HandleSuccess(ctx context.Context, item *domain.QueueItem, workerID uuid.UUID, actualCost int) error {
	if err := e.tasks.MarkCompleted(ctx, item.ID, workerID, actualCost); err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}
	if err := e.coordinator.RecordSuccess(ctx, item.Provider); err != nil {
		// The item is already completed; a failed streak reset only delays
		// cooldown bookkeeping.
		logger.FromContext(ctx).Warn("failed to record provider success",
			"provider", item.Provider,
			"error", err)
	}
	return nil
}

// HandleFailure classifies the error and applies the matching transition:
// a rate limit parks the item and opens a provider cooldown without
// consuming its retry budget, a terminal failure dead-letters it, and a
// transient failure either schedules a backoff retry or dead-letters the
// item once its budget is exhausted.
func (e *RetryEngine) HandleFailure(ctx context.Context, item *domain.QueueItem, workerID uuid.UUID, taskErr error) error {
	log := logger.FromContext(ctx)
	msg := taskErr.Error()

	switch provider.KindOf(taskErr) {
	case provider.KindRateLimited:
		until, err := e.coordinator.OpenCooldown(ctx, item.Provider, provider.RetryAfterHint(taskErr))
		if err != nil {
			return fmt.Errorf("failed to open cooldown: %w", err)
		}
		if err := e.tasks.MarkRateLimited(ctx, item.ID, workerID, until, msg); err != nil {
			return fmt.Errorf("failed to park rate-limited item: %w", err)
		}
		log.Info("item parked for provider cooldown",
			"item_id", item.ID,
			"provider", item.Provider,
			"not_before", until)
		return nil

	case provider.KindTerminal:
		if err := e.tasks.MarkFailed(ctx, item.ID, workerID, msg); err != nil {
			return fmt.Errorf("failed to dead-letter item: %w", err)
		}
		log.Warn("item dead-lettered on terminal failure",
			"item_id", item.ID,
			"provider", item.Provider,
			"error", msg)
		return nil

	default:
		if item.RetryCount+1 > item.MaxRetries {
			if err := e.tasks.MarkFailed(ctx, item.ID, workerID, msg); err != nil {
				return fmt.Errorf("failed to dead-letter item: %w", err)
			}
			log.Warn("item dead-lettered after exhausting retries",
				"item_id", item.ID,
				"retry_count", item.RetryCount,
				"max_retries", item.MaxRetries)
			return nil
		}

		cfg := e.config.Snapshot()
		delay := NewRetryPolicy(cfg).Delay(item.RetryCount)
		notBefore := e.now().Add(delay)
		if err := e.tasks.MarkForRetry(ctx, item.ID, workerID, notBefore, msg); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		log.Info("item scheduled for retry",
			"item_id", item.ID,
			"attempt", item.RetryCount+1,
			"delay", delay)
		return nil
	}
}
