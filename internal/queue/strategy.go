package queue

import (
	"sync"
	"time"

	"github.com/docuvec/embedq/internal/domain"
)

// outcomeWindow is how far back the tuner looks when computing rates.
const outcomeWindow = 5 * time.Minute

// StrategyTuner sizes claim batches and effective worker concurrency
// according to the active strategy and the trailing window of task
// outcomes. Conservative and aggressive apply fixed scaling; adaptive
// shrinks both as the recent rate-limit rate climbs and restores them
// as it falls back to zero.
type StrategyTuner struct {
	mu       sync.Mutex
	outcomes []outcome
	now      func() time.Time
}

type outcome struct {
	at          time.Time
	rateLimited bool
}

// NewStrategyTuner creates a StrategyTuner with an empty outcome window.
func NewStrategyTuner() *StrategyTuner {
	return &StrategyTuner{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the tuner's clock. Test helper.
func (t *StrategyTuner) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// RecordOutcome feeds one task outcome into the trailing window.
func (t *StrategyTuner) RecordOutcome(rateLimited bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.outcomes = append(t.outcomes, outcome{at: now, rateLimited: rateLimited})
	t.prune(now)
}

// BatchSize returns the claim batch size for the given configuration.
// The result is always at least 1: even under heavy rate limiting the
// queue keeps probing so it notices when the provider recovers.
func (t *StrategyTuner) BatchSize(cfg domain.QueueConfig) int {
	base := cfg.BatchSize

	var size int
	switch cfg.Strategy {
	case domain.StrategyConservative:
		size = base / 2
	case domain.StrategyAggressive:
		size = base * 2
	case domain.StrategyAdaptive:
		size = int(float64(base) * (1 - t.rateLimitRate()))
	default:
		size = base
	}

	if size < 1 {
		size = 1
	}
	return size
}

// ConcurrencyCap returns the effective worker cap for the given
// configuration. Like BatchSize it never drops below 1, so one worker
// always keeps probing the provider.
func (t *StrategyTuner) ConcurrencyCap(cfg domain.QueueConfig) int {
	base := cfg.MaxConcurrentWorkers

	var limit int
	switch cfg.Strategy {
	case domain.StrategyConservative:
		limit = base / 2
	case domain.StrategyAdaptive:
		limit = int(float64(base) * (1 - t.rateLimitRate()))
	default:
		// Aggressive runs at the configured maximum; there is no safe
		// way to exceed an operator-set worker cap.
		limit = base
	}

	if limit < 1 {
		limit = 1
	}
	return limit
}

// rateLimitRate returns the fraction of recent outcomes that were rate
// limited, zero when the window is empty.
func (t *StrategyTuner) rateLimitRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(t.now())
	if len(t.outcomes) == 0 {
		return 0
	}

	limited := 0
	for _, o := range t.outcomes {
		if o.rateLimited {
			limited++
		}
	}
	return float64(limited) / float64(len(t.outcomes))
}

// prune drops outcomes older than the trailing window. Callers hold t.mu.
func (t *StrategyTuner) prune(now time.Time) {
	cutoff := now.Add(-outcomeWindow)
	idx := 0
	for idx < len(t.outcomes) && t.outcomes[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		t.outcomes = append([]outcome(nil), t.outcomes[idx:]...)
	}
}
