package health

import (
	"context"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
)

// Status is the banded verdict derived from the health score.
type Status string

// Health status bands.
const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Assessment thresholds and penalty weights. The score starts at 100 and
// penalties subtract from it; each penalty is capped so a single symptom
// cannot drive the score to zero on its own, except the no-active-workers
// penalty, which is deliberately severe because nothing drains the queue
// without workers.
const (
	backlogThreshold      = 100
	backlogPenaltyMax     = 20.0
	oldestAgeThreshold    = 30 * time.Minute
	oldestAgePenaltyMax   = 20.0
	failureRateTolerance  = 0.05
	failureRatePenaltyMax = 25.0
	rateLimitTolerance    = 0.10
	rateLimitPenaltyMax   = 15.0
	noActiveWorkerPenalty = 40.0

	throughputWindow = time.Hour
)

// Assessment is one on-demand health computation.
type Assessment struct {
	Status            Status             `json:"status"`
	Score             int                `json:"score"`
	SuccessRate       float64            `json:"success_rate"`
	WorkerEfficiency  float64            `json:"worker_efficiency"`
	ThroughputPerHour int                `json:"throughput_per_hour"`
	Counts            domain.QueueCounts `json:"counts"`
	RegisteredWorkers int                `json:"registered_workers"`
	ActiveWorkers     int                `json:"active_workers"`
	OldestPendingAge  time.Duration      `json:"oldest_pending_age_ms"`
	AssessedAt        time.Time          `json:"assessed_at"`
}

// Aggregator computes health assessments from store state.
type Aggregator struct {
	tasks   store.TaskStore
	workers store.WorkerStore
	now     func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(tasks store.TaskStore, workers store.WorkerStore) *Aggregator {
	return &Aggregator{
		tasks:   tasks,
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the aggregator's clock. Test helper.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Assess recomputes the health assessment and mirrors it into the
// Prometheus gauges.
func (a *Aggregator) Assess(ctx context.Context) (*Assessment, error) {
	now := a.now()

	counts, err := a.tasks.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	workers, err := a.workers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	oldestAge, err := a.tasks.OldestPendingAge(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest pending age: %w", err)
	}

	throughput, err := a.tasks.CompletedSince(ctx, now.Add(-throughputWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to compute throughput: %w", err)
	}

	assessment := &Assessment{
		SuccessRate:       successRate(counts),
		WorkerEfficiency:  workerEfficiency(workers, now),
		ThroughputPerHour: throughput,
		Counts:            counts,
		RegisteredWorkers: len(workers),
		ActiveWorkers:     countActive(workers),
		OldestPendingAge:  oldestAge,
		AssessedAt:        now,
	}

	assessment.Score = score(assessment, workers)
	assessment.Status = band(assessment)

	publish(assessment)
	return assessment, nil
}

// successRate returns the completed fraction of all terminally processed
// items, 1.0 when nothing has been processed yet: an idle queue is not a
// failing queue.
func successRate(counts domain.QueueCounts) float64 {
	processed := counts.Completed + counts.Failed
	if processed == 0 {
		return 1.0
	}
	return float64(counts.Completed) / float64(processed)
}

// workerEfficiency is the ratio of accumulated processing time to the
// wall-clock lifetime of non-stopped workers, clamped to [0, 1].
func workerEfficiency(workers []*domain.Worker, now time.Time) float64 {
	var busy, wall time.Duration
	for _, w := range workers {
		if w.Status == domain.WorkerStatusStopped {
			continue
		}
		busy += w.TotalProcessingTime
		if lifetime := now.Sub(w.CreatedAt); lifetime > 0 {
			wall += lifetime
		}
	}
	if wall <= 0 {
		return 0
	}
	eff := float64(busy) / float64(wall)
	if eff > 1 {
		eff = 1
	}
	return eff
}

func countActive(workers []*domain.Worker) int {
	active := 0
	for _, w := range workers {
		if w.Status != domain.WorkerStatusStopped {
			active++
		}
	}
	return active
}

// score computes the 0-100 composite.
func score(a *Assessment, workers []*domain.Worker) int {
	total := 100.0

	// Backlog beyond the pending threshold, scaled up to the cap at twice
	// the threshold.
	if a.Counts.Pending > backlogThreshold {
		excess := float64(a.Counts.Pending-backlogThreshold) / float64(backlogThreshold)
		total -= capped(excess*backlogPenaltyMax, backlogPenaltyMax)
	}

	// Oldest pending item aging beyond the staleness threshold.
	if a.OldestPendingAge > oldestAgeThreshold {
		excess := float64(a.OldestPendingAge-oldestAgeThreshold) / float64(oldestAgeThreshold)
		total -= capped(excess*oldestAgePenaltyMax, oldestAgePenaltyMax)
	}

	// Failure rate beyond tolerance.
	if failureRate := 1 - a.SuccessRate; failureRate > failureRateTolerance {
		excess := (failureRate - failureRateTolerance) / failureRateTolerance
		total -= capped(excess*failureRatePenaltyMax, failureRatePenaltyMax)
	}

	// No active workers with work waiting: nothing will drain the queue.
	if a.ActiveWorkers == 0 {
		total -= noActiveWorkerPenalty
	}

	// Elevated rate-limit hit frequency across workers.
	if rate := rateLimitRate(workers); rate > rateLimitTolerance {
		excess := (rate - rateLimitTolerance) / rateLimitTolerance
		total -= capped(excess*rateLimitPenaltyMax, rateLimitPenaltyMax)
	}

	if total < 0 {
		total = 0
	}
	return int(total)
}

// rateLimitRate is the fraction of processed attempts that hit a provider
// rate limit, across all workers.
func rateLimitRate(workers []*domain.Worker) float64 {
	var processed, limited int64
	for _, w := range workers {
		processed += w.TasksProcessed
		limited += w.RateLimitCount
	}
	if processed == 0 {
		return 0
	}
	return float64(limited) / float64(processed)
}

// band maps the assessment to its status band. No registered workers
// yields Unknown regardless of the score: there is no activity to judge.
func band(a *Assessment) Status {
	if a.RegisteredWorkers == 0 {
		return StatusUnknown
	}
	switch {
	case a.Score >= 80:
		return StatusHealthy
	case a.Score >= 50:
		return StatusWarning
	default:
		return StatusCritical
	}
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
