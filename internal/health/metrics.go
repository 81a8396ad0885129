package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksProcessedTotal counts processed tasks by provider and outcome.
	tasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedq_tasks_processed_total",
		Help: "Total number of processed tasks by provider and outcome",
	}, []string{"provider", "outcome"})

	// taskDuration tracks per-task processing time by provider.
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedq_task_duration_seconds",
		Help:    "Task processing time by provider",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	// healthScore mirrors the composite queue health score.
	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedq_queue_health_score",
		Help: "Composite queue health score (0-100)",
	})

	// queueItems mirrors item counts by status.
	queueItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedq_queue_items",
		Help: "Number of queue items by status",
	}, []string{"status"})

	// activeWorkers mirrors the number of non-stopped workers.
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedq_active_workers",
		Help: "Number of workers that are not stopped",
	})

	// oldestPendingSeconds mirrors the age of the oldest pending item.
	oldestPendingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedq_oldest_pending_age_seconds",
		Help: "Age of the oldest pending queue item",
	})

	// throughputPerHour mirrors the trailing-window completion rate.
	throughputPerHour = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedq_throughput_items_per_hour",
		Help: "Items completed in the trailing hour",
	})
)

// Task outcome labels for ObserveTask.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

// ObserveTask records one processed task in the Prometheus counters. The
// worker loop calls this once per attempt.
func ObserveTask(provider, outcome string, elapsed time.Duration) {
	tasksProcessedTotal.WithLabelValues(provider, outcome).Inc()
	taskDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// publish mirrors an assessment into the gauges.
func publish(a *Assessment) {
	healthScore.Set(float64(a.Score))
	queueItems.WithLabelValues("pending").Set(float64(a.Counts.Pending))
	queueItems.WithLabelValues("processing").Set(float64(a.Counts.Processing))
	queueItems.WithLabelValues("completed").Set(float64(a.Counts.Completed))
	queueItems.WithLabelValues("failed").Set(float64(a.Counts.Failed))
	queueItems.WithLabelValues("rate_limited").Set(float64(a.Counts.RateLimited))
	activeWorkers.Set(float64(a.ActiveWorkers))
	oldestPendingSeconds.Set(a.OldestPendingAge.Seconds())
	throughputPerHour.Set(float64(a.ThroughputPerHour))
}
