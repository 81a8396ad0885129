package api

import (
	"net/http"
	"time"

	"github.com/docuvec/embedq/internal/api/shared"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/health"
	"github.com/docuvec/embedq/internal/store"
	"github.com/docuvec/embedq/internal/worker"
)

// MonitorHandler serves the read-only monitoring routes: queue
// statistics and the health assessment.
type MonitorHandler struct {
	tasks      store.TaskStore
	pool       *worker.Pool
	aggregator *health.Aggregator
}

// NewMonitorHandler creates a MonitorHandler.
func NewMonitorHandler(tasks store.TaskStore, pool *worker.Pool, aggregator *health.Aggregator) *MonitorHandler {
	return &MonitorHandler{
		tasks:      tasks,
		pool:       pool,
		aggregator: aggregator,
	}
}

// StatsResponse is the queue statistics payload.
type StatsResponse struct {
	Counts             domain.QueueCounts `json:"counts"`
	OldestPendingAgeMs int64              `json:"oldest_pending_age_ms"`
	RunningWorkers     int                `json:"running_workers"`
}

// Stats handles GET /api/stats.
func (h *MonitorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.tasks.Counts(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	oldest, err := h.tasks.OldestPendingAge(r.Context(), time.Now().UTC())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
		Counts:             counts,
		OldestPendingAgeMs: oldest.Milliseconds(),
		RunningWorkers:     h.pool.RunningCount(),
	})
}

// Assessment handles GET /api/health/assessment. Recomputes on demand;
// the Prometheus gauges are refreshed as a side effect.
func (h *MonitorHandler) Assessment(w http.ResponseWriter, r *http.Request) {
	assessment, err := h.aggregator.Assess(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, assessment)
}
