package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuvec/embedq/internal/api/shared"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
	"github.com/docuvec/embedq/internal/worker"
)

// WorkerHandler serves the worker lifecycle routes.
type WorkerHandler struct {
	pool    *worker.Pool
	workers store.WorkerStore
}

// NewWorkerHandler creates a WorkerHandler.
func NewWorkerHandler(pool *worker.Pool, workers store.WorkerStore) *WorkerHandler {
	return &WorkerHandler{
		pool:    pool,
		workers: workers,
	}
}

// workerResponse is a worker record annotated with whether this process
// is currently running its loop.
type workerResponse struct {
	*domain.Worker
	Running bool `json:"running"`
}

// StartWorker handles POST /api/workers. Returns 409 when the
// concurrency cap is already met.
func (h *WorkerHandler) StartWorker(w http.ResponseWriter, r *http.Request) {
	started, err := h.pool.StartWorker(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, workerResponse{Worker: started, Running: true})
}

// StopWorker handles DELETE /api/workers/{id}. The stop is cooperative:
// the response is sent only after the worker released its claims.
func (h *WorkerHandler) StopWorker(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid worker ID")
		return
	}

	if err := h.pool.StopWorker(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// ListWorkers handles GET /api/workers.
func (h *WorkerHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.workers.List(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := make([]workerResponse, 0, len(workers))
	for _, record := range workers {
		resp = append(resp, workerResponse{
			Worker:  record,
			Running: h.pool.IsRunning(record.ID),
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"workers": resp,
		"count":   len(resp),
	})
}
