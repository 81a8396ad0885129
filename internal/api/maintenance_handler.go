package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/docuvec/embedq/internal/api/shared"
	"github.com/docuvec/embedq/internal/maintenance"
	"github.com/docuvec/embedq/internal/queue"
)

// MaintenanceHandler serves the on-demand maintenance routes.
type MaintenanceHandler struct {
	jobs        *maintenance.Jobs
	coordinator *queue.Coordinator
	validate    *validator.Validate
}

// NewMaintenanceHandler creates a MaintenanceHandler.
func NewMaintenanceHandler(jobs *maintenance.Jobs, coordinator *queue.Coordinator) *MaintenanceHandler {
	return &MaintenanceHandler{
		jobs:        jobs,
		coordinator: coordinator,
		validate:    validator.New(),
	}
}

// RequeueRequest bounds a dead-letter requeue. The bound is mandatory:
// an unbounded requeue of a large dead-letter backlog would immediately
// re-trigger whatever caused the failures.
type RequeueRequest struct {
	MaxItems int `json:"max_items" validate:"required,min=1"`
}

// ResetRateLimitedRequest optionally bounds a rate-limited promotion
// pass. Zero or absent means no bound.
type ResetRateLimitedRequest struct {
	MaxItems int `json:"max_items" validate:"omitempty,min=0"`
}

// Cleanup handles POST /api/maintenance/cleanup.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.jobs.CleanupOldItems(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

// RequeueFailed handles POST /api/maintenance/requeue-failed.
func (h *MaintenanceHandler) RequeueFailed(w http.ResponseWriter, r *http.Request) {
	var req RequeueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	requeued, err := h.jobs.RequeueFailedItems(r.Context(), req.MaxItems)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"requeued": requeued})
}

// ResetRateLimited handles POST /api/maintenance/reset-rate-limited.
func (h *MaintenanceHandler) ResetRateLimited(w http.ResponseWriter, r *http.Request) {
	var req ResetRateLimitedRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	promoted, err := h.jobs.ResetRateLimited(r.Context(), req.MaxItems)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"promoted": promoted})
}

// ReclaimStale handles POST /api/maintenance/reclaim-stale.
func (h *MaintenanceHandler) ReclaimStale(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.ReclaimStaleWorkers(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// ResetRateLimit handles POST /api/rate-limits/{provider}/reset, the
// manual cooldown override.
func (h *MaintenanceHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "provider is required")
		return
	}

	if err := h.coordinator.Reset(r.Context(), provider); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}
