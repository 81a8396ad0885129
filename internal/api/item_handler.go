package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/docuvec/embedq/internal/api/shared"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/store"
)

// defaultDeadLetterLimit caps the dead-letter view when the client does
// not ask for a specific page size.
const defaultDeadLetterLimit = 50

// maxBatchItems caps a single batch enqueue request.
const maxBatchItems = 100

// ItemHandler serves the queue item routes.
type ItemHandler struct {
	tasks    store.TaskStore
	intake   *queue.Intake
	router   *provider.Router
	validate *validator.Validate
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(tasks store.TaskStore, intake *queue.Intake, router *provider.Router) *ItemHandler {
	return &ItemHandler{
		tasks:    tasks,
		intake:   intake,
		router:   router,
		validate: validator.New(),
	}
}

// EnqueueRequest is the payload for enqueueing a new item.
type EnqueueRequest struct {
	SourceType    string            `json:"source_type" validate:"required"`
	SourceID      string            `json:"source_id" validate:"required"`
	Operation     string            `json:"operation" validate:"required,oneof=insert update delete"`
	Priority      string            `json:"priority" validate:"omitempty,oneof=low medium high"`
	Provider      string            `json:"provider" validate:"required"`
	EstimatedCost int               `json:"estimated_cost" validate:"omitempty,min=0"`
	Metadata      map[string]string `json:"metadata"`
}

// BatchEnqueueRequest is the payload for enqueueing several items at
// once.
type BatchEnqueueRequest struct {
	Items []EnqueueRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// Enqueue handles POST /api/items. The item is accepted for asynchronous
// processing, so success is 202, not 201.
func (h *ItemHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	item, err := h.buildItem(req)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if err := h.intake.Enqueue(r.Context(), item); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, item)
}

// EnqueueBatch handles POST /api/items/batch. With a database-backed
// store the batch is all-or-nothing: a duplicate anywhere rejects the
// whole request.
func (h *ItemHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchEnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}
	if len(req.Items) > maxBatchItems {
		shared.RespondWithError(w, r, http.StatusBadRequest, "too many items in batch")
		return
	}

	items := make([]*domain.QueueItem, 0, len(req.Items))
	for _, itemReq := range req.Items {
		item, err := h.buildItem(itemReq)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		items = append(items, item)
	}

	if err := h.intake.EnqueueBatch(r.Context(), items); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// buildItem validates the request's routing and turns it into a pending
// queue item. Unknown providers are rejected at the boundary; an item
// for a provider nobody serves would sit pending forever.
func (h *ItemHandler) buildItem(req EnqueueRequest) (*domain.QueueItem, error) {
	if _, err := h.router.Resolve(req.Provider); err != nil {
		return nil, err
	}

	priority := domain.PriorityMedium
	if req.Priority != "" {
		parsed, err := domain.ParsePriority(req.Priority)
		if err != nil {
			return nil, err
		}
		priority = parsed
	}

	return domain.NewQueueItem(
		req.SourceType,
		req.SourceID,
		domain.Operation(req.Operation),
		priority,
		req.Provider,
		req.EstimatedCost,
		req.Metadata,
	)
}

// GetItem handles GET /api/items/{id}.
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid item ID")
		return
	}

	item, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// DeadLetters handles GET /api/items/dead-letter, the view of items that
// exhausted their retry budget.
func (h *ItemHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	items, err := h.tasks.DeadLetters(r.Context(), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}
