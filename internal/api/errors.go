package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/store"
	"github.com/docuvec/embedq/internal/worker"
)

// MapErrorToStatusCode translates domain and store errors into HTTP
// status codes. Unrecognized errors map to 500.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, worker.ErrWorkerNotRunning):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, store.ErrNotClaimOwner),
		errors.Is(err, worker.ErrWorkerCapReached):
		return http.StatusConflict

	case errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, store.ErrInvalidEntity),
		isValidationError(err):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for the error.
// Validation and conflict errors pass through; everything else collapses
// to a generic message so internals never leak to clients.
func GetSafeErrorMessage(err error) string {
	switch {
	case isValidationError(err):
		return err.Error()
	case errors.Is(err, store.ErrDuplicate):
		return "an equivalent task is already queued"
	case errors.Is(err, store.ErrNotFound):
		return "resource not found"
	case errors.Is(err, worker.ErrWorkerNotRunning):
		return "worker is not running"
	case errors.Is(err, worker.ErrWorkerCapReached):
		return "maximum concurrent workers reached"
	case errors.Is(err, provider.ErrUnknownProvider):
		return "unknown embedding provider"
	default:
		return "internal server error"
	}
}

// isValidationError reports whether err stems from input validation:
// struct-tag validation failures or the domain's own invariant errors.
func isValidationError(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}

	for _, target := range []error{
		domain.ErrEmptySourceType,
		domain.ErrEmptySourceID,
		domain.ErrEmptyProvider,
		domain.ErrInvalidOperation,
		domain.ErrInvalidPriority,
		domain.ErrInvalidBatchSize,
		domain.ErrInvalidWorkerCap,
		domain.ErrInvalidRetryDelays,
		domain.ErrInvalidBackoff,
		domain.ErrInvalidJitter,
		domain.ErrInvalidStaleThreshold,
		domain.ErrInvalidProcessingLimit,
		domain.ErrInvalidRetention,
		domain.ErrInvalidCooldown,
		domain.ErrInvalidStrategy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SanitizeValidationError rewrites validator messages into field-level
// hints without echoing submitted values back to the client.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, getValidationTagMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func getValidationTagMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	default:
		return field + " is invalid"
	}
}
