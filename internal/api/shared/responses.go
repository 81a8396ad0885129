package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the standard JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes data as a JSON response with the given status.
// An encoding failure after the header is written can only be logged.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response",
			"error", err,
			"trace_id", GetTraceID(r.Context()))
	}
}

// RespondWithError writes a standard JSON error response carrying the
// request's trace ID.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}

// RespondWithErrorAndLog logs the underlying error and writes a safe
// message to the client. Server faults log at ERROR, rate limiting at
// WARN, and remaining client errors at DEBUG; client mistakes are not
// operational incidents.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, safeMessage string, err error) {
	ctx := r.Context()
	attrs := []any{
		"status", status,
		"error", err,
		"trace_id", GetTraceID(ctx),
		"path", r.URL.Path,
	}

	switch {
	case status >= 500:
		slog.ErrorContext(ctx, safeMessage, attrs...)
	case status == http.StatusTooManyRequests || status == http.StatusConflict:
		slog.WarnContext(ctx, safeMessage, attrs...)
	default:
		slog.DebugContext(ctx, safeMessage, attrs...)
	}

	RespondWithError(w, r, status, safeMessage)
}
