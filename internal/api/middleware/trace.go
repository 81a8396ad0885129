// Package middleware provides HTTP middleware for the admin API.
package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/docuvec/embedq/internal/api/shared"
)

// TraceMiddleware ensures every request carries a trace ID, reusing the
// chi request ID when present so log lines and error responses correlate.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = shared.SetTraceID(ctx, chimiddleware.GetReqID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
