package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docuvec/embedq/internal/api"
	apiMiddleware "github.com/docuvec/embedq/internal/api/middleware"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/store"
)

// setupRouter configures the admin API router with all routes and
// middleware.
func (app *application) setupRouter(
	tasks store.TaskStore,
	workers store.WorkerStore,
	intake *queue.Intake,
	providers *provider.Router,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	itemHandler := api.NewItemHandler(tasks, intake, providers)
	workerHandler := api.NewWorkerHandler(app.pool, workers)
	configHandler := api.NewConfigHandler(app.configCache)
	maintenanceHandler := api.NewMaintenanceHandler(app.jobs, app.coordinator)
	monitorHandler := api.NewMonitorHandler(tasks, app.pool, app.aggregator)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiMiddleware.TraceMiddleware)

		// Item endpoints. The dead-letter route registers before {id} so
		// chi does not swallow it as an item ID.
		r.Post("/items", itemHandler.Enqueue)
		r.Post("/items/batch", itemHandler.EnqueueBatch)
		r.Get("/items/dead-letter", itemHandler.DeadLetters)
		r.Get("/items/{id}", itemHandler.GetItem)

		// Worker lifecycle endpoints
		r.Post("/workers", workerHandler.StartWorker)
		r.Get("/workers", workerHandler.ListWorkers)
		r.Delete("/workers/{id}", workerHandler.StopWorker)

		// Read-only monitoring endpoints
		r.Get("/stats", monitorHandler.Stats)
		r.Get("/health/assessment", monitorHandler.Assessment)

		// Configuration endpoints
		r.Get("/config", configHandler.GetConfig)
		r.Patch("/config", configHandler.UpdateConfig)

		// On-demand maintenance endpoints
		r.Post("/maintenance/cleanup", maintenanceHandler.Cleanup)
		r.Post("/maintenance/requeue-failed", maintenanceHandler.RequeueFailed)
		r.Post("/maintenance/reset-rate-limited", maintenanceHandler.ResetRateLimited)
		r.Post("/maintenance/reclaim-stale", maintenanceHandler.ReclaimStale)

		r.Post("/rate-limits/{provider}/reset", maintenanceHandler.ResetRateLimit)
	})

	// Liveness check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
