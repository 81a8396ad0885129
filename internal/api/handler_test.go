package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	apimiddleware "github.com/docuvec/embedq/internal/api/middleware"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/health"
	"github.com/docuvec/embedq/internal/maintenance"
	"github.com/docuvec/embedq/internal/platform/memory"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/worker"
)

// apiFixture wires the full engine over memory stores behind a chi
// router with the production route layout.
type apiFixture struct {
	tasks       *memory.TaskStore
	workers     *memory.WorkerStore
	cache       *queue.ConfigCache
	coordinator *queue.Coordinator
	pool        *worker.Pool
	fake        *provider.FakeClient
	server      *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	tasks := memory.NewTaskStore()
	workers := memory.NewWorkerStore()
	windows := memory.NewRateLimitStore()

	cache, err := queue.NewConfigCache(ctx, memory.NewConfigStore(), domain.DefaultQueueConfig())
	require.NoError(t, err)

	coordinator := queue.NewCoordinator(windows, cache)
	tuner := queue.NewStrategyTuner()
	scheduler := queue.NewScheduler(tasks, coordinator, tuner, cache)
	engine := queue.NewRetryEngine(tasks, coordinator, cache)

	fake := provider.NewFakeClient("gemini")
	providers := provider.NewRouter()
	providers.Register(fake)

	pool := worker.NewPool(worker.RunnerConfig{
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
	}, scheduler, engine, providers, tuner, cache, workers, tasks)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.StopAll(stopCtx)
	})

	jobs := maintenance.NewJobs(tasks, pool, cache)
	aggregator := health.NewAggregator(tasks, workers)

	intake := queue.NewIntake(tasks, nil)
	itemHandler := NewItemHandler(tasks, intake, providers)
	workerHandler := NewWorkerHandler(pool, workers)
	configHandler := NewConfigHandler(cache)
	maintenanceHandler := NewMaintenanceHandler(jobs, coordinator)
	monitorHandler := NewMonitorHandler(tasks, pool, aggregator)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.TraceMiddleware)

		r.Post("/items", itemHandler.Enqueue)
		r.Post("/items/batch", itemHandler.EnqueueBatch)
		r.Get("/items/dead-letter", itemHandler.DeadLetters)
		r.Get("/items/{id}", itemHandler.GetItem)

		r.Post("/workers", workerHandler.StartWorker)
		r.Get("/workers", workerHandler.ListWorkers)
		r.Delete("/workers/{id}", workerHandler.StopWorker)

		r.Get("/stats", monitorHandler.Stats)
		r.Get("/health/assessment", monitorHandler.Assessment)

		r.Get("/config", configHandler.GetConfig)
		r.Patch("/config", configHandler.UpdateConfig)

		r.Post("/maintenance/cleanup", maintenanceHandler.Cleanup)
		r.Post("/maintenance/requeue-failed", maintenanceHandler.RequeueFailed)
		r.Post("/maintenance/reset-rate-limited", maintenanceHandler.ResetRateLimited)
		r.Post("/maintenance/reclaim-stale", maintenanceHandler.ReclaimStale)

		r.Post("/rate-limits/{provider}/reset", maintenanceHandler.ResetRateLimit)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &apiFixture{
		tasks:       tasks,
		workers:     workers,
		cache:       cache,
		coordinator: coordinator,
		pool:        pool,
		fake:        fake,
		server:      server,
	}
}

// do issues a request against the fixture server and decodes the JSON
// body into out when out is non-nil.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// enqueueItems seeds n pending items directly through the store.
func (f *apiFixture) enqueueItems(t *testing.T, n int) []*domain.QueueItem {
	t.Helper()
	items := make([]*domain.QueueItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := domain.NewQueueItem("document", fmt.Sprintf("doc-%d", i),
			domain.OperationInsert, domain.PriorityMedium, "gemini", 10, nil)
		require.NoError(t, err)
		require.NoError(t, f.tasks.Enqueue(context.Background(), item))
		items = append(items, item)
	}
	return items
}
