package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/memory"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolFixture struct {
	tasks   *memory.TaskStore
	workers *memory.WorkerStore
	windows *memory.RateLimitStore
	cache   *queue.ConfigCache
	fake    *provider.FakeClient
	tuner   *queue.StrategyTuner
	pool    *Pool
}

func newPoolFixture(t *testing.T) *poolFixture {
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
	router := provider.NewRouter()
	router.Register(fake)

	cfg := RunnerConfig{
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
	}

	return &poolFixture{
		tasks:   tasks,
		workers: workers,
		windows: windows,
		cache:   cache,
		fake:    fake,
		tuner:   tuner,
		pool:    NewPool(cfg, scheduler, engine, router, tuner, cache, workers, tasks),
	}
}

func (f *poolFixture) enqueue(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item, err := domain.NewQueueItem(
			"document", fmt.Sprintf("doc-%d", i), domain.OperationInsert,
			domain.PriorityMedium, "gemini", 10, nil,
		)
		require.NoError(t, err)
		require.NoError(t, f.tasks.Enqueue(context.Background(), item))
	}
}

// TestPoolDrainsQueue is the end-to-end scenario: three workers drain one
// hundred items, every item is processed exactly once, and nothing is left
// behind in a non-terminal state.
func TestPoolDrainsQueue(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.enqueue(t, 100)

	for i := 0; i < 3; i++ {
		_, err := f.pool.StartWorker(ctx)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		counts, err := f.tasks.Counts(ctx)
		return err == nil && counts.Completed == 100
	}, 10*time.Second, 10*time.Millisecond, "queue should drain completely")

	require.NoError(t, f.pool.StopAll(ctx))

	counts, err := f.tasks.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, counts.Completed)
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.Processing)
	assert.Zero(t, counts.Failed)

	// Exactly one provider call per item: no double processing.
	assert.Equal(t, 100, f.fake.Calls())
}

func TestPoolEnforcesWorkerCap(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)

	cfg := f.cache.Snapshot()
	cfg.MaxConcurrentWorkers = 2
	require.NoError(t, f.cache.Update(ctx, cfg))

	_, err := f.pool.StartWorker(ctx)
	require.NoError(t, err)
	_, err = f.pool.StartWorker(ctx)
	require.NoError(t, err)

	_, err = f.pool.StartWorker(ctx)
	assert.ErrorIs(t, err, ErrWorkerCapReached)

	require.NoError(t, f.pool.StopAll(ctx))
}

// TestPoolCapTunedByStrategy checks that the effective worker cap is
// strategy-tuned rather than the raw configured maximum.
func TestPoolCapTunedByStrategy(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)

	cfg := f.cache.Snapshot()
	cfg.MaxConcurrentWorkers = 4
	cfg.Strategy = domain.StrategyConservative
	require.NoError(t, f.cache.Update(ctx, cfg))

	// Conservative halves the cap: two slots, not four.
	_, err := f.pool.StartWorker(ctx)
	require.NoError(t, err)
	_, err = f.pool.StartWorker(ctx)
	require.NoError(t, err)
	_, err = f.pool.StartWorker(ctx)
	assert.ErrorIs(t, err, ErrWorkerCapReached)

	require.NoError(t, f.pool.StopAll(ctx))
}

// TestPoolCapShrinksUnderRateLimits checks the adaptive strategy: an
// elevated rate-limit rate reduces how many workers may start, and the
// cap recovers once the rate falls off.
func TestPoolCapShrinksUnderRateLimits(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)

	base := time.Now().UTC()
	f.tuner.SetClock(func() time.Time { return base })

	cfg := f.cache.Snapshot()
	cfg.MaxConcurrentWorkers = 4
	cfg.Strategy = domain.StrategyAdaptive
	require.NoError(t, f.cache.Update(ctx, cfg))

	// Every recent outcome rate limited: one probe worker only.
	for i := 0; i < 10; i++ {
		f.tuner.RecordOutcome(true)
	}

	_, err := f.pool.StartWorker(ctx)
	require.NoError(t, err)
	_, err = f.pool.StartWorker(ctx)
	assert.ErrorIs(t, err, ErrWorkerCapReached)

	// The window ages out: full concurrency is restored.
	f.tuner.SetClock(func() time.Time { return base.Add(6 * time.Minute) })
	for i := 0; i < 3; i++ {
		_, err = f.pool.StartWorker(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, f.pool.StopAll(ctx))
}

func TestStopWorkerMarksStoppedAndFreesSlot(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)

	w, err := f.pool.StartWorker(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.pool.RunningCount())

	require.NoError(t, f.pool.StopWorker(ctx, w.ID))
	assert.Equal(t, 0, f.pool.RunningCount())

	stored, err := f.workers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusStopped, stored.Status)

	// Stopping twice reports the worker as not running.
	assert.ErrorIs(t, f.pool.StopWorker(ctx, w.ID), ErrWorkerNotRunning)
}

// TestReclaimStaleWorkers covers the crash scenario: a worker holding five
// claims stops heartbeating, and a reclamation pass returns all five items
// to the pending pool.
func TestReclaimStaleWorkers(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.enqueue(t, 5)

	// A worker registered outside the pool, simulating a crashed process.
	dead := domain.NewWorker()
	require.NoError(t, f.workers.Create(ctx, dead))

	claimed, err := f.tasks.ClaimBatch(ctx, dead.ID, 5, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 5)

	// Age its heartbeat past the staleness threshold.
	threshold := f.cache.Snapshot().StaleWorkerThreshold
	f.workers.SetClock(func() time.Time { return time.Now().UTC().Add(threshold + time.Minute) })

	report, err := f.pool.ReclaimStaleWorkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleWorkers)
	assert.Equal(t, 5, report.ReleasedItems)

	counts, err := f.tasks.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Pending)
	assert.Zero(t, counts.Processing)

	stored, err := f.workers.GetByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusStopped, stored.Status)

	// A second pass finds nothing left to reclaim.
	report, err = f.pool.ReclaimStaleWorkers(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.StaleWorkers)
	assert.Zero(t, report.ReleasedItems)
}

func TestRunnerRoutesFailuresThroughRetryEngine(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.enqueue(t, 1)

	// First attempt fails transiently, later attempts succeed.
	f.fake.Script(provider.FakeResponse{
		Err: provider.NewProviderError("gemini", provider.KindTransient, 0, errors.New("flaky")),
	})

	// Keep retry delays tiny so the test retries promptly.
	cfg := f.cache.Snapshot()
	cfg.BaseRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 2 * time.Millisecond
	require.NoError(t, f.cache.Update(ctx, cfg))

	w, err := f.pool.StartWorker(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, err := f.tasks.Counts(ctx)
		return err == nil && counts.Completed == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.pool.StopAll(ctx))

	stored, err := f.workers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.TasksProcessed)
	assert.Equal(t, int64(1), stored.ErrorCount)
}
