package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/memory"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobsFixture struct {
	tasks   *memory.TaskStore
	workers *memory.WorkerStore
	cache   *queue.ConfigCache
	jobs    *Jobs
}

func newJobsFixture(t *testing.T) *jobsFixture {
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
	router := provider.NewRouter()
	router.Register(provider.NewFakeClient("gemini"))

	pool := worker.NewPool(worker.RunnerConfig{
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
	}, scheduler, engine, router, tuner, cache, workers, tasks)

	return &jobsFixture{
		tasks:   tasks,
		workers: workers,
		cache:   cache,
		jobs:    NewJobs(tasks, pool, cache),
	}
}

func (f *jobsFixture) enqueue(t *testing.T, n int) []*domain.QueueItem {
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

func (f *jobsFixture) failAll(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	w := uuid.New()
	claimed, err := f.tasks.ClaimBatch(ctx, w, n, nil)
	require.NoError(t, err)
	require.Len(t, claimed, n)
	for _, item := range claimed {
		require.NoError(t, f.tasks.MarkFailed(ctx, item.ID, w, "outage"))
	}
}

func TestCleanupOldItems(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	f.enqueue(t, 3)
	f.failAll(t, 2)

	// Inside the retention window: nothing to delete.
	deleted, err := f.jobs.CleanupOldItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// Move the clock past retention: the two terminal items go, the
	// pending one stays regardless of age.
	retention := f.cache.Snapshot().RetentionPeriod
	f.jobs.SetClock(func() time.Time { return time.Now().UTC().Add(retention + time.Hour) })

	deleted, err = f.jobs.CleanupOldItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	counts, err := f.tasks.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.Pending)
}

// TestRequeueFailedItems covers the recovery scenario: fifteen
// dead-letters, a bounded requeue of ten restores exactly ten with fresh
// retry budgets and leaves five failed.
func TestRequeueFailedItems(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	f.enqueue(t, 15)
	f.failAll(t, 15)

	requeued, err := f.jobs.RequeueFailedItems(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, requeued)

	counts, err := f.tasks.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Pending)
	assert.Equal(t, 5, counts.Failed)

	// Nothing to requeue returns zero, not an error.
	requeued, err = f.jobs.RequeueFailedItems(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, requeued)
}

func TestResetRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	f.enqueue(t, 4)

	w := uuid.New()
	claimed, err := f.tasks.ClaimBatch(ctx, w, 4, nil)
	require.NoError(t, err)

	until := time.Now().UTC().Add(time.Minute)
	for _, item := range claimed {
		require.NoError(t, f.tasks.MarkRateLimited(ctx, item.ID, w, until, "429"))
	}

	// Cooldowns still active: nothing promoted.
	promoted, err := f.jobs.ResetRateLimited(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	// Past the cooldown, a bounded pass promotes up to the limit.
	f.jobs.SetClock(func() time.Time { return until.Add(time.Second) })
	promoted, err = f.jobs.ResetRateLimited(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, promoted)

	promoted, err = f.jobs.ResetRateLimited(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
}

func TestReclaimStaleWorkersDelegates(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	f.enqueue(t, 2)

	dead := domain.NewWorker()
	require.NoError(t, f.workers.Create(ctx, dead))
	claimed, err := f.tasks.ClaimBatch(ctx, dead.ID, 2, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	threshold := f.cache.Snapshot().StaleWorkerThreshold
	f.workers.SetClock(func() time.Time { return time.Now().UTC().Add(threshold + time.Minute) })

	report, err := f.jobs.ReclaimStaleWorkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleWorkers)
	assert.Equal(t, 2, report.ReleasedItems)
}
