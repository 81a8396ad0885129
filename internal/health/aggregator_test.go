package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthFixture struct {
	tasks      *memory.TaskStore
	workers    *memory.WorkerStore
	aggregator *Aggregator
}

func newHealthFixture(t *testing.T) *healthFixture {
	t.Helper()
	tasks := memory.NewTaskStore()
	workers := memory.NewWorkerStore()
	return &healthFixture{
		tasks:      tasks,
		workers:    workers,
		aggregator: NewAggregator(tasks, workers),
	}
}

func (f *healthFixture) addWorker(t *testing.T, status domain.WorkerStatus) *domain.Worker {
	t.Helper()
	w := domain.NewWorker()
	w.Status = status
	require.NoError(t, f.workers.Create(context.Background(), w))
	return w
}

func (f *healthFixture) enqueue(t *testing.T, n int) []*domain.QueueItem {
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

func TestAssessUnknownWithoutWorkers(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.enqueue(t, 3)

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, a.Status)
	assert.Zero(t, a.RegisteredWorkers)
}

func TestAssessHealthyIdleQueue(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.addWorker(t, domain.WorkerStatusIdle)

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, a.Status)
	assert.Equal(t, 100, a.Score)
	assert.Equal(t, 1.0, a.SuccessRate, "no processed items counts as a perfect success rate")
}

func TestAssessSuccessRate(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.addWorker(t, domain.WorkerStatusActive)
	f.enqueue(t, 4)

	worker := uuid.New()
	claimed, err := f.tasks.ClaimBatch(ctx, worker, 4, nil)
	require.NoError(t, err)
	require.NoError(t, f.tasks.MarkCompleted(ctx, claimed[0].ID, worker, 1))
	require.NoError(t, f.tasks.MarkCompleted(ctx, claimed[1].ID, worker, 1))
	require.NoError(t, f.tasks.MarkCompleted(ctx, claimed[2].ID, worker, 1))
	require.NoError(t, f.tasks.MarkFailed(ctx, claimed[3].ID, worker, "x"))

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, a.SuccessRate, 0.001)
	assert.Equal(t, 3, a.ThroughputPerHour)
}

func TestAssessPenalizesNoActiveWorkers(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)

	// A registered but stopped worker: the queue is known, but dead.
	w := f.addWorker(t, domain.WorkerStatusIdle)
	require.NoError(t, f.workers.MarkStopped(ctx, w.ID))
	f.enqueue(t, 1)

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, a.RegisteredWorkers)
	assert.Zero(t, a.ActiveWorkers)
	assert.LessOrEqual(t, a.Score, 60)
	assert.NotEqual(t, StatusUnknown, a.Status)
}

func TestAssessPenalizesBacklogAndAge(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.addWorker(t, domain.WorkerStatusActive)
	f.enqueue(t, backlogThreshold+backlogThreshold/2)

	// Age the queue far past the staleness threshold.
	f.aggregator.SetClock(func() time.Time {
		return time.Now().UTC().Add(3 * oldestAgeThreshold)
	})

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.Less(t, a.Score, 80, "backlog and age push the score out of healthy")
	assert.Greater(t, a.OldestPendingAge, oldestAgeThreshold)
}

func TestAssessPenalizesFailureRate(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.addWorker(t, domain.WorkerStatusActive)
	items := f.enqueue(t, 10)

	worker := uuid.New()
	claimed, err := f.tasks.ClaimBatch(ctx, worker, 10, nil)
	require.NoError(t, err)
	require.Len(t, claimed, len(items))
	for i, item := range claimed {
		if i < 5 {
			require.NoError(t, f.tasks.MarkCompleted(ctx, item.ID, worker, 1))
		} else {
			require.NoError(t, f.tasks.MarkFailed(ctx, item.ID, worker, "boom"))
		}
	}

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a.SuccessRate, 0.001)
	assert.Less(t, a.Score, 80)
}

func TestAssessWorkerEfficiency(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	w := f.addWorker(t, domain.WorkerStatusActive)

	// The worker spent half its lifetime processing.
	require.NoError(t, f.workers.RecordOutcome(ctx, w.ID, 30*time.Second, true, false))
	f.aggregator.SetClock(func() time.Time { return w.CreatedAt.Add(time.Minute) })

	a, err := f.aggregator.Assess(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a.WorkerEfficiency, 0.01)
}
