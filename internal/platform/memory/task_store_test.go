package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueN(t *testing.T, s *TaskStore, n int, priority domain.Priority) []*domain.QueueItem {
	t.Helper()
	items := make([]*domain.QueueItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := domain.NewQueueItem(
			"document", fmt.Sprintf("doc-%d", i), domain.OperationInsert,
			priority, "gemini", 100, nil,
		)
		require.NoError(t, err)
		// Spread creation times so FIFO ordering is deterministic.
		item.CreatedAt = item.CreatedAt.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, s.Enqueue(context.Background(), item))
		items = append(items, item)
	}
	return items
}

func TestEnqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	first, err := domain.NewQueueItem("document", "doc-1", domain.OperationInsert, domain.PriorityMedium, "gemini", 100, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, first))

	// Same tuple while the first is active: exactly one active item.
	dup, err := domain.NewQueueItem("document", "doc-1", domain.OperationInsert, domain.PriorityMedium, "gemini", 100, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Enqueue(ctx, dup), store.ErrDuplicateTask)

	// A different operation for the same source is distinct work.
	del, err := domain.NewQueueItem("document", "doc-1", domain.OperationDelete, domain.PriorityMedium, "gemini", 100, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Enqueue(ctx, del))

	// Once the first is terminal the tuple may be enqueued again.
	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 10, nil)
	require.NoError(t, err)
	for _, item := range claimed {
		require.NoError(t, s.MarkCompleted(ctx, item.ID, worker, 10))
	}

	again, err := domain.NewQueueItem("document", "doc-1", domain.OperationInsert, domain.PriorityMedium, "gemini", 100, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Enqueue(ctx, again))
}

func TestClaimBatchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	low := enqueueN(t, s, 2, domain.PriorityLow)
	high, err := domain.NewQueueItem("invoice", "inv-1", domain.OperationInsert, domain.PriorityHigh, "gemini", 100, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, high))

	claimed, err := s.ClaimBatch(ctx, uuid.New(), 2, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	assert.Equal(t, high.ID, claimed[0].ID, "high priority preempts older low-priority items")
	assert.Equal(t, low[0].ID, claimed[1].ID, "within a tier items are served FIFO")
}

func TestClaimBatchExcludesProvidersAndHoldOffs(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	gem, err := domain.NewQueueItem("document", "doc-1", domain.OperationInsert, domain.PriorityMedium, "gemini", 100, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, gem))

	other, err := domain.NewQueueItem("document", "doc-2", domain.OperationInsert, domain.PriorityMedium, "vertex", 100, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, other))

	claimed, err := s.ClaimBatch(ctx, uuid.New(), 10, []string{"gemini"})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, other.ID, claimed[0].ID, "cooldown providers are skipped, not failed")

	// The skipped item is still pending with its retry budget intact.
	skipped, err := s.GetByID(ctx, gem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, skipped.Status)
	assert.Zero(t, skipped.RetryCount)
}

// TestClaimExclusivity is the core safety property: N workers racing for
// M < N items never produce overlapping claims.
func TestClaimExclusivity(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 20, domain.PriorityMedium)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uuid.UUID]uuid.UUID)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerID := uuid.New()
			for {
				claimed, err := s.ClaimBatch(ctx, workerID, 3, nil)
				require.NoError(t, err)
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, item := range claimed {
					if prev, dup := seen[item.ID]; dup {
						t.Errorf("item %s claimed by both %s and %s", item.ID, prev, workerID)
					}
					seen[item.ID] = workerID
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20, "every item claimed exactly once")
}

// TestConservation verifies that no item ever silently disappears:
// status counts always sum to the total enqueued.
func TestConservation(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 10, domain.PriorityMedium)

	checkConservation := func() {
		c, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, c.Total, c.Pending+c.Processing+c.Completed+c.Failed+c.RateLimited)
		assert.Equal(t, 10, c.Total)
	}
	checkConservation()

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 4, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 4)
	checkConservation()

	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID, worker, 10))
	require.NoError(t, s.MarkFailed(ctx, claimed[1].ID, worker, "boom"))
	require.NoError(t, s.MarkForRetry(ctx, claimed[2].ID, worker, time.Now().Add(time.Minute), "transient"))
	require.NoError(t, s.MarkRateLimited(ctx, claimed[3].ID, worker, time.Now().Add(time.Minute), "429"))
	checkConservation()
}

func TestCompleteRequiresClaimOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 1, domain.PriorityMedium)

	owner := uuid.New()
	claimed, err := s.ClaimBatch(ctx, owner, 1, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	intruder := uuid.New()
	assert.ErrorIs(t, s.MarkCompleted(ctx, claimed[0].ID, intruder, 5), store.ErrNotClaimOwner)
	assert.ErrorIs(t, s.MarkFailed(ctx, claimed[0].ID, intruder, "x"), store.ErrNotClaimOwner)

	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID, owner, 5))

	// Terminal items cannot be completed twice.
	assert.ErrorIs(t, s.MarkCompleted(ctx, claimed[0].ID, owner, 5), store.ErrNotClaimOwner)
}

func TestMarkForRetryStampsHoldOff(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 1, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 1, nil)
	require.NoError(t, err)

	notBefore := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.MarkForRetry(ctx, claimed[0].ID, worker, notBefore, "timeout"))

	item, err := s.GetByID(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.NotBefore)
	assert.Equal(t, notBefore, *item.NotBefore)
	require.NotNil(t, item.LastError)
	assert.Equal(t, "timeout", *item.LastError)

	// Held-off items are not claimable until the delay elapses.
	claimed, err = s.ClaimBatch(ctx, worker, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestReleaseByWorker(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 5, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 5, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 5)

	released, err := s.ReleaseByWorker(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, 5, released)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Pending)
	assert.Zero(t, c.Processing)

	// Released items are claimable by other workers.
	claimed, err = s.ClaimBatch(ctx, uuid.New(), 5, nil)
	require.NoError(t, err)
	assert.Len(t, claimed, 5)
}

func TestReleaseExpiredClaims(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 2, domain.PriorityMedium)

	base := time.Now().UTC()
	s.SetClock(func() time.Time { return base })

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 2, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// Nothing expires while claims are young.
	released, err := s.ReleaseExpiredClaims(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, released)

	s.SetClock(func() time.Time { return base.Add(11 * time.Minute) })
	released, err = s.ReleaseExpiredClaims(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, released)
}

func TestPromoteRateLimited(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 3, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 3, nil)
	require.NoError(t, err)

	until := time.Now().UTC().Add(30 * time.Second)
	for _, item := range claimed {
		require.NoError(t, s.MarkRateLimited(ctx, item.ID, worker, until, "429"))
	}

	// Before the cooldown passes nothing is promoted.
	promoted, err := s.PromoteRateLimited(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	promoted, err = s.PromoteRateLimited(ctx, until.Add(time.Second), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, promoted, "promotion honors the bound")

	promoted, err = s.PromoteRateLimited(ctx, until.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
}

func TestRequeueFailedResetsRetryCount(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 15, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 15, nil)
	require.NoError(t, err)
	for _, item := range claimed {
		require.NoError(t, s.MarkFailed(ctx, item.ID, worker, "terminal"))
	}

	requeued, err := s.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, requeued)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Pending)
	assert.Equal(t, 5, c.Failed)

	for _, item := range claimed {
		got, err := s.GetByID(ctx, item.ID)
		require.NoError(t, err)
		if got.Status == domain.ItemStatusPending {
			assert.Zero(t, got.RetryCount, "requeued items restart with a full retry budget")
		}
	}
}

// TestRequeueFailedPicksOldestCreated pins the ordering of a bounded
// requeue: items come back by creation time, not by when they failed,
// so both store implementations pick the same items under the same
// bound.
func TestRequeueFailedPicksOldestCreated(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	items := enqueueN(t, s, 3, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 3, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 3)

	// Fail newest-created first, so failure time runs opposite to
	// creation time.
	base := time.Now().UTC()
	for i := len(claimed) - 1; i >= 0; i-- {
		s.SetClock(func() time.Time { return base.Add(time.Duration(len(claimed)-i) * time.Second) })
		require.NoError(t, s.MarkFailed(ctx, claimed[i].ID, worker, "terminal"))
	}

	requeued, err := s.RequeueFailed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	got, err := s.GetByID(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, got.Status, "the oldest-created item is requeued first")

	got, err = s.GetByID(ctx, items[2].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusFailed, got.Status)
}

func TestDeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 4, domain.PriorityMedium)

	base := time.Now().UTC()
	s.SetClock(func() time.Time { return base })

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID, worker, 1))
	require.NoError(t, s.MarkFailed(ctx, claimed[1].ID, worker, "x"))

	// Pending items are never cleaned up regardless of age.
	deleted, err := s.DeleteTerminalBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Total)
	assert.Equal(t, 2, c.Pending)
}

func TestDeadLetters(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	enqueueN(t, s, 3, domain.PriorityMedium)

	worker := uuid.New()
	claimed, err := s.ClaimBatch(ctx, worker, 3, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, claimed[0].ID, worker, "a"))
	require.NoError(t, s.MarkFailed(ctx, claimed[1].ID, worker, "b"))
	require.NoError(t, s.MarkCompleted(ctx, claimed[2].ID, worker, 1))

	letters, err := s.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, letters, 2)
	for _, item := range letters {
		assert.Equal(t, domain.ItemStatusFailed, item.Status)
	}
}
