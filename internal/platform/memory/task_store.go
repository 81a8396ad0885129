package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// TaskStore is an in-memory store.TaskStore. All operations execute
// under a single mutex, so each one is atomic with respect to every
// other caller.
type TaskStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.QueueItem
	now   func() time.Time
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		items: make(map[uuid.UUID]*domain.QueueItem),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *TaskStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Enqueue implements store.TaskStore.
func (s *TaskStore) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	if err := item.Validate(); err != nil {
		return store.NewStoreError("queue_item", "enqueue", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if !existing.IsTerminal() &&
			existing.SourceType == item.SourceType &&
			existing.SourceID == item.SourceID &&
			existing.Operation == item.Operation {
			return store.ErrDuplicateTask
		}
	}

	s.items[item.ID] = copyItem(item)
	return nil
}

// GetByID implements store.TaskStore.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return copyItem(item), nil
}

// ClaimBatch implements store.TaskStore. The whole select-and-claim runs
// under the store mutex, so overlapping claims are impossible.
func (s *TaskStore) ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, excludedProviders []string) ([]*domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	excluded := make(map[string]bool, len(excludedProviders))
	for _, p := range excludedProviders {
		excluded[p] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var eligible []*domain.QueueItem
	for _, item := range s.items {
		if item.Claimable(now) && !excluded[item.Provider] {
			eligible = append(eligible, item)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*domain.QueueItem, 0, len(eligible))
	for _, item := range eligible {
		w := workerID
		at := now
		item.Status = domain.ItemStatusProcessing
		item.ClaimedBy = &w
		item.ClaimedAt = &at
		item.NotBefore = nil
		item.UpdatedAt = now
		claimed = append(claimed, copyItem(item))
	}

	return claimed, nil
}

// MarkCompleted implements store.TaskStore.
func (s *TaskStore) MarkCompleted(ctx context.Context, itemID, workerID uuid.UUID, actualCost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.claimedItem(itemID, workerID)
	if err != nil {
		return err
	}

	cost := actualCost
	item.Status = domain.ItemStatusCompleted
	item.ActualCost = &cost
	item.ClaimedBy = nil
	item.ClaimedAt = nil
	item.LastError = nil
	item.UpdatedAt = s.now()
	return nil
}

// MarkForRetry implements store.TaskStore.
func (s *TaskStore) MarkForRetry(ctx context.Context, itemID, workerID uuid.UUID, notBefore time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.claimedItem(itemID, workerID)
	if err != nil {
		return err
	}

	nb := notBefore
	msg := lastError
	item.Status = domain.ItemStatusPending
	item.RetryCount++
	item.NotBefore = &nb
	item.ClaimedBy = nil
	item.ClaimedAt = nil
	item.LastError = &msg
	item.UpdatedAt = s.now()
	return nil
}

// MarkFailed implements store.TaskStore.
func (s *TaskStore) MarkFailed(ctx context.Context, itemID, workerID uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.claimedItem(itemID, workerID)
	if err != nil {
		return err
	}

	msg := lastError
	item.Status = domain.ItemStatusFailed
	item.ClaimedBy = nil
	item.ClaimedAt = nil
	item.LastError = &msg
	item.UpdatedAt = s.now()
	return nil
}

// MarkRateLimited implements store.TaskStore.
func (s *TaskStore) MarkRateLimited(ctx context.Context, itemID, workerID uuid.UUID, notBefore time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.claimedItem(itemID, workerID)
	if err != nil {
		return err
	}

	nb := notBefore
	msg := lastError
	item.Status = domain.ItemStatusRateLimited
	item.NotBefore = &nb
	item.ClaimedBy = nil
	item.ClaimedAt = nil
	item.LastError = &msg
	item.UpdatedAt = s.now()
	return nil
}

// Release implements store.TaskStore.
func (s *TaskStore) Release(ctx context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return store.ErrItemNotFound
	}
	if item.Status != domain.ItemStatusProcessing {
		return nil
	}

	s.release(item)
	return nil
}

// ReleaseByWorker implements store.TaskStore.
func (s *TaskStore) ReleaseByWorker(ctx context.Context, workerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, item := range s.items {
		if item.Status == domain.ItemStatusProcessing &&
			item.ClaimedBy != nil && *item.ClaimedBy == workerID {
			s.release(item)
			released++
		}
	}
	return released, nil
}

// ReleaseExpiredClaims implements store.TaskStore.
func (s *TaskStore) ReleaseExpiredClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	released := 0
	for _, item := range s.items {
		if item.Status == domain.ItemStatusProcessing &&
			item.ClaimedAt != nil && now.Sub(*item.ClaimedAt) > olderThan {
			s.release(item)
			released++
		}
	}
	return released, nil
}

// PromoteRateLimited implements store.TaskStore.
func (s *TaskStore) PromoteRateLimited(ctx context.Context, now time.Time, maxItems int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoted := 0
	for _, item := range s.items {
		if maxItems > 0 && promoted >= maxItems {
			break
		}
		if item.Status == domain.ItemStatusRateLimited &&
			(item.NotBefore == nil || !now.Before(*item.NotBefore)) {
			item.Status = domain.ItemStatusPending
			item.NotBefore = nil
			item.UpdatedAt = s.now()
			promoted++
		}
	}
	return promoted, nil
}

// Counts implements store.TaskStore.
func (s *TaskStore) Counts(ctx context.Context) (domain.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c domain.QueueCounts
	for _, item := range s.items {
		switch item.Status {
		case domain.ItemStatusPending:
			c.Pending++
		case domain.ItemStatusProcessing:
			c.Processing++
		case domain.ItemStatusCompleted:
			c.Completed++
		case domain.ItemStatusFailed:
			c.Failed++
		case domain.ItemStatusRateLimited:
			c.RateLimited++
		}
		c.Total++
	}
	return c, nil
}

// DeadLetters implements store.TaskStore.
func (s *TaskStore) DeadLetters(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*domain.QueueItem
	for _, item := range s.items {
		if item.Status == domain.ItemStatusFailed {
			failed = append(failed, item)
		}
	}

	sort.Slice(failed, func(i, j int) bool {
		return failed[i].UpdatedAt.After(failed[j].UpdatedAt)
	})

	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	out := make([]*domain.QueueItem, 0, len(failed))
	for _, item := range failed {
		out = append(out, copyItem(item))
	}
	return out, nil
}

// OldestPendingAge implements store.TaskStore.
func (s *TaskStore) OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest time.Time
	for _, item := range s.items {
		if item.Status != domain.ItemStatusPending {
			continue
		}
		if oldest.IsZero() || item.CreatedAt.Before(oldest) {
			oldest = item.CreatedAt
		}
	}
	if oldest.IsZero() {
		return 0, nil
	}
	return now.Sub(oldest), nil
}

// CompletedSince implements store.TaskStore.
func (s *TaskStore) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		if item.Status == domain.ItemStatusCompleted && item.UpdatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// DeleteTerminalBefore implements store.TaskStore.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, item := range s.items {
		if item.IsTerminal() && item.UpdatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// RequeueFailed implements store.TaskStore.
func (s *TaskStore) RequeueFailed(ctx context.Context, maxItems int) (int, error) {
	if maxItems <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Oldest items first, by creation time, so repeated bounded requeues
	// drain the dead-letter set deterministically and both store
	// implementations pick the same items under the same bound.
	var failed []*domain.QueueItem
	for _, item := range s.items {
		if item.Status == domain.ItemStatusFailed {
			failed = append(failed, item)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].CreatedAt.Before(failed[j].CreatedAt)
	})

	if maxItems > 0 && len(failed) > maxItems {
		failed = failed[:maxItems]
	}

	now := s.now()
	for _, item := range failed {
		item.Status = domain.ItemStatusPending
		item.RetryCount = 0
		item.NotBefore = nil
		item.LastError = nil
		item.UpdatedAt = now
	}
	return len(failed), nil
}

// WithTx returns the store itself: the in-memory implementation has no
// transactions, its mutex already makes each operation atomic.
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return s
}

// claimedItem returns the item iff it is processing under workerID.
// Callers must hold s.mu.
func (s *TaskStore) claimedItem(itemID, workerID uuid.UUID) (*domain.QueueItem, error) {
	item, ok := s.items[itemID]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	if item.Status != domain.ItemStatusProcessing ||
		item.ClaimedBy == nil || *item.ClaimedBy != workerID {
		return nil, store.ErrNotClaimOwner
	}
	return item, nil
}

// release resets one processing item to pending. Callers must hold s.mu.
func (s *TaskStore) release(item *domain.QueueItem) {
	item.Status = domain.ItemStatusPending
	item.ClaimedBy = nil
	item.ClaimedAt = nil
	item.UpdatedAt = s.now()
}

func copyItem(item *domain.QueueItem) *domain.QueueItem {
	dup := *item
	if item.ActualCost != nil {
		v := *item.ActualCost
		dup.ActualCost = &v
	}
	if item.ClaimedBy != nil {
		v := *item.ClaimedBy
		dup.ClaimedBy = &v
	}
	if item.ClaimedAt != nil {
		v := *item.ClaimedAt
		dup.ClaimedAt = &v
	}
	if item.NotBefore != nil {
		v := *item.NotBefore
		dup.NotBefore = &v
	}
	if item.LastError != nil {
		v := *item.LastError
		dup.LastError = &v
	}
	if item.Metadata != nil {
		dup.Metadata = make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}
