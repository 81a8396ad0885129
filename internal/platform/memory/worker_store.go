package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// WorkerStore is an in-memory store.WorkerStore.
type WorkerStore struct {
	mu      sync.Mutex
	workers map[uuid.UUID]*domain.Worker
	now     func() time.Time
}

// NewWorkerStore creates an empty in-memory worker store.
func NewWorkerStore() *WorkerStore {
	return &WorkerStore{
		workers: make(map[uuid.UUID]*domain.Worker),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *WorkerStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create implements store.WorkerStore.
func (s *WorkerStore) Create(ctx context.Context, worker *domain.Worker) error {
	if err := worker.Validate(); err != nil {
		return store.NewStoreError("worker", "create", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workers[worker.ID]; exists {
		return store.ErrDuplicate
	}
	s.workers[worker.ID] = copyWorker(worker)
	return nil
}

// GetByID implements store.WorkerStore.
func (s *WorkerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[id]
	if !ok {
		return nil, store.ErrWorkerNotFound
	}
	return copyWorker(w), nil
}

// List implements store.WorkerStore.
func (s *WorkerStore) List(ctx context.Context) ([]*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, copyWorker(w))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Heartbeat implements store.WorkerStore.
func (s *WorkerStore) Heartbeat(ctx context.Context, id uuid.UUID, status domain.WorkerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[id]
	if !ok {
		return store.ErrWorkerNotFound
	}
	now := s.now()
	w.LastHeartbeat = now
	w.Status = status
	w.UpdatedAt = now
	return nil
}

// RecordOutcome implements store.WorkerStore.
func (s *WorkerStore) RecordOutcome(ctx context.Context, id uuid.UUID, processingTime time.Duration, success, rateLimited bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[id]
	if !ok {
		return store.ErrWorkerNotFound
	}
	w.TasksProcessed++
	w.TotalProcessingTime += processingTime
	switch {
	case rateLimited:
		w.RateLimitCount++
	case !success:
		w.ErrorCount++
	}
	w.UpdatedAt = s.now()
	return nil
}

// MarkStopped implements store.WorkerStore.
func (s *WorkerStore) MarkStopped(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[id]
	if !ok {
		return store.ErrWorkerNotFound
	}
	w.Status = domain.WorkerStatusStopped
	w.UpdatedAt = s.now()
	return nil
}

// StaleWorkers implements store.WorkerStore.
func (s *WorkerStore) StaleWorkers(ctx context.Context, threshold time.Duration) ([]*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stale []*domain.Worker
	for _, w := range s.workers {
		if w.IsStale(now, threshold) {
			stale = append(stale, copyWorker(w))
		}
	}
	return stale, nil
}

// ActiveCount implements store.WorkerStore.
func (s *WorkerStore) ActiveCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, w := range s.workers {
		if w.Status != domain.WorkerStatusStopped {
			count++
		}
	}
	return count, nil
}

func copyWorker(w *domain.Worker) *domain.Worker {
	dup := *w
	return &dup
}
