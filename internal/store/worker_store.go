package store

import (
	"context"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/google/uuid"
)

// WorkerStore defines the interface for worker registry persistence.
// Version: 1.0
type WorkerStore interface {
	// Create registers a new worker.
	Create(ctx context.Context, worker *domain.Worker) error

	// GetByID retrieves a worker by its unique ID.
	// Returns ErrWorkerNotFound if the worker does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Worker, error)

	// List returns all registered workers, newest first.
	List(ctx context.Context) ([]*domain.Worker, error)

	// Heartbeat refreshes the worker's liveness timestamp and status.
	// Returns ErrWorkerNotFound if the worker does not exist.
	Heartbeat(ctx context.Context, id uuid.UUID, status domain.WorkerStatus) error

	// RecordOutcome folds one processed task into the worker's load
	// statistics: tasks processed, cumulative processing time, and the
	// error or rate-limit counters depending on the outcome.
	RecordOutcome(ctx context.Context, id uuid.UUID, processingTime time.Duration, success, rateLimited bool) error

	// MarkStopped forces the worker's status to stopped.
	MarkStopped(ctx context.Context, id uuid.UUID) error

	// StaleWorkers returns non-stopped workers whose heartbeat age
	// exceeds the threshold.
	StaleWorkers(ctx context.Context, threshold time.Duration) ([]*domain.Worker, error)

	// ActiveCount returns the number of workers currently active or idle.
	ActiveCount(ctx context.Context) (int, error)
}
