package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// WorkerStatus represents the lifecycle state of a worker.
type WorkerStatus string

// Possible worker status values
const (
	WorkerStatusActive  WorkerStatus = "active"
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// Common validation errors for Worker
var (
	ErrEmptyWorkerID       = errors.New("worker ID cannot be empty")
	ErrInvalidWorkerStatus = errors.New("invalid worker status")
)

// Worker is the durable record of a queue worker: its identity,
// liveness heartbeat, and cumulative load statistics.
type Worker struct {
	ID                  uuid.UUID     `json:"id"`
	Status              WorkerStatus  `json:"status"`
	LastHeartbeat       time.Time     `json:"last_heartbeat"`
	TasksProcessed      int64         `json:"tasks_processed"`
	TotalProcessingTime time.Duration `json:"total_processing_time_ms"`
	ErrorCount          int64         `json:"error_count"`
	RateLimitCount      int64         `json:"rate_limit_count"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewWorker creates a new idle Worker with a fresh heartbeat.
func NewWorker() *Worker {
	now := time.Now().UTC()
	return &Worker{
		ID:            uuid.New(),
		Status:        WorkerStatusIdle,
		LastHeartbeat: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the worker's fields.
func (w *Worker) Validate() error {
	if w.ID == uuid.Nil {
		return ErrEmptyWorkerID
	}
	if !isValidWorkerStatus(w.Status) {
		return ErrInvalidWorkerStatus
	}
	return nil
}

// IsStale reports whether the worker's heartbeat age exceeds the given
// threshold at the given instant. Stale workers are presumed dead and
// their claimed items are released.
func (w *Worker) IsStale(now time.Time, threshold time.Duration) bool {
	if w.Status == WorkerStatusStopped {
		return false
	}
	return now.Sub(w.LastHeartbeat) > threshold
}

func isValidWorkerStatus(status WorkerStatus) bool {
	switch status {
	case WorkerStatusActive, WorkerStatusIdle, WorkerStatusStopped:
		return true
	default:
		return false
	}
}
