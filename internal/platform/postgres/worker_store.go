package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

const workerColumns = `id, status, last_heartbeat, tasks_processed, total_processing_time_ms,
	error_count, rate_limit_count, created_at, updated_at`

// PostgresWorkerStore implements the store.WorkerStore interface using PostgreSQL.
type PostgresWorkerStore struct {
	db store.DBTX
}

// Ensure PostgresWorkerStore implements store.WorkerStore.
var _ store.WorkerStore = (*PostgresWorkerStore)(nil)

// NewPostgresWorkerStore creates a new PostgresWorkerStore.
func NewPostgresWorkerStore(db store.DBTX) *PostgresWorkerStore {
	return &PostgresWorkerStore{
		db: db,
	}
}

// Create implements store.WorkerStore.Create.
func (s *PostgresWorkerStore) Create(ctx context.Context, worker *domain.Worker) error {
	log := logger.FromContext(ctx)

	if err := worker.Validate(); err != nil {
		return store.NewStoreError("worker", "create", "validation failed", err)
	}

	query := `
		INSERT INTO workers (id, status, last_heartbeat, tasks_processed, total_processing_time_ms,
			error_count, rate_limit_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		worker.ID,
		worker.Status,
		worker.LastHeartbeat,
		worker.TasksProcessed,
		worker.TotalProcessingTime.Milliseconds(),
		worker.ErrorCount,
		worker.RateLimitCount,
		worker.CreatedAt,
		worker.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		}
		log.Error("failed to create worker", "worker_id", worker.ID, "error", err)
		return fmt.Errorf("failed to create worker: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.WorkerStore.GetByID.
func (s *PostgresWorkerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Worker, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`SELECT %s FROM workers WHERE id = $1`, workerColumns)

	worker, err := scanWorker(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrWorkerNotFound
		}
		log.Error("failed to get worker", "worker_id", id, "error", err)
		return nil, fmt.Errorf("failed to get worker: %w", MapError(err))
	}

	return worker, nil
}

// List implements store.WorkerStore.List.
func (s *PostgresWorkerStore) List(ctx context.Context) ([]*domain.Worker, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`SELECT %s FROM workers ORDER BY created_at DESC`, workerColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list workers", "error", err)
		return nil, fmt.Errorf("failed to list workers: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var workers []*domain.Worker
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker row: %w", err)
		}
		workers = append(workers, worker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating worker rows: %w", err)
	}

	return workers, nil
}

// Heartbeat implements store.WorkerStore.Heartbeat.
func (s *PostgresWorkerStore) Heartbeat(ctx context.Context, id uuid.UUID, status domain.WorkerStatus) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE workers
		SET last_heartbeat = NOW(), status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		log.Error("failed to record heartbeat", "worker_id", id, "error", err)
		return store.NewStoreError("worker", "heartbeat", "update failed", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrWorkerNotFound)
}

// RecordOutcome implements store.WorkerStore.RecordOutcome.
// A rate-limited attempt counts toward rate_limit_count, not error_count:
// the two feed different health signals.
func (s *PostgresWorkerStore) RecordOutcome(
	ctx context.Context,
	id uuid.UUID,
	processingTime time.Duration,
	success, rateLimited bool,
) error {
	log := logger.FromContext(ctx)

	errorDelta := 0
	rateLimitDelta := 0
	switch {
	case rateLimited:
		rateLimitDelta = 1
	case !success:
		errorDelta = 1
	}

	query := `
		UPDATE workers
		SET tasks_processed = tasks_processed + 1,
			total_processing_time_ms = total_processing_time_ms + $2,
			error_count = error_count + $3,
			rate_limit_count = rate_limit_count + $4,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, processingTime.Milliseconds(), errorDelta, rateLimitDelta)
	if err != nil {
		log.Error("failed to record worker outcome", "worker_id", id, "error", err)
		return store.NewStoreError("worker", "record_outcome", "update failed", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrWorkerNotFound)
}

// MarkStopped implements store.WorkerStore.MarkStopped.
func (s *PostgresWorkerStore) MarkStopped(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE workers
		SET status = 'stopped', updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		log.Error("failed to mark worker stopped", "worker_id", id, "error", err)
		return store.NewStoreError("worker", "mark_stopped", "update failed", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrWorkerNotFound)
}

// StaleWorkers implements store.WorkerStore.StaleWorkers.
// Stopped workers are never stale; they already shut down cleanly.
func (s *PostgresWorkerStore) StaleWorkers(ctx context.Context, threshold time.Duration) ([]*domain.Worker, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		SELECT %s FROM workers
		WHERE status <> 'stopped' AND last_heartbeat < $1
		ORDER BY last_heartbeat ASC
	`, workerColumns)

	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to query stale workers", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf("failed to query stale workers: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var workers []*domain.Worker
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale worker row: %w", err)
		}
		workers = append(workers, worker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale worker rows: %w", err)
	}

	return workers, nil
}

// ActiveCount implements store.WorkerStore.ActiveCount.
func (s *PostgresWorkerStore) ActiveCount(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	query := `SELECT COUNT(*) FROM workers WHERE status <> 'stopped'`

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		log.Error("failed to count active workers", "error", err)
		return 0, fmt.Errorf("failed to count active workers: %w", MapError(err))
	}

	return count, nil
}

// scanWorker scans a row in workerColumns order into a Worker.
func scanWorker(row rowScanner) (*domain.Worker, error) {
	var (
		worker           domain.Worker
		processingTimeMs int64
	)

	err := row.Scan(
		&worker.ID,
		&worker.Status,
		&worker.LastHeartbeat,
		&worker.TasksProcessed,
		&processingTimeMs,
		&worker.ErrorCount,
		&worker.RateLimitCount,
		&worker.CreatedAt,
		&worker.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	worker.TotalProcessingTime = time.Duration(processingTimeMs) * time.Millisecond
	return &worker, nil
}
