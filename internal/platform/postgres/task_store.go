package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// queueItemColumns is the canonical column list shared by every query that
// returns whole items. Scan order must match queueItemFields.
const queueItemColumns = `id, source_type, source_id, operation, priority, status, provider,
	retry_count, max_retries, estimated_cost, actual_cost, metadata,
	claimed_by, claimed_at, not_before, last_error, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
// All state transitions are expressed as single guarded UPDATE statements so
// that row-level locking provides the mutual exclusion the queue depends on.
type PostgresTaskStore struct {
	db store.DBTX
}

// Ensure PostgresTaskStore implements store.TaskStore.
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx implements store.TaskStore.WithTx.
// It returns a new TaskStore instance that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db: tx,
	}
}

// Enqueue implements store.TaskStore.Enqueue.
// The partial unique index on (source_type, source_id, operation) for
// non-terminal statuses enforces the at-most-one-active-item rule; a unique
// violation maps to store.ErrDuplicateTask.
func (s *PostgresTaskStore) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	log := logger.FromContext(ctx)

	if err := item.Validate(); err != nil {
		return store.NewStoreError("queue_item", "enqueue", "validation failed", err)
	}

	metadata, err := marshalMetadata(item.Metadata)
	if err != nil {
		return store.NewStoreError("queue_item", "enqueue", "failed to marshal metadata", err)
	}

	query := `
		INSERT INTO queue_items (id, source_type, source_id, operation, priority, status, provider,
			retry_count, max_retries, estimated_cost, actual_cost, metadata,
			claimed_by, claimed_at, not_before, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		item.SourceType,
		item.SourceID,
		item.Operation,
		item.Priority,
		item.Status,
		item.Provider,
		item.RetryCount,
		item.MaxRetries,
		item.EstimatedCost,
		item.ActualCost,
		metadata,
		item.ClaimedBy,
		item.ClaimedAt,
		item.NotBefore,
		item.LastError,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("duplicate enqueue for active source",
				"source_type", item.SourceType,
				"source_id", item.SourceID,
				"operation", item.Operation)
			return fmt.Errorf("%w: %v", store.ErrDuplicateTask, err)
		}
		log.Error("failed to enqueue item",
			"item_id", item.ID,
			"source_type", item.SourceType,
			"error", err)
		return fmt.Errorf("failed to enqueue item: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`SELECT %s FROM queue_items WHERE id = $1`, queueItemColumns)

	item, err := scanQueueItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		log.Error("failed to get queue item", "item_id", id, "error", err)
		return nil, fmt.Errorf("failed to get queue item: %w", MapError(err))
	}

	return item, nil
}

// ClaimBatch implements store.TaskStore.ClaimBatch.
// The claim is a single statement: candidate rows are selected with
// FOR UPDATE SKIP LOCKED inside a subquery and flipped to processing in the
// enclosing UPDATE, so two workers claiming concurrently can never receive
// the same item.
func (s *PostgresTaskStore) ClaimBatch(
	ctx context.Context,
	workerID uuid.UUID,
	limit int,
	excludedProviders []string,
) ([]*domain.QueueItem, error) {
	log := logger.FromContext(ctx)

	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UPDATE queue_items
		SET status = 'processing', claimed_by = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'pending'
			  AND (not_before IS NULL OR not_before <= NOW())
			  AND ($3::text[] IS NULL OR provider <> ALL($3::text[]))
			ORDER BY priority DESC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, queueItemColumns)

	// A nil slice disables the provider filter; pgx serializes []string as text[].
	var excluded []string
	if len(excludedProviders) > 0 {
		excluded = excludedProviders
	}

	rows, err := s.db.QueryContext(ctx, query, workerID, limit, excluded)
	if err != nil {
		log.Error("failed to claim batch", "worker_id", workerID, "error", err)
		return nil, fmt.Errorf("failed to claim batch: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			log.Error("failed to scan claimed item", "worker_id", workerID, "error", err)
			return nil, fmt.Errorf("failed to scan claimed item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating claimed items", "worker_id", workerID, "error", err)
		return nil, fmt.Errorf("error iterating claimed items: %w", err)
	}

	return items, nil
}

// MarkCompleted implements store.TaskStore.MarkCompleted.
func (s *PostgresTaskStore) MarkCompleted(ctx context.Context, itemID, workerID uuid.UUID, actualCost int) error {
	query := `
		UPDATE queue_items
		SET status = 'completed', actual_cost = $3, claimed_by = NULL, claimed_at = NULL,
			not_before = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'processing'
	`
	return s.execClaimedTransition(ctx, "mark_completed", query, itemID, workerID, actualCost)
}

// MarkForRetry implements store.TaskStore.MarkForRetry.
// The retry count is incremented here, in the same statement as the status
// flip, so a crash between decision and persistence cannot lose the attempt.
func (s *PostgresTaskStore) MarkForRetry(
	ctx context.Context,
	itemID, workerID uuid.UUID,
	notBefore time.Time,
	lastError string,
) error {
	query := `
		UPDATE queue_items
		SET status = 'pending', retry_count = retry_count + 1, not_before = $3,
			last_error = $4, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'processing'
	`
	return s.execClaimedTransition(ctx, "mark_for_retry", query, itemID, workerID, notBefore, lastError)
}

// MarkFailed implements store.TaskStore.MarkFailed.
func (s *PostgresTaskStore) MarkFailed(ctx context.Context, itemID, workerID uuid.UUID, lastError string) error {
	query := `
		UPDATE queue_items
		SET status = 'failed', last_error = $3, claimed_by = NULL, claimed_at = NULL,
			not_before = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'processing'
	`
	return s.execClaimedTransition(ctx, "mark_failed", query, itemID, workerID, lastError)
}

// MarkRateLimited implements store.TaskStore.MarkRateLimited.
// The retry count is deliberately untouched: a provider cooldown is not the
// item's fault and must not consume its retry budget.
func (s *PostgresTaskStore) MarkRateLimited(
	ctx context.Context,
	itemID, workerID uuid.UUID,
	notBefore time.Time,
	lastError string,
) error {
	query := `
		UPDATE queue_items
		SET status = 'rate_limited', not_before = $3, last_error = $4,
			claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = 'processing'
	`
	return s.execClaimedTransition(ctx, "mark_rate_limited", query, itemID, workerID, notBefore, lastError)
}

// execClaimedTransition runs an UPDATE guarded by claim ownership and maps
// a zero-row result to ErrNotClaimOwner.
func (s *PostgresTaskStore) execClaimedTransition(
	ctx context.Context,
	operation, query string,
	itemID, workerID uuid.UUID,
	args ...interface{},
) error {
	log := logger.FromContext(ctx)

	queryArgs := append([]interface{}{itemID, workerID}, args...)
	result, err := s.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		log.Error("failed to transition claimed item",
			"operation", operation,
			"item_id", itemID,
			"worker_id", workerID,
			"error", err)
		return store.NewStoreError("queue_item", operation, "update failed", MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrNotClaimOwner); err != nil {
		log.Warn("claimed transition matched no rows",
			"operation", operation,
			"item_id", itemID,
			"worker_id", workerID)
		return err
	}

	return nil
}

// Release implements store.TaskStore.Release.
func (s *PostgresTaskStore) Release(ctx context.Context, itemID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_items
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := s.db.ExecContext(ctx, query, itemID)
	if err != nil {
		log.Error("failed to release item", "item_id", itemID, "error", err)
		return store.NewStoreError("queue_item", "release", "update failed", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrItemNotFound)
}

// ReleaseByWorker implements store.TaskStore.ReleaseByWorker.
func (s *PostgresTaskStore) ReleaseByWorker(ctx context.Context, workerID uuid.UUID) (int, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_items
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE claimed_by = $1 AND status = 'processing'
	`

	result, err := s.db.ExecContext(ctx, query, workerID)
	if err != nil {
		log.Error("failed to release items by worker", "worker_id", workerID, "error", err)
		return 0, store.NewStoreError("queue_item", "release_by_worker", "update failed", MapError(err))
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(released), nil
}

// ReleaseExpiredClaims implements store.TaskStore.ReleaseExpiredClaims.
func (s *PostgresTaskStore) ReleaseExpiredClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_items
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE status = 'processing' AND claimed_at < $1
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to release expired claims", "cutoff", cutoff, "error", err)
		return 0, store.NewStoreError("queue_item", "release_expired", "update failed", MapError(err))
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(released), nil
}

// PromoteRateLimited implements store.TaskStore.PromoteRateLimited.
func (s *PostgresTaskStore) PromoteRateLimited(ctx context.Context, now time.Time, maxItems int) (int, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_items
		SET status = 'pending', not_before = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'rate_limited' AND (not_before IS NULL OR not_before <= $1)
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`

	// LIMIT NULL means no limit in PostgreSQL.
	var limit interface{}
	if maxItems > 0 {
		limit = maxItems
	}

	result, err := s.db.ExecContext(ctx, query, now, limit)
	if err != nil {
		log.Error("failed to promote rate-limited items", "error", err)
		return 0, store.NewStoreError("queue_item", "promote_rate_limited", "update failed", MapError(err))
	}

	promoted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(promoted), nil
}

// Counts implements store.TaskStore.Counts.
func (s *PostgresTaskStore) Counts(ctx context.Context) (domain.QueueCounts, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'rate_limited'),
			COUNT(*)
		FROM queue_items
	`

	var counts domain.QueueCounts
	err := s.db.QueryRowContext(ctx, query).Scan(
		&counts.Pending,
		&counts.Processing,
		&counts.Completed,
		&counts.Failed,
		&counts.RateLimited,
		&counts.Total,
	)
	if err != nil {
		log.Error("failed to count queue items", "error", err)
		return domain.QueueCounts{}, fmt.Errorf("failed to count queue items: %w", MapError(err))
	}

	return counts, nil
}

// DeadLetters implements store.TaskStore.DeadLetters.
func (s *PostgresTaskStore) DeadLetters(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		SELECT %s FROM queue_items
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`, queueItemColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error("failed to query dead letters", "error", err)
		return nil, fmt.Errorf("failed to query dead letters: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return items, nil
}

// OldestPendingAge implements store.TaskStore.OldestPendingAge.
func (s *PostgresTaskStore) OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, error) {
	log := logger.FromContext(ctx)

	query := `SELECT MIN(created_at) FROM queue_items WHERE status = 'pending'`

	var oldest sql.NullTime
	if err := s.db.QueryRowContext(ctx, query).Scan(&oldest); err != nil {
		log.Error("failed to query oldest pending item", "error", err)
		return 0, fmt.Errorf("failed to query oldest pending item: %w", MapError(err))
	}

	if !oldest.Valid {
		return 0, nil
	}
	age := now.Sub(oldest.Time)
	if age < 0 {
		age = 0
	}
	return age, nil
}

// CompletedSince implements store.TaskStore.CompletedSince.
func (s *PostgresTaskStore) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	log := logger.FromContext(ctx)

	query := `SELECT COUNT(*) FROM queue_items WHERE status = 'completed' AND updated_at > $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		log.Error("failed to count completed items", "since", since, "error", err)
		return 0, fmt.Errorf("failed to count completed items: %w", MapError(err))
	}

	return count, nil
}

// DeleteTerminalBefore implements store.TaskStore.DeleteTerminalBefore.
func (s *PostgresTaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	log := logger.FromContext(ctx)

	query := `
		DELETE FROM queue_items
		WHERE status IN ('completed', 'failed') AND updated_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to delete terminal items", "cutoff", cutoff, "error", err)
		return 0, store.NewStoreError("queue_item", "delete_terminal", "delete failed", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// RequeueFailed implements store.TaskStore.RequeueFailed.
// Requeued items restart with a full retry budget; this is the explicit
// administrative path out of the dead-letter state.
func (s *PostgresTaskStore) RequeueFailed(ctx context.Context, maxItems int) (int, error) {
	log := logger.FromContext(ctx)

	if maxItems <= 0 {
		return 0, nil
	}

	query := `
		UPDATE queue_items
		SET status = 'pending', retry_count = 0, not_before = NULL, last_error = NULL,
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'failed'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
	`

	result, err := s.db.ExecContext(ctx, query, maxItems)
	if err != nil {
		log.Error("failed to requeue failed items", "error", err)
		return 0, store.NewStoreError("queue_item", "requeue_failed", "update failed", MapError(err))
	}

	requeued, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(requeued), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanQueueItem scans a row in queueItemColumns order into a QueueItem.
func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var (
		item      domain.QueueItem
		metadata  []byte
		claimedBy uuid.NullUUID
		claimedAt sql.NullTime
		notBefore sql.NullTime
		lastError sql.NullString
		actual    sql.NullInt64
	)

	err := row.Scan(
		&item.ID,
		&item.SourceType,
		&item.SourceID,
		&item.Operation,
		&item.Priority,
		&item.Status,
		&item.Provider,
		&item.RetryCount,
		&item.MaxRetries,
		&item.EstimatedCost,
		&actual,
		&metadata,
		&claimedBy,
		&claimedAt,
		&notBefore,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actual.Valid {
		v := int(actual.Int64)
		item.ActualCost = &v
	}
	if claimedBy.Valid {
		v := claimedBy.UUID
		item.ClaimedBy = &v
	}
	if claimedAt.Valid {
		v := claimedAt.Time
		item.ClaimedAt = &v
	}
	if notBefore.Valid {
		v := notBefore.Time
		item.NotBefore = &v
	}
	if lastError.Valid {
		v := lastError.String
		item.LastError = &v
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item metadata: %w", err)
		}
	}

	return &item, nil
}

// marshalMetadata serializes item metadata for the JSONB column. A nil map
// stores SQL NULL rather than the JSON literal "null".
func marshalMetadata(metadata map[string]string) (interface{}, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}
