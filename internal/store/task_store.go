package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/google/uuid"
)

// TaskStore defines the interface for queue item persistence. It is the
// sole source of truth for item lifecycle state and the sole point of
// mutual exclusion between workers: every mutating operation is a single
// atomic state transition, so concurrent callers never need their own
// locking.
// Version: 1.0
type TaskStore interface {
	// Enqueue inserts a new pending item. Returns ErrDuplicateTask if an
	// active (non-terminal) item already exists for the same
	// (sourceType, sourceID, operation) tuple.
	Enqueue(ctx context.Context, item *domain.QueueItem) error

	// GetByID retrieves an item by its unique ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error)

	// ClaimBatch atomically selects up to limit pending items ordered by
	// (priority desc, createdAt asc), skipping items under a retry
	// hold-off and items routed to an excluded provider, transitions them
	// to processing claimed by workerID, and returns them. Concurrent
	// claims by different workers never overlap: the claim is a single
	// atomic claim-and-update, not a read-then-write.
	ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, excludedProviders []string) ([]*domain.QueueItem, error)

	// MarkCompleted transitions a processing item claimed by workerID to
	// completed, recording the actual cost. Returns ErrNotClaimOwner if
	// the item is not processing under workerID.
	MarkCompleted(ctx context.Context, itemID, workerID uuid.UUID, actualCost int) error

	// MarkForRetry returns a processing item to pending, increments its
	// retry count, and stamps the hold-off time before which it must not
	// be claimed again. Returns ErrNotClaimOwner on ownership mismatch.
	MarkForRetry(ctx context.Context, itemID, workerID uuid.UUID, notBefore time.Time, lastError string) error

	// MarkFailed transitions a processing item to terminal failed.
	// Returns ErrNotClaimOwner on ownership mismatch.
	MarkFailed(ctx context.Context, itemID, workerID uuid.UUID, lastError string) error

	// MarkRateLimited parks a processing item as rate_limited until the
	// provider cooldown passes. The retry budget is not consumed.
	// Returns ErrNotClaimOwner on ownership mismatch.
	MarkRateLimited(ctx context.Context, itemID, workerID uuid.UUID, notBefore time.Time, lastError string) error

	// Release resets a processing item back to pending, clearing its
	// claim. Used by stale-worker recovery and cooperative worker stop.
	Release(ctx context.Context, itemID uuid.UUID) error

	// ReleaseByWorker releases every processing item claimed by the given
	// worker and returns the number released.
	ReleaseByWorker(ctx context.Context, workerID uuid.UUID) (int, error)

	// ReleaseExpiredClaims releases processing items whose claim age
	// exceeds olderThan regardless of the claiming worker's heartbeat,
	// guarding against a single hung task pinning capacity. Returns the
	// number released.
	ReleaseExpiredClaims(ctx context.Context, olderThan time.Duration) (int, error)

	// PromoteRateLimited returns rate_limited items whose hold-off has
	// passed back to pending. maxItems <= 0 means no bound. Returns the
	// number promoted.
	PromoteRateLimited(ctx context.Context, now time.Time, maxItems int) (int, error)

	// Counts returns item counts by status.
	Counts(ctx context.Context) (domain.QueueCounts, error)

	// DeadLetters returns up to limit terminal failed items, newest first.
	DeadLetters(ctx context.Context, limit int) ([]*domain.QueueItem, error)

	// OldestPendingAge returns the age of the oldest pending item, or
	// zero when the queue is empty.
	OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, error)

	// CompletedSince counts items completed after the given instant,
	// feeding the trailing-window throughput figure.
	CompletedSince(ctx context.Context, since time.Time) (int, error)

	// DeleteTerminalBefore deletes terminal items last updated before the
	// cutoff and returns the number removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	// RequeueFailed re-admits up to maxItems terminal failed items back
	// to pending with their retry count reset to zero. This is an
	// explicit administrative override of dead-letter terminality.
	RequeueFailed(ctx context.Context, maxItems int) (int, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
