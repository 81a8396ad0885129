package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrInvalidEntity is returned when an entity fails validation before or
	// during a store operation.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrItemNotFound indicates that the requested queue item does not exist.
	ErrItemNotFound = fmt.Errorf("%w: queue item", ErrNotFound)

	// ErrWorkerNotFound indicates that the requested worker does not exist.
	ErrWorkerNotFound = fmt.Errorf("%w: worker", ErrNotFound)

	// ErrRateLimitNotFound indicates that no rate-limit window exists for
	// the requested provider.
	ErrRateLimitNotFound = fmt.Errorf("%w: rate limit window", ErrNotFound)

	// ErrDuplicateTask indicates an enqueue for a (sourceType, sourceID,
	// operation) tuple that already has an active (non-terminal) item.
	// Enqueue is idempotent: callers recover locally by treating the
	// existing item as theirs.
	ErrDuplicateTask = fmt.Errorf("%w: active task for source", ErrDuplicate)

	// ErrNotClaimOwner indicates a completion or release attempt by a
	// worker that does not hold the item's claim, or against an item that
	// is not processing. With atomic claims this signals a logic bug or a
	// stale worker racing its own reclamation, never a lost claim race.
	ErrNotClaimOwner = fmt.Errorf("%w: item not claimed by worker", ErrUpdateFailed)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "queue_item", "worker")
	Operation string // The operation that failed (e.g., "enqueue", "claim")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
