package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the lifecycle state of a queue item.
type ItemStatus string

// Possible queue item status values
const (
	ItemStatusPending     ItemStatus = "pending"
	ItemStatusProcessing  ItemStatus = "processing"
	ItemStatusCompleted   ItemStatus = "completed"
	ItemStatusFailed      ItemStatus = "failed"
	ItemStatusRateLimited ItemStatus = "rate_limited"
)

// Operation describes why a task was enqueued.
type Operation string

// Possible operation values
const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Priority orders claim eligibility. Higher values are claimed first.
type Priority int

// Priority tiers
const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// DefaultMaxRetries is applied when an item is enqueued without an
// explicit retry budget.
const DefaultMaxRetries = 3

// Common validation errors for QueueItem
var (
	ErrEmptyItemID         = errors.New("queue item ID cannot be empty")
	ErrEmptySourceType     = errors.New("queue item source type cannot be empty")
	ErrEmptySourceID       = errors.New("queue item source ID cannot be empty")
	ErrEmptyProvider       = errors.New("queue item provider cannot be empty")
	ErrInvalidOperation    = errors.New("invalid queue item operation")
	ErrInvalidPriority     = errors.New("invalid queue item priority")
	ErrInvalidItemStatus   = errors.New("invalid queue item status")
	ErrRetryBudgetExceeded = errors.New("retry count exceeds max retries")
	ErrClaimStateMismatch  = errors.New("claim fields inconsistent with status")
)

// QueueItem represents a single unit of enrichment work. The queue treats
// the (SourceType, SourceID) pair and Metadata as opaque; only Provider,
// Priority, and the lifecycle fields influence scheduling.
type QueueItem struct {
	ID            uuid.UUID         `json:"id"`
	SourceType    string            `json:"source_type"`
	SourceID      string            `json:"source_id"`
	Operation     Operation         `json:"operation"`
	Priority      Priority          `json:"priority"`
	Status        ItemStatus        `json:"status"`
	Provider      string            `json:"provider"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	EstimatedCost int               `json:"estimated_cost"`
	ActualCost    *int              `json:"actual_cost,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ClaimedBy     *uuid.UUID        `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time        `json:"claimed_at,omitempty"`
	NotBefore     *time.Time        `json:"not_before,omitempty"`
	LastError     *string           `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewQueueItem creates a new pending QueueItem for the given unit of work.
// It generates the item ID, applies the default retry budget, and stamps
// the creation time. Returns an error if validation fails.
func NewQueueItem(
	sourceType, sourceID string,
	op Operation,
	priority Priority,
	provider string,
	estimatedCost int,
	metadata map[string]string,
) (*QueueItem, error) {
	now := time.Now().UTC()
	item := &QueueItem{
		ID:            uuid.New(),
		SourceType:    sourceType,
		SourceID:      sourceID,
		Operation:     op,
		Priority:      priority,
		Status:        ItemStatusPending,
		Provider:      provider,
		RetryCount:    0,
		MaxRetries:    DefaultMaxRetries,
		EstimatedCost: estimatedCost,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks the item's fields and the claim/status invariants:
// a pending item is unclaimed, a processing item has exactly one claiming
// worker with a claim timestamp, and the retry count never exceeds the
// retry budget.
func (i *QueueItem) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyItemID
	}
	if i.SourceType == "" {
		return ErrEmptySourceType
	}
	if i.SourceID == "" {
		return ErrEmptySourceID
	}
	if i.Provider == "" {
		return ErrEmptyProvider
	}
	if !isValidOperation(i.Operation) {
		return ErrInvalidOperation
	}
	if !isValidPriority(i.Priority) {
		return ErrInvalidPriority
	}
	if !isValidItemStatus(i.Status) {
		return ErrInvalidItemStatus
	}
	if i.RetryCount > i.MaxRetries {
		return ErrRetryBudgetExceeded
	}

	switch i.Status {
	case ItemStatusProcessing:
		if i.ClaimedBy == nil || i.ClaimedAt == nil {
			return ErrClaimStateMismatch
		}
	case ItemStatusPending:
		if i.ClaimedBy != nil {
			return ErrClaimStateMismatch
		}
	}

	return nil
}

// IsTerminal reports whether the item has reached a terminal state.
func (i *QueueItem) IsTerminal() bool {
	return i.Status == ItemStatusCompleted || i.Status == ItemStatusFailed
}

// Claimable reports whether the item is eligible for claiming at the
// given instant, accounting for its retry hold-off.
func (i *QueueItem) Claimable(now time.Time) bool {
	if i.Status != ItemStatusPending {
		return false
	}
	return i.NotBefore == nil || !now.Before(*i.NotBefore)
}

func isValidOperation(op Operation) bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

func isValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusCompleted,
		ItemStatusFailed, ItemStatusRateLimited:
		return true
	default:
		return false
	}
}

// ParsePriority converts a priority name to its Priority value.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, ErrInvalidPriority
	}
}

// String returns the priority's lowercase name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// QueueCounts aggregates item counts by status plus the running total of
// everything ever enqueued. Conservation holds at every observation
// point: Pending+Processing+Completed+Failed+RateLimited == Total.
type QueueCounts struct {
	Pending     int `json:"pending"`
	Processing  int `json:"processing"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
	Total       int `json:"total"`
}
