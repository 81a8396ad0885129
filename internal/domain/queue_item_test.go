package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItem(t *testing.T) *QueueItem {
	t.Helper()
	item, err := NewQueueItem(
		"document", "doc-42", OperationInsert, PriorityMedium,
		"gemini", 1200, map[string]string{"locale": "en"},
	)
	require.NoError(t, err)
	return item
}

func TestNewQueueItem(t *testing.T) {
	item := validItem(t)

	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.Equal(t, ItemStatusPending, item.Status)
	assert.Equal(t, DefaultMaxRetries, item.MaxRetries)
	assert.Zero(t, item.RetryCount)
	assert.Nil(t, item.ClaimedBy)
	assert.Nil(t, item.ActualCost)
	assert.WithinDuration(t, time.Now().UTC(), item.CreatedAt, time.Minute)
}

func TestNewQueueItemValidation(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		sourceID   string
		op         Operation
		priority   Priority
		provider   string
		wantErr    error
	}{
		{
			name:     "empty source type",
			sourceID: "doc-1", op: OperationInsert, priority: PriorityLow, provider: "gemini",
			wantErr: ErrEmptySourceType,
		},
		{
			name:       "empty source ID",
			sourceType: "document", op: OperationInsert, priority: PriorityLow, provider: "gemini",
			wantErr: ErrEmptySourceID,
		},
		{
			name:       "empty provider",
			sourceType: "document", sourceID: "doc-1", op: OperationInsert, priority: PriorityLow,
			wantErr: ErrEmptyProvider,
		},
		{
			name:       "invalid operation",
			sourceType: "document", sourceID: "doc-1", op: Operation("upsert"), priority: PriorityLow, provider: "gemini",
			wantErr: ErrInvalidOperation,
		},
		{
			name:       "invalid priority",
			sourceType: "document", sourceID: "doc-1", op: OperationInsert, priority: Priority(9), provider: "gemini",
			wantErr: ErrInvalidPriority,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewQueueItem(tt.sourceType, tt.sourceID, tt.op, tt.priority, tt.provider, 0, nil)
			assert.Nil(t, item)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQueueItemClaimInvariants(t *testing.T) {
	item := validItem(t)

	// Pending item with a claimer is inconsistent.
	workerID := uuid.New()
	item.ClaimedBy = &workerID
	assert.ErrorIs(t, item.Validate(), ErrClaimStateMismatch)

	// Processing item without a claim timestamp is inconsistent.
	item.Status = ItemStatusProcessing
	item.ClaimedAt = nil
	assert.ErrorIs(t, item.Validate(), ErrClaimStateMismatch)

	// Fully claimed processing item is valid.
	now := time.Now().UTC()
	item.ClaimedAt = &now
	assert.NoError(t, item.Validate())
}

func TestQueueItemRetryBudget(t *testing.T) {
	item := validItem(t)
	item.RetryCount = item.MaxRetries
	assert.NoError(t, item.Validate())

	item.RetryCount = item.MaxRetries + 1
	assert.ErrorIs(t, item.Validate(), ErrRetryBudgetExceeded)
}

func TestQueueItemClaimable(t *testing.T) {
	now := time.Now().UTC()
	item := validItem(t)

	assert.True(t, item.Claimable(now), "pending item without hold-off is claimable")

	holdOff := now.Add(time.Minute)
	item.NotBefore = &holdOff
	assert.False(t, item.Claimable(now), "item under retry hold-off is not claimable")
	assert.True(t, item.Claimable(now.Add(2*time.Minute)), "hold-off expires")

	item.NotBefore = nil
	item.Status = ItemStatusCompleted
	assert.False(t, item.Claimable(now), "terminal item is never claimable")
}

func TestParsePriority(t *testing.T) {
	for name, want := range map[string]Priority{
		"low": PriorityLow, "medium": PriorityMedium, "high": PriorityHigh,
	} {
		got, err := ParsePriority(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParsePriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}
