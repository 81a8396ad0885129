package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/memory"
	"github.com/docuvec/embedq/internal/store"
)

func intakeItems(t *testing.T, n int) []*domain.QueueItem {
	t.Helper()
	items := make([]*domain.QueueItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := domain.NewQueueItem("document", fmt.Sprintf("doc-%d", i),
			domain.OperationInsert, domain.PriorityMedium, "gemini", 10, nil)
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func TestIntakeEnqueueBatch(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewTaskStore()
	intake := NewIntake(tasks, nil)

	require.NoError(t, intake.EnqueueBatch(ctx, intakeItems(t, 3)))

	counts, err := tasks.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Pending)
}

func TestIntakeEnqueueBatchStopsAtDuplicate(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewTaskStore()
	intake := NewIntake(tasks, nil)

	first := intakeItems(t, 1)
	require.NoError(t, intake.Enqueue(ctx, first[0]))

	dup, err := domain.NewQueueItem("document", "doc-0",
		domain.OperationInsert, domain.PriorityMedium, "gemini", 10, nil)
	require.NoError(t, err)

	batch := append(intakeItems(t, 0), dup)
	err = intake.EnqueueBatch(ctx, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
