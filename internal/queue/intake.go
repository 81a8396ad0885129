package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
)

// Intake admits new work into the queue. Single enqueues go straight to
// the task store; batch enqueues are all-or-nothing when the store is
// database-backed, wrapped in one transaction.
type Intake struct {
	tasks store.TaskStore
	db    *sql.DB
}

// NewIntake creates an Intake. db may be nil for memory-backed stores;
// batch enqueues then run sequentially, stopping at the first failure
// without undoing earlier items.
func NewIntake(tasks store.TaskStore, db *sql.DB) *Intake {
	return &Intake{
		tasks: tasks,
		db:    db,
	}
}

// Enqueue admits a single item.
func (i *Intake) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	return i.tasks.Enqueue(ctx, item)
}

// EnqueueBatch admits a set of items together. With a database-backed
// store the batch commits or rolls back as a unit, so a duplicate in the
// middle leaves nothing behind.
func (i *Intake) EnqueueBatch(ctx context.Context, items []*domain.QueueItem) error {
	if i.db == nil {
		return i.enqueueAll(ctx, i.tasks, items)
	}

	return store.RunInTransaction(ctx, i.db, func(ctx context.Context, tx *sql.Tx) error {
		return i.enqueueAll(ctx, i.tasks.WithTx(tx), items)
	})
}

func (i *Intake) enqueueAll(ctx context.Context, tasks store.TaskStore, items []*domain.QueueItem) error {
	for idx, item := range items {
		if err := tasks.Enqueue(ctx, item); err != nil {
			return fmt.Errorf("item %d (%s/%s): %w", idx, item.SourceType, item.SourceID, err)
		}
	}
	return nil
}
