package storage

import (
	"context"

	"github.com/iudanet/dentkeeper/internal/models"
)

// QueueStorage defines interface for the durable FIFO queue of pending
// mutations. Entries are appended by the data facade when the server is
// unreachable and removed by the reconciler only after the corresponding
// remote operation is confirmed.
type QueueStorage interface {
	// Enqueue appends a mutation to the queue and returns the stored entry
	Enqueue(ctx context.Context, collection string, action models.Action, payload *models.Record) (*models.QueueEntry, error)

	// ListQueue returns all pending entries in enqueue (FIFO) order
	ListQueue(ctx context.Context) ([]*models.QueueEntry, error)

	// RemoveFromQueue removes an entry by id. Idempotent: no error if absent.
	RemoveFromQueue(ctx context.Context, id string) error

	// IncrementRetry bumps the retry counter of an entry and returns the
	// new count. Returns ErrQueueEntryNotFound if entry doesn't exist.
	IncrementRetry(ctx context.Context, id string) (int, error)
}
