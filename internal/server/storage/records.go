package storage

import (
	"context"

	"github.com/iudanet/dentkeeper/internal/models"
)

// RecordStorage defines interface for clinic record persistence on the
// server. Records live in named collections and carry schemaless
// domain fields; matching by arbitrary column is part of the contract.
type RecordStorage interface {
	// InsertRecord stores a record in a collection. Idempotent by id:
	// re-inserting an existing id overwrites the stored record, so a
	// retried offline create never produces a duplicate.
	InsertRecord(ctx context.Context, collection string, record *models.Record) error

	// GetRecord retrieves a record by id
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)

	// ListRecords returns all records of a collection ordered by creation time
	ListRecords(ctx context.Context, collection string) ([]*models.Record, error)

	// UpdateWhere merges patch into every record whose column equals value
	// and returns the first updated record.
	// Returns ErrRecordNotFound if nothing matched.
	UpdateWhere(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error)

	// DeleteWhere removes every record whose column equals value and
	// returns the number of removed records. Zero matches is not an error:
	// a retried offline delete must stay idempotent.
	DeleteWhere(ctx context.Context, collection, column string, value any) (int, error)
}
