package storage

import (
	"context"

	"github.com/iudanet/dentkeeper/internal/models"
)

// RecordStorage defines interface for the per-collection durable record store
// on the client. Records are stored whole: PutRecord is a full upsert,
// partial merging is the data facade's job.
type RecordStorage interface {
	// GetRecord retrieves a record by id
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)

	// ListRecords returns all records in the collection, dirty ones included.
	// Order is not part of the contract.
	ListRecords(ctx context.Context, collection string) ([]*models.Record, error)

	// PutRecord stores or fully overwrites a record by id
	PutRecord(ctx context.Context, collection string, record *models.Record) error

	// DeleteRecord removes a single record. Idempotent: no error if absent.
	DeleteRecord(ctx context.Context, collection, id string) error

	// ClearCollection removes all records in a collection.
	// Used for full mirror refresh from the server.
	ClearCollection(ctx context.Context, collection string) error

	// ListPendingSync returns records in the collection still marked
	// as pending synchronization (dirty records, tombstones included)
	ListPendingSync(ctx context.Context, collection string) ([]*models.Record, error)
}
