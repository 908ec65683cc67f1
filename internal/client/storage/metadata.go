package storage

import (
	"context"
	"time"
)

// MetadataStorage defines interface for storing client sync metadata
type MetadataStorage interface {
	// SaveLastSyncAt saves the time of the last successful sync pass
	SaveLastSyncAt(ctx context.Context, t time.Time) error

	// GetLastSyncAt retrieves the time of the last successful sync pass.
	// Returns the zero time if no sync has been performed yet.
	GetLastSyncAt(ctx context.Context) (time.Time, error)
}
