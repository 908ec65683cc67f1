package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const keyLastSyncAt = "last_sync_at"

// SaveLastSyncAt saves the time of the last successful sync pass
func (s *Storage) SaveLastSyncAt(ctx context.Context, t time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Храним unix наносекунды как big endian для компактности
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))

		if err := bucket.Put([]byte(keyLastSyncAt), buf); err != nil {
			return fmt.Errorf("failed to save last sync time: %w", err)
		}

		return nil
	})
}

// GetLastSyncAt retrieves the time of the last successful sync pass.
// Returns the zero time if no sync has been performed yet.
func (s *Storage) GetLastSyncAt(ctx context.Context) (time.Time, error) {
	var t time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		data := bucket.Get([]byte(keyLastSyncAt))
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("corrupted last sync time value")
		}

		t = time.Unix(0, int64(binary.BigEndian.Uint64(data))).UTC()
		return nil
	})

	if err != nil {
		return time.Time{}, err
	}

	return t, nil
}
