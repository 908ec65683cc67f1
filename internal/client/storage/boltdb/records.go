package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/models"
)

// GetRecord retrieves a record by id
func (s *Storage) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket(collection))
		if bucket == nil {
			// Коллекция еще ни разу не записывалась — пустая
			return storage.ErrRecordNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		record = &models.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListRecords returns all records in the collection, dirty ones included
func (s *Storage) ListRecords(ctx context.Context, collection string) ([]*models.Record, error) {
	var records []*models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket(collection))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			record := &models.Record{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal record %q: %w", k, err)
			}
			records = append(records, record)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// PutRecord stores or fully overwrites a record by id
func (s *Storage) PutRecord(ctx context.Context, collection string, record *models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(recordsBucket(collection))
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		if err := bucket.Put([]byte(record.ID), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})
}

// DeleteRecord removes a single record. Idempotent: no error if absent.
func (s *Storage) DeleteRecord(ctx context.Context, collection, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket(collection))
		if bucket == nil {
			return nil
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}

		return nil
	})
}

// ClearCollection removes all records in a collection.
// Реализован как удаление bucket целиком — следующий PutRecord создаст новый.
func (s *Storage) ClearCollection(ctx context.Context, collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		name := recordsBucket(collection)
		if tx.Bucket(name) == nil {
			return nil
		}

		if err := tx.DeleteBucket(name); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}

		return nil
	})
}

// ListPendingSync returns records in the collection still marked as
// pending synchronization
func (s *Storage) ListPendingSync(ctx context.Context, collection string) ([]*models.Record, error) {
	records, err := s.ListRecords(ctx, collection)
	if err != nil {
		return nil, err
	}

	pending := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if r.Dirty() {
			pending = append(pending, r)
		}
	}

	return pending, nil
}
