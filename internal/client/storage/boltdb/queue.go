package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/models"
)

// queueKey формирует ключ элемента очереди из bbolt sequence.
// Hex с ведущими нулями сохраняет FIFO порядок при байтовой сортировке ключей.
func queueKey(seq uint64) string {
	return fmt.Sprintf("%016x", seq)
}

// Enqueue appends a mutation to the queue and returns the stored entry
func (s *Storage) Enqueue(ctx context.Context, collection string, action models.Action, payload *models.Record) (*models.QueueEntry, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("invalid queue action %q", action)
	}

	var entry *models.QueueEntry

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get queue sequence: %w", err)
		}

		entry = &models.QueueEntry{
			ID:         queueKey(seq),
			Collection: collection,
			Action:     action,
			Payload:    payload.Clone(),
			EnqueuedAt: time.Now().UTC(),
			RetryCount: 0,
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal queue entry: %w", err)
		}

		if err := bucket.Put([]byte(entry.ID), data); err != nil {
			return fmt.Errorf("failed to save queue entry: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ListQueue returns all pending entries in enqueue (FIFO) order
func (s *Storage) ListQueue(ctx context.Context) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		// ForEach обходит ключи в байтовом порядке — для hex ключей это FIFO
		return bucket.ForEach(func(k, v []byte) error {
			entry := &models.QueueEntry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return fmt.Errorf("failed to unmarshal queue entry %q: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return entries, nil
}

// RemoveFromQueue removes an entry by id. Idempotent: no error if absent.
func (s *Storage) RemoveFromQueue(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to remove queue entry: %w", err)
		}

		return nil
	})
}

// IncrementRetry bumps the retry counter of an entry and returns the new count
func (s *Storage) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrQueueEntryNotFound
		}

		entry := &models.QueueEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("failed to unmarshal queue entry: %w", err)
		}

		entry.RetryCount++
		count = entry.RetryCount

		updated, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal queue entry: %w", err)
		}

		if err := bucket.Put([]byte(id), updated); err != nil {
			return fmt.Errorf("failed to update queue entry: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}
