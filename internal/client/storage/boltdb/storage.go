package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketAuth     = []byte("auth")
	bucketMetadata = []byte("metadata")
	bucketQueue    = []byte("queue")
)

// recordsBucket возвращает имя bucket для коллекции записей.
// Одна коллекция — один bucket, membership записи никогда не меняется.
func recordsBucket(collection string) []byte {
	return []byte("records:" + collection)
}

// Storage represents BoltDB storage implementation for client.
// Implements storage.RecordStorage, storage.QueueStorage,
// storage.MetadataStorage and storage.AuthStorage.
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют.
// Buckets коллекций создаются лениво при первой записи.
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketMetadata, bucketQueue} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %q: %w", name, err)
			}
		}
		return nil
	})
}
