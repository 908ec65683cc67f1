package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/server/storage"
)

// InsertRecord stores a record in a collection.
// Повторная вставка того же id перезаписывает запись: retry отложенного
// create с клиента не должен плодить дубликаты.
func (s *Storage) InsertRecord(ctx context.Context, collection string, record *models.Record) error {
	data, err := json.Marshal(record.CleanCopy())
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO records (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		collection,
		record.ID,
		string(data),
		record.CreatedAt.Unix(),
		record.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by id
// Returns ErrRecordNotFound if record doesn't exist
func (s *Storage) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `SELECT data FROM records WHERE collection = ? AND id = ?`

	var data string
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return unmarshalRecord(data)
}

// ListRecords returns all records of a collection ordered by creation time
func (s *Storage) ListRecords(ctx context.Context, collection string) ([]*models.Record, error) {
	query := `
		SELECT data FROM records
		WHERE collection = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			err = cerr
		}
	}()

	return scanRecords(rows)
}

// UpdateWhere merges patch into matching records and returns the first one.
// Returns ErrRecordNotFound if nothing matched.
func (s *Storage) UpdateWhere(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error) {
	matched, err := s.findWhere(ctx, collection, column, value)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, storage.ErrRecordNotFound
	}

	for _, rec := range matched {
		rec.Merge(patch)
		if _, ok := patch["updated_at"]; !ok {
			rec.UpdatedAt = time.Now().UTC()
		}
		if err := s.saveRecord(ctx, collection, rec); err != nil {
			return nil, err
		}
	}

	return matched[0], nil
}

// DeleteWhere removes matching records and returns how many were removed
func (s *Storage) DeleteWhere(ctx context.Context, collection, column string, value any) (int, error) {
	// Быстрый путь: удаление по первичному ключу
	if column == "id" {
		query := `DELETE FROM records WHERE collection = ? AND id = ?`
		result, err := s.db.ExecContext(ctx, query, collection, fmt.Sprintf("%v", value))
		if err != nil {
			return 0, fmt.Errorf("failed to delete record: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		return int(n), nil
	}

	matched, err := s.findWhere(ctx, collection, column, value)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range matched {
		query := `DELETE FROM records WHERE collection = ? AND id = ?`
		if _, err := s.db.ExecContext(ctx, query, collection, rec.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete record: %w", err)
		}
		deleted++
	}

	return deleted, nil
}

// findWhere возвращает записи коллекции, у которых column == value.
// Поля хранятся внутри JSON blob, поэтому матчинг по произвольной
// колонке выполняется на записях, а не в SQL; для id есть быстрый путь.
func (s *Storage) findWhere(ctx context.Context, collection, column string, value any) ([]*models.Record, error) {
	if column == "id" {
		rec, err := s.GetRecord(ctx, collection, fmt.Sprintf("%v", value))
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []*models.Record{rec}, nil
	}

	all, err := s.ListRecords(ctx, collection)
	if err != nil {
		return nil, err
	}

	var matched []*models.Record
	for _, rec := range all {
		if rec.Matches(column, value) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// saveRecord перезаписывает существующую запись
func (s *Storage) saveRecord(ctx context.Context, collection string, record *models.Record) error {
	data, err := json.Marshal(record.CleanCopy())
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		UPDATE records
		SET data = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`

	_, err = s.db.ExecContext(ctx, query, string(data), record.UpdatedAt.Unix(), collection, record.ID)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	return nil
}

// scanRecords is a helper function to scan multiple records from rows
func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	var records []*models.Record

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func unmarshalRecord(data string) (*models.Record, error) {
	rec := &models.Record{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}
