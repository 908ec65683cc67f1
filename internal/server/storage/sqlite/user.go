package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/server/storage"
)

// CreateUser creates a new user in the storage
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, created_at, last_login)
		VALUES (?, ?, ?, ?, ?)
	`

	var lastLogin any
	if !user.LastLogin.IsZero() {
		lastLogin = user.LastLogin.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt.Unix(),
		lastLogin,
	)

	if err != nil {
		// Проверяем на duplicate username
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves user by username
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, created_at, last_login
		FROM users
		WHERE username = ?
	`

	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, created_at, last_login
		FROM users
		WHERE id = ?
	`

	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	query := `UPDATE users SET last_login = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, lastLogin.Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (s *Storage) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	var lastLogin sql.NullInt64

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&createdAt,
		&lastLogin,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	if lastLogin.Valid {
		user.LastLogin = time.Unix(lastLogin.Int64, 0)
	}

	return user, nil
}
