package storage

import "context"

// AuthStorage defines interface for storing the current session on the client
type AuthStorage interface {
	// SaveAuth stores authentication data, replacing any previous session
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData represents the current session in storage
type AuthData struct {
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds
}
