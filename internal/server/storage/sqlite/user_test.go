package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/server/storage"
)

func createTestUser(username string) *models.User {
	return &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "$2a$10$fakehashfortestingpurposesonly",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateUser(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	user := createTestUser("drsmith")
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUserByUsername(ctx, "drsmith")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)
	assert.True(t, got.LastLogin.IsZero())
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, createTestUser("drsmith")))

	err := store.CreateUser(ctx, createTestUser("drsmith"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetUserByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestGetUserByID(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	user := createTestUser("drsmith")
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "drsmith", got.Username)

	_, err = store.GetUserByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUpdateLastLogin(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	user := createTestUser("drsmith")
	require.NoError(t, store.CreateUser(ctx, user))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateLastLogin(ctx, user.ID, now))

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), got.LastLogin.Unix())
}

func TestUpdateLastLogin_NotFound(t *testing.T) {
	store := createTestStorage(t)

	err := store.UpdateLastLogin(context.Background(), uuid.New().String(), time.Now())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}
