package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/dentkeeper/internal/client/storage"
)

func TestAuthRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	auth := &storage.AuthData{
		Username:    "reception1",
		UserID:      "u1",
		AccessToken: "token",
		ExpiresAt:   1900000000,
	}
	require.NoError(t, store.SaveAuth(ctx, auth))

	got, err := store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth, got)
}

func TestGetAuthNotFound(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestDeleteAuth(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveAuth(ctx, &storage.AuthData{Username: "reception1"}))
	require.NoError(t, store.DeleteAuth(ctx))

	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}
