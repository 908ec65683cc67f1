package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastSyncAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveLastSyncAt(ctx, ts))

	got, err := store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestGetLastSyncAtNeverSynced(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	got, err := store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
