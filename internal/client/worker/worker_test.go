package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/dentkeeper/internal/models"
)

type testEnv struct {
	worker *Worker
	store  *boltdb.Storage
	api    *api.ClientAPIMock
	online bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	env := &testEnv{store: store, online: true}
	env.api = &api.ClientAPIMock{
		InsertFunc: func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
			return record, nil
		},
		UpdateFunc: func(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error) {
			return nil, nil
		},
		DeleteFunc: func(ctx context.Context, collection, column string, value any) error {
			return nil
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.worker = New(env.api, store, store, func() bool { return env.online }, 10*time.Millisecond, logger)
	// Быстрый бэкофф, чтобы тесты не ждали реальных пауз
	env.worker.baseDelay = time.Millisecond

	return env
}

func (env *testEnv) enqueueDirty(t *testing.T, collection, id string, action models.Action) *models.Record {
	t.Helper()
	ctx := context.Background()

	rec := models.NewRecord(map[string]any{"full_name": "Patient " + id})
	rec.ID = id
	rec.MarkDirty(action)

	require.NoError(t, env.store.PutRecord(ctx, collection, rec))
	_, err := env.store.Enqueue(ctx, collection, action, rec)
	require.NoError(t, err)
	return rec
}

func TestDrainOnce_OfflineNoop(t *testing.T) {
	env := newTestEnv(t)
	env.enqueueDirty(t, "patients", "p-1", models.ActionCreate)
	env.online = false

	require.NoError(t, env.worker.DrainOnce(context.Background()))

	assert.Empty(t, env.api.InsertCalls())
	entries, err := env.store.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDrainOnce_EmptyQueue(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.worker.DrainOnce(context.Background()))
	assert.Empty(t, env.api.InsertCalls())
}

func TestDrainOnce_AppliesCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-1", models.ActionCreate)

	require.NoError(t, env.worker.DrainOnce(ctx))

	inserts := env.api.InsertCalls()
	require.Len(t, inserts, 1)
	assert.Equal(t, "patients", inserts[0].Collection)
	assert.False(t, inserts[0].Record.Dirty())

	// Очередь пуста, локальная копия чистая
	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec, err := env.store.GetRecord(ctx, "patients", "p-1")
	require.NoError(t, err)
	assert.False(t, rec.Dirty())
}

func TestDrainOnce_RetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-1", models.ActionCreate)

	// Первые две попытки проваливаются, третья проходит
	var attempts int
	env.api.InsertFunc = func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient failure")
		}
		return record, nil
	}

	require.NoError(t, env.worker.DrainOnce(ctx))
	assert.Equal(t, 3, attempts)

	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDrainOnce_DropsCreateAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-doomed", models.ActionCreate)

	env.api.InsertFunc = func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
		return nil, errors.New("permanent rejection")
	}

	require.NoError(t, env.worker.DrainOnce(ctx))

	assert.Len(t, env.api.InsertCalls(), maxAttempts)

	// Entry выброшена, локальная запись осталась, но чистая
	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec, err := env.store.GetRecord(ctx, "patients", "p-doomed")
	require.NoError(t, err)
	assert.False(t, rec.Dirty())
}

func TestDrainOnce_KeepsFailedDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-gone", models.ActionDelete)

	env.api.DeleteFunc = func(ctx context.Context, collection, column string, value any) error {
		return errors.New("server unavailable")
	}

	require.NoError(t, env.worker.DrainOnce(ctx))
	require.NoError(t, env.worker.DrainOnce(ctx))

	// Delete переживает любое число проходов, счетчик попыток растет
	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionDelete, entries[0].Action)
	assert.Equal(t, 2, entries[0].RetryCount)
}

func TestDrainOnce_DeleteRemovesTombstone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-gone", models.ActionDelete)

	require.NoError(t, env.worker.DrainOnce(ctx))

	deletes := env.api.DeleteCalls()
	require.Len(t, deletes, 1)
	assert.Equal(t, "p-gone", deletes[0].Value)

	_, err := env.store.GetRecord(ctx, "patients", "p-gone")
	require.Error(t, err)
}

func TestDrainOnce_FIFOOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-1", models.ActionCreate)
	env.enqueueDirty(t, "patients", "p-2", models.ActionCreate)
	env.enqueueDirty(t, "patients", "p-3", models.ActionCreate)

	require.NoError(t, env.worker.DrainOnce(ctx))

	inserts := env.api.InsertCalls()
	require.Len(t, inserts, 3)
	assert.Equal(t, "p-1", inserts[0].Record.ID)
	assert.Equal(t, "p-2", inserts[1].Record.ID)
	assert.Equal(t, "p-3", inserts[2].Record.ID)
}

func TestWorker_TickerDrains(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", "p-1", models.ActionCreate)

	env.worker.Start(ctx)
	defer env.worker.Stop()

	require.Eventually(t, func() bool {
		entries, err := env.store.ListQueue(ctx)
		return err == nil && len(entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_StopWaits(t *testing.T) {
	env := newTestEnv(t)

	env.worker.Start(context.Background())
	env.worker.Stop()

	// После Stop тикер молчит: новые entry не применяются
	env.enqueueDirty(t, "patients", "p-late", models.ActionCreate)
	time.Sleep(30 * time.Millisecond)

	entries, err := env.store.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
