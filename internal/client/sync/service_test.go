package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/dentkeeper/internal/models"
)

type testEnv struct {
	service Service
	store   *boltdb.Storage
	api     *api.ClientAPIMock
	online  bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "dentkeeper_test.db")
	store, err := boltdb.New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	env := &testEnv{store: store, online: true}
	env.api = &api.ClientAPIMock{
		SelectFunc: func(ctx context.Context, collection string) ([]*models.Record, error) {
			return nil, nil
		},
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
	env.service = NewService(env.api, store, store, store, func() bool { return env.online }, logger)

	return env
}

func newTestRecord(id, name string) *models.Record {
	now := time.Now().UTC().Truncate(time.Second)
	rec := models.NewRecord(map[string]any{"full_name": name})
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec
}

// enqueueDirty моделирует работу фасада в offline: грязная запись
// в хранилище плюс entry в очереди
func (env *testEnv) enqueueDirty(t *testing.T, collection string, rec *models.Record, action models.Action) {
	t.Helper()
	ctx := context.Background()

	rec.MarkDirty(action)
	require.NoError(t, env.store.PutRecord(ctx, collection, rec))
	_, err := env.store.Enqueue(ctx, collection, action, rec)
	require.NoError(t, err)
}

func TestForceSync_OfflineNoop(t *testing.T) {
	env := newTestEnv(t)
	env.online = false

	result, err := env.service.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, env.api.SelectCalls())
}

func TestForceSync_PullMirrorsServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Локально устаревшая запись, на сервере — актуальный набор
	stale := newTestRecord("p-stale", "Old Patient")
	require.NoError(t, env.store.PutRecord(ctx, "patients", stale))

	env.api.SelectFunc = func(ctx context.Context, collection string) ([]*models.Record, error) {
		if collection != "patients" {
			return nil, nil
		}
		return []*models.Record{
			newTestRecord("p-1", "Анна Иванова"),
			newTestRecord("p-2", "Петр Сидоров"),
		}, nil
	}

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Pulled)

	rows, err := env.store.ListRecords(ctx, "patients")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Старой записи больше нет
	ids := map[string]bool{}
	for _, r := range rows {
		ids[r.ID] = true
	}
	assert.False(t, ids["p-stale"])
	assert.True(t, ids["p-1"])
	assert.True(t, ids["p-2"])

	// Каждая коллекция опрошена ровно один раз в фиксированном порядке
	calls := env.api.SelectCalls()
	require.Len(t, calls, len(models.Collections()))
	for i, collection := range models.Collections() {
		assert.Equal(t, collection, calls[i].Collection)
	}
}

func TestForceSync_MirrorPreservesDirtyRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dirty := newTestRecord("p-dirty", "Offline Patient")
	env.enqueueDirty(t, "patients", dirty, models.ActionCreate)

	// Insert навсегда падает: запись должна пережить mirror-проход грязной
	applyErr := errors.New("insert rejected")
	env.api.InsertFunc = func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
		return nil, applyErr
	}
	env.api.SelectFunc = func(ctx context.Context, collection string) ([]*models.Record, error) {
		if collection != "patients" {
			return nil, nil
		}
		return []*models.Record{newTestRecord("p-remote", "Remote Patient")}, nil
	}

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	got, err := env.store.GetRecord(ctx, "patients", "p-dirty")
	require.NoError(t, err)
	assert.True(t, got.Dirty())
	assert.Equal(t, models.ActionCreate, got.Action)
}

func TestForceSync_DrainsOfflineCreates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"p-1", "p-2", "p-3"} {
		env.enqueueDirty(t, "patients", newTestRecord(id, "Пациент "+id), models.ActionCreate)
	}

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Pushed)
	assert.Zero(t, result.Failed)

	// Каждый insert ушел без служебных полей
	inserts := env.api.InsertCalls()
	require.Len(t, inserts, 3)
	for _, call := range inserts {
		assert.False(t, call.Record.Dirty())
	}

	// Флаги сняты, очередь пуста
	rows, err := env.store.ListRecords(ctx, "patients")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.False(t, r.Dirty(), "record %s still dirty", r.ID)
	}

	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	pending, err := env.service.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestForceSync_PerItemIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", newTestRecord("p-bad", "Bad"), models.ActionCreate)
	env.enqueueDirty(t, "patients", newTestRecord("p-good", "Good"), models.ActionCreate)

	env.api.InsertFunc = func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
		if record.ID == "p-bad" {
			return nil, errors.New("validation failed")
		}
		return record, nil
	}

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	// Отказ одного элемента не мешает остальным
	good, err := env.store.GetRecord(ctx, "patients", "p-good")
	require.NoError(t, err)
	assert.False(t, good.Dirty())

	bad, err := env.store.GetRecord(ctx, "patients", "p-bad")
	require.NoError(t, err)
	assert.True(t, bad.Dirty())
	assert.Positive(t, result.Failed)
}

func TestForceSync_DropsCreateAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueueDirty(t, "patients", newTestRecord("p-doomed", "Doomed"), models.ActionCreate)

	env.api.InsertFunc = func(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
		return nil, errors.New("permanent server rejection")
	}

	// Три прохода — после третьего entry выброшена
	var dropped int
	for i := 0; i < maxAttempts; i++ {
		result, err := env.service.ForceSync(ctx)
		require.NoError(t, err)
		require.NotNil(t, result)
		dropped += result.Dropped
	}
	assert.Equal(t, 1, dropped)

	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Четвертый проход мутацию больше не пробует
	before := len(env.api.InsertCalls())
	_, err = env.service.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, len(env.api.InsertCalls()))
}

func TestForceSync_DeleteRetriedIndefinitely(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tomb := newTestRecord("p-gone", "Gone")
	env.enqueueDirty(t, "patients", tomb, models.ActionDelete)

	env.api.DeleteFunc = func(ctx context.Context, collection, column string, value any) error {
		return errors.New("server unavailable")
	}

	for i := 0; i < maxAttempts+2; i++ {
		_, err := env.service.ForceSync(ctx)
		require.NoError(t, err)
	}

	// Delete переживает любое число неудачных проходов
	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionDelete, entries[0].Action)
}

func TestForceSync_DeleteRemovesTombstone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tomb := newTestRecord("p-gone", "Gone")
	env.enqueueDirty(t, "patients", tomb, models.ActionDelete)

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	deletes := env.api.DeleteCalls()
	require.Len(t, deletes, 1)
	assert.Equal(t, "patients", deletes[0].Collection)
	assert.Equal(t, "id", deletes[0].Column)
	assert.Equal(t, "p-gone", deletes[0].Value)

	// Tombstone физически удален, очередь пуста
	_, err = env.store.GetRecord(ctx, "patients", "p-gone")
	require.Error(t, err)

	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestForceSync_OfflineUpdateSyncsAsPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := newTestRecord("p-1", "Анна Иванова")
	rec.Fields["phone"] = "+7-900-000-00-00"
	env.enqueueDirty(t, "patients", rec, models.ActionUpdate)

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Pushed)

	updates := env.api.UpdateCalls()
	require.Len(t, updates, 1)
	assert.Equal(t, "patients", updates[0].Collection)
	assert.Equal(t, "id", updates[0].Column)
	assert.Equal(t, "p-1", updates[0].Value)
	assert.Equal(t, "+7-900-000-00-00", updates[0].Patch["phone"])
}

func TestForceSync_CollectionPullFailureSkipsCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	local := newTestRecord("p-1", "Local Patient")
	require.NoError(t, env.store.PutRecord(ctx, "patients", local))

	env.api.SelectFunc = func(ctx context.Context, collection string) ([]*models.Record, error) {
		if collection == "patients" {
			return nil, api.ErrUnavailable
		}
		return nil, nil
	}

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Positive(t, result.Failed)

	// Локальное зеркало не тронуто
	got, err := env.store.GetRecord(ctx, "patients", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Local Patient", got.Fields["full_name"])

	// Остальные коллекции все равно опрошены
	assert.Len(t, env.api.SelectCalls(), len(models.Collections()))
}

func TestForceSync_SavesLastSyncTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before, err := env.store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, before.IsZero())

	_, err = env.service.ForceSync(ctx)
	require.NoError(t, err)

	after, err := env.store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.False(t, after.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), after, 5*time.Second)
}

func TestForceSync_ReentrancyGuard(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	env.api.SelectFunc = func(ctx context.Context, collection string) ([]*models.Record, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = env.service.ForceSync(context.Background())
	}()

	<-started

	// Пока первый проход висит в Select, второй схлопывается в no-op
	result, err := env.service.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)

	close(release)
	wg.Wait()
}

func TestForceSync_EndToEndOfflineSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Сервер уже знает одного пациента
	serverRows := map[string][]*models.Record{
		"patients": {newTestRecord("p-existing", "Existing Patient")},
	}
	env.api.SelectFunc = func(ctx context.Context, collection string) ([]*models.Record, error) {
		return serverRows[collection], nil
	}

	// Offline-сессия: создание, правка и удаление
	created := newTestRecord("p-new", "New Patient")
	env.enqueueDirty(t, "patients", created, models.ActionCreate)

	appt := newTestRecord("a-1", "")
	appt.Fields = map[string]any{"patient_id": "p-new", "status": "confirmed"}
	env.enqueueDirty(t, "appointments", appt, models.ActionUpdate)

	gone := newTestRecord("i-1", "")
	env.enqueueDirty(t, "invoices", gone, models.ActionDelete)

	result, err := env.service.ForceSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Pushed)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Dropped)

	require.Len(t, env.api.InsertCalls(), 1)
	require.Len(t, env.api.UpdateCalls(), 1)
	require.Len(t, env.api.DeleteCalls(), 1)

	entries, err := env.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Сервисное состояние: зеркало + чистая локальная копия created
	patients, err := env.store.ListRecords(ctx, "patients")
	require.NoError(t, err)
	for _, r := range patients {
		assert.False(t, r.Dirty())
	}
}
