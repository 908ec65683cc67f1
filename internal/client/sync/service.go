// Package sync реализует reconciler: восстановление инварианта
// "локальное хранилище отражает сервер, плюс минимальная очередь
// еще не примененных локальных изменений" после возвращения связи.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/models"
)

// maxAttempts — предел попыток применения отложенной мутации create/update.
// После него запись выбрасывается из очереди с ошибкой в логе.
// Delete-мутации предела не имеют: молчаливая потеря удаления опаснее
// бесконечных повторов.
const maxAttempts = 3

// Service определяет интерфейс reconciler
type Service interface {
	// ForceSync выполняет полный проход синхронизации.
	// No-op (возвращает nil, nil) если связи нет или проход уже идет.
	ForceSync(ctx context.Context) (*SyncResult, error)

	// PendingCount возвращает количество мутаций, ожидающих применения
	PendingCount(ctx context.Context) (int, error)
}

// SyncResult contains sync pass results
type SyncResult struct {
	Pulled  int // записей получено с сервера
	Pushed  int // локальных изменений применено на сервере
	Failed  int // неудачных применений (остаются до следующего прохода)
	Dropped int // мутаций выброшено после maxAttempts попыток
}

type service struct {
	apiClient   api.ClientAPI
	records     storage.RecordStorage
	queue       storage.QueueStorage
	metadata    storage.MetadataStorage
	online      func() bool
	logger      *slog.Logger
	syncing     atomic.Bool
	maxAttempts int
}

// NewService creates a new reconciler
func NewService(apiClient api.ClientAPI, records storage.RecordStorage, queue storage.QueueStorage, metadata storage.MetadataStorage, online func() bool, logger *slog.Logger) Service {
	return &service{
		apiClient:   apiClient,
		records:     records,
		queue:       queue,
		metadata:    metadata,
		online:      online,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// ForceSync выполняет полный проход синхронизации
func (s *service) ForceSync(ctx context.Context) (*SyncResult, error) {
	if !s.online() {
		s.logger.Debug("sync skipped: offline")
		return nil, nil
	}

	// Reentrancy guard: дребезг online/offline схлопывается в один проход
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync skipped: already in flight")
		return nil, nil
	}
	defer s.syncing.Store(false)

	s.logger.Info("starting sync pass")
	result := &SyncResult{}

	// Коллекции обходятся строго последовательно в фиксированном порядке
	for _, collection := range models.Collections() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.syncCollection(ctx, collection, result)
	}

	if err := s.drainQueue(ctx, result); err != nil {
		return result, err
	}

	if err := s.metadata.SaveLastSyncAt(ctx, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to save last sync time", "error", err)
	}

	s.logger.Info("sync pass completed",
		"pulled", result.Pulled,
		"pushed", result.Pushed,
		"failed", result.Failed,
		"dropped", result.Dropped)

	return result, nil
}

// PendingCount возвращает количество мутаций в очереди
func (s *service) PendingCount(ctx context.Context) (int, error) {
	entries, err := s.queue.ListQueue(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}
	return len(entries), nil
}

// syncCollection выполняет pull-зеркало и слив грязных записей одной
// коллекции. Ошибка отдельного элемента не прерывает ни коллекцию,
// ни весь проход — только счетчик Failed.
func (s *service) syncCollection(ctx context.Context, collection string, result *SyncResult) {
	rows, err := s.apiClient.Select(ctx, collection)
	if err != nil {
		// Pull не удался — коллекцию пропускаем, mirror оставляем как есть
		s.logger.Warn("collection pull failed", "collection", collection, "error", err)
		result.Failed++
		return
	}

	if err := s.mirrorReplace(ctx, collection, rows); err != nil {
		s.logger.Error("mirror replace failed", "collection", collection, "error", err)
		result.Failed++
		return
	}
	result.Pulled += len(rows)

	pending, err := s.records.ListPendingSync(ctx, collection)
	if err != nil {
		s.logger.Error("failed to list pending records", "collection", collection, "error", err)
		result.Failed++
		return
	}

	for _, record := range pending {
		if err := s.syncRecord(ctx, collection, record); err != nil {
			s.logger.Warn("failed to sync record",
				"collection", collection,
				"id", record.ID,
				"action", record.Action,
				"error", err)
			result.Failed++
			continue
		}

		result.Pushed++

		// Мутация применена — ее копии в очереди больше не нужны
		if err := s.dropQueueEntries(ctx, collection, record.ID); err != nil {
			s.logger.Warn("failed to drop queue entries", "id", record.ID, "error", err)
		}
	}
}

// syncRecord применяет одну грязную запись на сервере.
// Dispatch по тегу Action покрывает все варианты; неизвестный тег — ошибка.
func (s *service) syncRecord(ctx context.Context, collection string, record *models.Record) error {
	switch record.Action {
	case models.ActionCreate:
		if _, err := s.apiClient.Insert(ctx, collection, record.CleanCopy()); err != nil {
			return err
		}
		return s.markClean(ctx, collection, record)

	case models.ActionUpdate:
		patch := recordPatch(record)
		if _, err := s.apiClient.Update(ctx, collection, patch, "id", record.ID); err != nil {
			return err
		}
		return s.markClean(ctx, collection, record)

	case models.ActionDelete:
		if err := s.apiClient.Delete(ctx, collection, "id", record.ID); err != nil {
			return err
		}
		// Tombstone больше не нужен ни в каком виде
		return s.records.DeleteRecord(ctx, collection, record.ID)

	case models.ActionNone:
		return fmt.Errorf("record %s is not dirty", record.ID)
	}

	return fmt.Errorf("unknown offline action %q", record.Action)
}

// drainQueue сливает standalone очередь мутаций: успех — удаление entry,
// неудача — инкремент счетчика попыток и (для create/update) удаление
// после maxAttempts.
func (s *service) drainQueue(ctx context.Context, result *SyncResult) error {
	entries, err := s.queue.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.applyEntry(ctx, entry); err != nil {
			s.handleEntryFailure(ctx, entry, err, result)
			continue
		}

		if err := s.queue.RemoveFromQueue(ctx, entry.ID); err != nil {
			s.logger.Error("failed to remove applied queue entry", "entry_id", entry.ID, "error", err)
			continue
		}
		result.Pushed++
	}

	return nil
}

// applyEntry применяет одну мутацию из очереди на сервере
func (s *service) applyEntry(ctx context.Context, entry *models.QueueEntry) error {
	if entry.Payload == nil {
		return fmt.Errorf("queue entry %s has no payload", entry.ID)
	}

	record := entry.Payload.Clone()
	record.Action = entry.Action

	return s.syncRecord(ctx, entry.Collection, record)
}

// handleEntryFailure реализует политику повторов очереди
func (s *service) handleEntryFailure(ctx context.Context, entry *models.QueueEntry, applyErr error, result *SyncResult) {
	count, err := s.queue.IncrementRetry(ctx, entry.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrQueueEntryNotFound) {
			s.logger.Error("failed to increment retry count", "entry_id", entry.ID, "error", err)
		}
		result.Failed++
		return
	}

	if entry.Action != models.ActionDelete && count >= s.maxAttempts {
		// Create/update после maxAttempts попыток выбрасывается:
		// вечные повторы скрывают проблему, а не решают ее
		s.logger.Error("dropping queue entry after max attempts",
			"entry_id", entry.ID,
			"collection", entry.Collection,
			"action", entry.Action,
			"attempts", count,
			"error", applyErr)
		if err := s.queue.RemoveFromQueue(ctx, entry.ID); err != nil {
			s.logger.Error("failed to remove dropped queue entry", "entry_id", entry.ID, "error", err)
		}
		// Локальная копия остается, но перестает числиться грязной
		s.clearDroppedRecord(ctx, entry)
		result.Dropped++
		return
	}

	s.logger.Warn("queue entry failed, will retry next pass",
		"entry_id", entry.ID,
		"collection", entry.Collection,
		"action", entry.Action,
		"attempts", count,
		"error", applyErr)
	result.Failed++
}

// clearDroppedRecord снимает dirty-флаги с локальной записи выброшенной
// мутации, чтобы pending-drain не повторял ее бесконечно
func (s *service) clearDroppedRecord(ctx context.Context, entry *models.QueueEntry) {
	if entry.Payload == nil {
		return
	}
	rec, err := s.records.GetRecord(ctx, entry.Collection, entry.Payload.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			s.logger.Warn("failed to load record of dropped entry", "id", entry.Payload.ID, "error", err)
		}
		return
	}
	if !rec.Dirty() {
		return
	}
	rec.ClearSyncFlags()
	if err := s.records.PutRecord(ctx, entry.Collection, rec); err != nil {
		s.logger.Warn("failed to clear flags of dropped record", "id", entry.Payload.ID, "error", err)
	}
}

// markClean снимает служебные поля с записи после успешного применения
func (s *service) markClean(ctx context.Context, collection string, record *models.Record) error {
	record.ClearSyncFlags()
	if err := s.records.PutRecord(ctx, collection, record); err != nil {
		return fmt.Errorf("failed to clear sync flags: %w", err)
	}
	return nil
}

// mirrorReplace заменяет локальную коллекцию серверной, сохраняя грязные
// записи: ими до синхронизации владеет очередь мутаций
func (s *service) mirrorReplace(ctx context.Context, collection string, rows []*models.Record) error {
	pending, err := s.records.ListPendingSync(ctx, collection)
	if err != nil {
		return err
	}

	if err := s.records.ClearCollection(ctx, collection); err != nil {
		return err
	}

	dirty := make(map[string]bool, len(pending))
	for _, p := range pending {
		dirty[p.ID] = true
	}

	for _, row := range rows {
		if dirty[row.ID] {
			continue
		}
		if err := s.records.PutRecord(ctx, collection, row); err != nil {
			return err
		}
	}

	for _, p := range pending {
		if err := s.records.PutRecord(ctx, collection, p); err != nil {
			return err
		}
	}

	return nil
}

// dropQueueEntries убирает из очереди мутации записи recordID
func (s *service) dropQueueEntries(ctx context.Context, collection, recordID string) error {
	entries, err := s.queue.ListQueue(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Collection == collection && e.Payload != nil && e.Payload.ID == recordID {
			if err := s.queue.RemoveFromQueue(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordPatch строит wire patch из доменных полей записи для remote update
func recordPatch(record *models.Record) map[string]any {
	patch := make(map[string]any, len(record.Fields)+1)
	for k, v := range record.Fields {
		patch[k] = v
	}
	if !record.UpdatedAt.IsZero() {
		patch["updated_at"] = record.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return patch
}
