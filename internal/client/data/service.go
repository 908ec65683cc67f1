// Package data реализует offline-aware data facade — единственную точку
// доступа приложения к доменным данным. Каждый вызов сам решает, идти ли
// на сервер или работать с локальным хранилищем: при недоступном сервере
// чтения обслуживаются кешем, записи откладываются в очередь мутаций.
package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/models"
	"github.com/iudanet/dentkeeper/internal/validation"
)

// Service определяет интерфейс data facade
type Service interface {
	// Select возвращает записи коллекции: с сервера если онлайн
	// (с обновлением локального зеркала), иначе из локального хранилища
	Select(ctx context.Context, collection string) ([]*models.Record, error)

	// Insert создает запись: id и timestamps назначаются до любой записи,
	// офлайн-вставка никогда не возвращает ошибку — только отложенный sync
	Insert(ctx context.Context, collection string, fields map[string]any) (*models.Record, error)

	// Update применяет частичный patch к записи, у которой column == value
	Update(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error)

	// Delete удаляет записи с column == value; офлайн — tombstone в очередь
	Delete(ctx context.Context, collection string, column string, value any) error
}

// Online сообщает текущее состояние связи. Передается из connectivity
// монитора, чтобы facade не зависел от него напрямую.
type Online func() bool

type service struct {
	apiClient api.ClientAPI
	records   storage.RecordStorage
	queue     storage.QueueStorage
	online    Online
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new data facade
func NewService(apiClient api.ClientAPI, records storage.RecordStorage, queue storage.QueueStorage, online Online, logger *slog.Logger) Service {
	return &service{
		apiClient: apiClient,
		records:   records,
		queue:     queue,
		online:    online,
		logger:    logger,
		now:       time.Now,
	}
}

// Select возвращает записи коллекции
func (s *service) Select(ctx context.Context, collection string) ([]*models.Record, error) {
	if err := validation.ValidateCollection(collection); err != nil {
		return nil, err
	}

	if !s.online() {
		// Офлайн: сервер не трогаем вообще
		return s.records.ListRecords(ctx, collection)
	}

	rows, err := s.apiClient.Select(ctx, collection)
	if err == nil {
		if err := s.mirrorReplace(ctx, collection, rows); err != nil {
			return nil, fmt.Errorf("failed to refresh local mirror: %w", err)
		}
		return rows, nil
	}

	if !errors.Is(err, api.ErrUnavailable) {
		return nil, err
	}

	// RemoteUnavailable: отдаем локальный кеш вместо ошибки
	s.logger.Warn("select degraded to local cache", "collection", collection, "error", err)

	local, lerr := s.records.ListRecords(ctx, collection)
	if lerr != nil {
		return nil, fmt.Errorf("failed to read local cache: %w", lerr)
	}
	if len(local) == 0 {
		// Кеша нет — скрывать недоступность сервера не от чего
		return nil, err
	}
	return local, nil
}

// Insert создает запись
func (s *service) Insert(ctx context.Context, collection string, fields map[string]any) (*models.Record, error) {
	if err := validation.ValidateCollection(collection); err != nil {
		return nil, err
	}
	for name := range fields {
		if err := validation.ValidateFieldName(name); err != nil {
			return nil, err
		}
	}

	// id и timestamps назначаются до любого обращения к хранилищу или сети:
	// оба пути сохраняют идентичную запись
	now := s.now().UTC()
	record := models.NewRecord(fields)
	record.ID = uuid.New().String()
	record.CreatedAt = now
	record.UpdatedAt = now

	if s.online() {
		remote, err := s.apiClient.Insert(ctx, collection, record)
		switch {
		case err == nil:
			// Держим локальный кеш теплым
			if perr := s.records.PutRecord(ctx, collection, remote); perr != nil {
				return nil, fmt.Errorf("failed to cache inserted record: %w", perr)
			}
			return remote, nil
		case errors.Is(err, api.ErrUnavailable):
			s.logger.Warn("insert degraded to offline queue", "collection", collection, "id", record.ID)
		default:
			return nil, err
		}
	}

	// Офлайн-путь: помечаем запись и ставим мутацию в очередь.
	// Ошибкой для вызывающего это не является.
	record.MarkDirty(models.ActionCreate)
	if err := s.records.PutRecord(ctx, collection, record); err != nil {
		return nil, fmt.Errorf("failed to save offline record: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, collection, models.ActionCreate, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue offline insert: %w", err)
	}

	return record, nil
}

// Update применяет частичный patch к записи с column == value
func (s *service) Update(ctx context.Context, collection string, patch map[string]any, column string, value any) (*models.Record, error) {
	if err := validation.ValidateCollection(collection); err != nil {
		return nil, err
	}
	for name := range patch {
		if err := validation.ValidateFieldName(name); err != nil {
			return nil, err
		}
	}

	// updated_at ставится всегда, до выбора пути
	now := s.now().UTC()
	wirePatch := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		wirePatch[k] = v
	}
	wirePatch["updated_at"] = now.Format(time.RFC3339Nano)

	if s.online() {
		remote, err := s.apiClient.Update(ctx, collection, wirePatch, column, value)
		switch {
		case err == nil:
			if merr := s.mergeLocal(ctx, collection, wirePatch, column, value); merr != nil {
				return nil, fmt.Errorf("failed to merge update into local cache: %w", merr)
			}
			return remote, nil
		case errors.Is(err, api.ErrUnavailable):
			s.logger.Warn("update degraded to offline queue", "collection", collection, "column", column)
		default:
			return nil, err
		}
	}

	// Офлайн-путь: мержим в локальную запись и ставим в очередь
	existing, err := s.findLocal(ctx, collection, column, value)
	if err != nil {
		return nil, err
	}

	existing.Merge(wirePatch)

	// Запись, созданная офлайн, еще не существует на сервере:
	// для нее отложенной операцией остается create с новым содержимым
	action := models.ActionUpdate
	if existing.Action == models.ActionCreate {
		action = models.ActionCreate
	}
	existing.MarkDirty(action)

	if err := s.records.PutRecord(ctx, collection, existing); err != nil {
		return nil, fmt.Errorf("failed to save offline update: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, collection, action, existing); err != nil {
		return nil, fmt.Errorf("failed to enqueue offline update: %w", err)
	}

	return existing, nil
}

// Delete удаляет записи с column == value
func (s *service) Delete(ctx context.Context, collection string, column string, value any) error {
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}

	if s.online() {
		err := s.apiClient.Delete(ctx, collection, column, value)
		switch {
		case err == nil:
			return s.deleteLocal(ctx, collection, column, value)
		case errors.Is(err, api.ErrUnavailable):
			s.logger.Warn("delete degraded to offline queue", "collection", collection, "column", column)
		default:
			return err
		}
	}

	// Офлайн-путь: tombstone вместо физического удаления
	record, err := s.findLocal(ctx, collection, column, value)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			// Удаление отсутствующей записи идемпотентно
			return nil
		}
		return err
	}

	if record.Action == models.ActionCreate {
		// Запись создана офлайн и сервер ее не видел:
		// достаточно убрать ее локально вместе с отложенным create
		if err := s.records.DeleteRecord(ctx, collection, record.ID); err != nil {
			return fmt.Errorf("failed to delete offline-created record: %w", err)
		}
		return s.dropQueueEntries(ctx, collection, record.ID)
	}

	record.MarkDirty(models.ActionDelete)
	if err := s.records.PutRecord(ctx, collection, record); err != nil {
		return fmt.Errorf("failed to save tombstone: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, collection, models.ActionDelete, record); err != nil {
		return fmt.Errorf("failed to enqueue offline delete: %w", err)
	}

	return nil
}

// mirrorReplace атомарно по смыслу заменяет локальную коллекцию серверной:
// clear + put каждой строки. Грязные записи переживают замену — ими владеет
// очередь мутаций, а не кеш, и до синхронизации их терять нельзя.
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
			// Локальная грязная версия важнее серверной до синхронизации
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

// mergeLocal мержит patch в локальную запись, если она есть.
// Отсутствие записи в кеше не ошибка — зеркало могло устареть.
func (s *service) mergeLocal(ctx context.Context, collection string, patch map[string]any, column string, value any) error {
	record, err := s.findLocal(ctx, collection, column, value)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	record.Merge(patch)
	return s.records.PutRecord(ctx, collection, record)
}

// deleteLocal физически удаляет локальные записи с column == value
func (s *service) deleteLocal(ctx context.Context, collection string, column string, value any) error {
	record, err := s.findLocal(ctx, collection, column, value)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.records.DeleteRecord(ctx, collection, record.ID)
}

// findLocal находит локальную запись по колонке.
// По id — прямой lookup, по остальным колонкам — скан коллекции.
func (s *service) findLocal(ctx context.Context, collection string, column string, value any) (*models.Record, error) {
	if column == "id" {
		if id, ok := value.(string); ok {
			return s.records.GetRecord(ctx, collection, id)
		}
	}

	records, err := s.records.ListRecords(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Matches(column, value) {
			return r, nil
		}
	}

	return nil, storage.ErrRecordNotFound
}

// dropQueueEntries убирает из очереди все мутации записи recordID
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
