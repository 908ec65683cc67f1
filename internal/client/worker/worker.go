// Package worker реализует фоновый слив очереди мутаций.
// Worker общается с остальным клиентом только через персистентное
// состояние очереди: интерактивные операции фасада и тикер воркера не
// знают друг о друге.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/storage"
	"github.com/iudanet/dentkeeper/internal/models"
)

const (
	// maxAttempts — попыток применения одной entry за проход,
	// с экспоненциальной паузой между ними
	maxAttempts = 3

	defaultBaseDelay = 500 * time.Millisecond
)

// Worker сливает очередь отложенных мутаций по тикеру
type Worker struct {
	apiClient api.ClientAPI
	queue     storage.QueueStorage
	records   storage.RecordStorage
	online    func() bool
	logger    *slog.Logger
	stopC     chan struct{}
	interval  time.Duration
	baseDelay time.Duration
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New создает воркер очереди.
// interval - период между проходами слива
func New(apiClient api.ClientAPI, queue storage.QueueStorage, records storage.RecordStorage, online func() bool, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		apiClient: apiClient,
		queue:     queue,
		records:   records,
		online:    online,
		interval:  interval,
		baseDelay: defaultBaseDelay,
		logger:    logger,
		stopC:     make(chan struct{}),
	}
}

// Start запускает фоновый цикл слива
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop останавливает цикл и дожидается завершения текущего прохода
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopC)
	})
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				w.logger.Warn("queue drain pass failed", "error", err)
			}
		case <-w.stopC:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DrainOnce выполняет один проход по очереди. No-op если связи нет.
// Каждая entry применяется с бэкоффом до maxAttempts попыток; после
// исчерпания create/update выбрасывается с ошибкой в логе, delete
// остается в очереди до следующего прохода.
func (w *Worker) DrainOnce(ctx context.Context) error {
	if !w.online() {
		return nil
	}

	entries, err := w.queue.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	w.logger.Debug("draining mutation queue", "entries", len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.drainEntry(ctx, entry)
	}

	return nil
}

func (w *Worker) drainEntry(ctx context.Context, entry *models.QueueEntry) {
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(w.baseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := w.applyEntry(ctx, entry); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		if err := w.queue.RemoveFromQueue(ctx, entry.ID); err != nil {
			w.logger.Error("failed to remove applied queue entry", "entry_id", entry.ID, "error", err)
		}
		return
	}

	if _, ierr := w.queue.IncrementRetry(ctx, entry.ID); ierr != nil && !errors.Is(ierr, storage.ErrQueueEntryNotFound) {
		w.logger.Error("failed to increment retry count", "entry_id", entry.ID, "error", ierr)
	}

	if entry.Action == models.ActionDelete {
		// Удаления не выбрасываем: молча потерять delete хуже,
		// чем гонять его до восстановления сервера
		w.logger.Warn("delete entry failed, keeping queued",
			"entry_id", entry.ID,
			"collection", entry.Collection,
			"error", err)
		return
	}

	w.logger.Error("dropping queue entry after max attempts",
		"entry_id", entry.ID,
		"collection", entry.Collection,
		"action", entry.Action,
		"attempts", maxAttempts,
		"error", err)
	if rerr := w.queue.RemoveFromQueue(ctx, entry.ID); rerr != nil {
		w.logger.Error("failed to remove dropped queue entry", "entry_id", entry.ID, "error", rerr)
	}
	w.clearDroppedRecord(ctx, entry)
}

// applyEntry применяет одну мутацию на сервере и приводит локальную
// копию в чистое состояние
func (w *Worker) applyEntry(ctx context.Context, entry *models.QueueEntry) error {
	if entry.Payload == nil {
		return fmt.Errorf("queue entry %s has no payload", entry.ID)
	}

	switch entry.Action {
	case models.ActionCreate:
		if _, err := w.apiClient.Insert(ctx, entry.Collection, entry.Payload.CleanCopy()); err != nil {
			return err
		}
		return w.markClean(ctx, entry)

	case models.ActionUpdate:
		patch := make(map[string]any, len(entry.Payload.Fields))
		for k, v := range entry.Payload.Fields {
			patch[k] = v
		}
		if _, err := w.apiClient.Update(ctx, entry.Collection, patch, "id", entry.Payload.ID); err != nil {
			return err
		}
		return w.markClean(ctx, entry)

	case models.ActionDelete:
		if err := w.apiClient.Delete(ctx, entry.Collection, "id", entry.Payload.ID); err != nil {
			return err
		}
		return w.records.DeleteRecord(ctx, entry.Collection, entry.Payload.ID)

	case models.ActionNone:
		return fmt.Errorf("queue entry %s has no action", entry.ID)
	}

	return fmt.Errorf("unknown queue action %q", entry.Action)
}

func (w *Worker) markClean(ctx context.Context, entry *models.QueueEntry) error {
	rec, err := w.records.GetRecord(ctx, entry.Collection, entry.Payload.ID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !rec.Dirty() {
		return nil
	}
	rec.ClearSyncFlags()
	return w.records.PutRecord(ctx, entry.Collection, rec)
}

func (w *Worker) clearDroppedRecord(ctx context.Context, entry *models.QueueEntry) {
	if entry.Payload == nil {
		return
	}
	if err := w.markClean(ctx, entry); err != nil {
		w.logger.Warn("failed to clear flags of dropped record", "id", entry.Payload.ID, "error", err)
	}
}
