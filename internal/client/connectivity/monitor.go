// Package connectivity отслеживает доступность сервера.
// Monitor — чистый источник событий: он только пробует health endpoint
// и уведомляет подписчиков о переходе offline→online, вся работа по
// синхронизации живет в других пакетах.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/dentkeeper/internal/client/storage"
)

// Checker проверяет доступность сервера одним запросом
type Checker interface {
	Ping(ctx context.Context) error
}

// Monitor периодически пробует сервер и хранит текущее online/offline
// состояние процесса. Подписчики уведомляются ровно один раз на каждый
// переход offline→online.
type Monitor struct {
	checker     Checker
	metadata    storage.MetadataStorage
	logger      *slog.Logger
	stopC       chan struct{}
	subscribers []func(ctx context.Context)
	refreshFn   func(ctx context.Context)
	probeEvery  time.Duration
	refreshMin  time.Duration
	stopOnce    sync.Once
	mu          sync.Mutex
	online      atomic.Bool
	visible     atomic.Bool
}

// NewMonitor создает монитор связи.
// probeEvery - интервал health-проб
// refreshMin - минимальный интервал фонового refresh (минуты)
func NewMonitor(checker Checker, metadata storage.MetadataStorage, probeEvery, refreshMin time.Duration, logger *slog.Logger) *Monitor {
	m := &Monitor{
		checker:    checker,
		metadata:   metadata,
		logger:     logger,
		probeEvery: probeEvery,
		refreshMin: refreshMin,
		stopC:      make(chan struct{}),
	}
	// Пока первая проба не прошла, считаем себя offline
	m.visible.Store(true)
	return m
}

// Online возвращает текущее состояние связи
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetVisible переключает foreground/background режим.
// В background пробы и refresh приостанавливаются; возврат в foreground
// сразу запускает внеочередную пробу.
func (m *Monitor) SetVisible(ctx context.Context, visible bool) {
	was := m.visible.Swap(visible)
	if !was && visible {
		m.CheckNow(ctx)
	}
}

// Subscribe регистрирует callback перехода offline→online.
// Callback вызывается синхронно из горутины монитора.
func (m *Monitor) Subscribe(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// OnRefresh регистрирует callback периодического фонового обновления.
// Вызывается только когда монитор visible и online, не чаще refreshMin
// с момента последней успешной синхронизации.
func (m *Monitor) OnRefresh(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshFn = fn
}

// Start запускает фоновый цикл проб. Немедленно выполняет первую пробу,
// чтобы состояние было известно до возврата.
func (m *Monitor) Start(ctx context.Context) {
	m.CheckNow(ctx)
	go m.run(ctx)
}

// Stop останавливает фоновый цикл
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopC)
	})
}

// CheckNow выполняет одну пробу и возвращает новое состояние
func (m *Monitor) CheckNow(ctx context.Context) bool {
	err := m.checker.Ping(ctx)
	if err != nil {
		if m.online.Swap(false) {
			m.logger.Warn("connection lost", "error", err)
		}
		return false
	}

	// Swap, а не Store: уведомление строго один раз на переход
	if !m.online.Swap(true) {
		m.logger.Info("connection restored")
		m.notify(ctx)
	}
	return true
}

func (m *Monitor) run(ctx context.Context) {
	probe := time.NewTicker(m.probeEvery)
	defer probe.Stop()

	refresh := time.NewTicker(m.refreshMin)
	defer refresh.Stop()

	for {
		select {
		case <-probe.C:
			if m.visible.Load() {
				m.CheckNow(ctx)
			}
		case <-refresh.C:
			m.maybeRefresh(ctx)
		case <-m.stopC:
			return
		case <-ctx.Done():
			return
		}
	}
}

// maybeRefresh запускает фоновый refresh, если он не подавлен
// видимостью, связью или недавней синхронизацией
func (m *Monitor) maybeRefresh(ctx context.Context) {
	if !m.visible.Load() || !m.online.Load() {
		return
	}

	m.mu.Lock()
	fn := m.refreshFn
	m.mu.Unlock()
	if fn == nil {
		return
	}

	lastSync, err := m.metadata.GetLastSyncAt(ctx)
	if err != nil {
		m.logger.Warn("failed to read last sync time", "error", err)
		return
	}
	if !lastSync.IsZero() && time.Since(lastSync) < m.refreshMin {
		return
	}

	m.logger.Debug("background refresh triggered", "last_sync", lastSync)
	fn(ctx)
}

func (m *Monitor) notify(ctx context.Context) {
	m.mu.Lock()
	subs := make([]func(ctx context.Context), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ctx)
	}
}
