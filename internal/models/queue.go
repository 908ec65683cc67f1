package models

import "time"

// QueueEntry представляет одну отложенную мутацию в очереди синхронизации.
// Создается data facade при недоступности сервера, изменяется только
// reconciler (инкремент RetryCount при неудаче) и удаляется после
// подтвержденного применения на сервере.
type QueueEntry struct {
	EnqueuedAt time.Time `json:"enqueued_at"` // время постановки в очередь
	Payload    *Record   `json:"payload"`     // полная запись на момент постановки
	ID         string    `json:"id"`          // порядковый ключ очереди (hex от bbolt sequence)
	Collection string    `json:"collection"`  // коллекция, к которой относится мутация
	Action     Action    `json:"action"`      // create | update | delete
	RetryCount int       `json:"retry_count"` // число неудачных попыток применения
}
