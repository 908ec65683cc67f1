package storage

import "errors"

// Common client storage errors
var (
	// ErrRecordNotFound indicates that record was not found in a collection
	ErrRecordNotFound = errors.New("record not found")

	// ErrQueueEntryNotFound indicates that queue entry was not found
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")
)
