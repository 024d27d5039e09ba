package session

import "errors"

// Common errors for transaction coordination.
var (
	// ErrConflict is returned by a gateway's Atomic when a watched key was
	// changed by another writer before commit. The coordinator consumes it
	// and retries; callers never observe it unless a retry cap is hit.
	ErrConflict = errors.New("watched key changed concurrently")

	// ErrRetriesExceeded is returned when a transaction keeps conflicting
	// past the configured retry cap.
	ErrRetriesExceeded = errors.New("transaction retry limit exceeded")

	// ErrDoubleTransaction is returned when a transaction is opened while
	// another one is in flight on the same session and the caller did not
	// opt into joining it with IgnoreDouble.
	ErrDoubleTransaction = errors.New("transaction already in progress on session")
)
