package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during store
// interactions.
var (
	// ErrStoreUnavailable indicates that the backing store cannot be
	// reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates that a store operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrCorruptRecord indicates that persisted data failed to
	// decode.
	ErrCorruptRecord = errors.New("corrupt record")
)

// StoreError represents an error from a persistence adapter.
// It includes the store name, the operation, and the key involved.
type StoreError struct {
	// Store names the adapter that produced the error.
	Store string

	// Operation is the name of the operation that failed.
	Operation string

	// Key is the record or expert key involved, if any.
	Key string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error: store=%s, operation=%s", e.Store, e.Operation)
	if e.Key != "" {
		msg += fmt.Sprintf(", key=%s", e.Key)
	}
	return msg + fmt.Sprintf(", err=%v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the
// operation can be retried.
func (e *StoreError) IsRetryable() bool {
	// Only availability-level errors are retryable; logic errors are not
	return errors.Is(e.Err, ErrStoreUnavailable) || errors.Is(e.Err, ErrTimeout)
}

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(store, operation, key string, err error) *StoreError {
	return &StoreError{
		Store:     store,
		Operation: operation,
		Key:       key,
		Err:       err,
	}
}
