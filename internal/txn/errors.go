package txn

import (
	"errors"
	"fmt"
)

// Common transaction manager errors.
var (
	// ErrNoTransaction is returned when an operation requires an open
	// transaction and the manager has none.
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrTransactionActive is returned by Begin when the manager already
	// owns an open transaction.
	ErrTransactionActive = errors.New("transaction already in progress")

	// ErrTransactionClosed is returned when joining a resource or registering
	// a hook on a transaction that already committed or aborted.
	ErrTransactionClosed = errors.New("transaction is no longer active")

	// ErrConflict marks a transient conflict between concurrent transactions.
	// Backends wrap their own conflict errors with it so the default retry
	// predicate recognizes them.
	ErrConflict = errors.New("transaction conflict")

	// ErrRetriesExhausted is matched by errors returned from Run when the
	// last permitted attempt still failed with a retryable conflict.
	ErrRetriesExhausted = errors.New("transaction retries exhausted")
)

// ExhaustedError reports that Run gave up after Attempts tries.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetriesExhausted and the last conflict error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// RetryableFunc reports whether err is a transient conflict worth retrying.
type RetryableFunc func(err error) bool

// IsConflict is the default RetryableFunc. It matches errors wrapping
// ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// AnyOf combines predicates; an error is retryable if any predicate says so.
func AnyOf(preds ...RetryableFunc) RetryableFunc {
	return func(err error) bool {
		for _, pred := range preds {
			if pred != nil && pred(err) {
				return true
			}
		}
		return false
	}
}
