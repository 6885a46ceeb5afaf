package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// TxFn is a function that executes within a transaction.
// The transaction is committed if the function returns nil, or aborted if it
// returns an error.
type TxFn func(ctx context.Context, tx *Transaction) error

// Manager begins, commits and aborts transactions and runs the retry loop.
// A Manager must not be shared between concurrent units of work.
type Manager struct {
	mu      sync.Mutex
	current *Transaction

	attempts    int
	retryable   RetryableFunc
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAttempts sets how many times Run tries a function before giving up.
// Values below 1 are treated as 1.
func WithAttempts(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.attempts = n
	}
}

// WithRetryable replaces the predicate that classifies retryable errors.
func WithRetryable(pred RetryableFunc) Option {
	return func(m *Manager) {
		if pred != nil {
			m.retryable = pred
		}
	}
}

// WithBackoff sets an exponential delay between attempts, starting at base
// and capped at maxDelay. A zero base retries immediately.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(m *Manager) {
		m.backoffBase = base
		m.backoffMax = maxDelay
	}
}

// WithLogger sets the logger used for transaction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager. By default it makes a single attempt and
// treats errors wrapping ErrConflict as retryable.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		attempts:  1,
		retryable: IsConflict,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "transaction_manager")
	return m
}

// Attempts returns the configured retry attempt count.
func (m *Manager) Attempts() int {
	return m.attempts
}

// IsRetryable reports whether err should trigger another attempt.
func (m *Manager) IsRetryable(err error) bool {
	return err != nil && m.retryable(err)
}

// Begin opens a new transaction.
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionActive, m.current.id)
	}
	m.current = newTransaction()
	m.logger.Debug("transaction started", "transaction_id", m.current.id)
	return m.current, nil
}

// Get returns the open transaction.
func (m *Manager) Get() (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoTransaction
	}
	return m.current, nil
}

func (m *Manager) detach() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.current
	m.current = nil
	return tx
}

// Commit commits every joined resource in join order. If a resource fails
// to commit, the remaining ones are rolled back and the transaction is
// reported as aborted to its hooks. Hooks fire before Commit returns.
func (m *Manager) Commit(ctx context.Context) error {
	tx := m.detach()
	if tx == nil {
		return ErrNoTransaction
	}

	resources := tx.joinedResources()
	for i, jr := range resources {
		if err := jr.resource.Commit(ctx); err != nil {
			m.logger.Error("failed to commit transaction resource",
				"transaction_id", tx.id,
				"resource", fmt.Sprintf("%v", jr.key),
				"error", err)
			m.rollbackAll(ctx, tx, resources[i+1:])
			m.fireHooks(ctx, tx, tx.finish(StatusAborted), false)
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	m.logger.Debug("transaction committed successfully", "transaction_id", tx.id)
	m.fireHooks(ctx, tx, tx.finish(StatusCommitted), true)
	return nil
}

// Abort rolls back the open transaction. Aborting when nothing is open is a
// no-op.
func (m *Manager) Abort(ctx context.Context) error {
	tx := m.detach()
	if tx == nil {
		return nil
	}

	err := m.rollbackAll(ctx, tx, tx.joinedResources())
	m.logger.Debug("transaction aborted", "transaction_id", tx.id)
	m.fireHooks(ctx, tx, tx.finish(StatusAborted), false)
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (m *Manager) rollbackAll(ctx context.Context, tx *Transaction, resources []joinedResource) error {
	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		jr := resources[i]
		if err := jr.resource.Rollback(ctx); err != nil {
			m.logger.Error("failed to roll back transaction resource",
				"transaction_id", tx.id,
				"resource", fmt.Sprintf("%v", jr.key),
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) fireHooks(ctx context.Context, tx *Transaction, hooks []AfterCommitHook, committed bool) {
	for i, hook := range hooks {
		m.callHook(ctx, tx, i, hook, committed)
	}
}

// callHook runs one hook. A failing hook cannot undo the outcome, so errors
// and panics are logged and the remaining hooks still run.
func (m *Manager) callHook(ctx context.Context, tx *Transaction, index int, hook AfterCommitHook, committed bool) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("after-commit hook panicked",
				"transaction_id", tx.id,
				"hook_index", index,
				"committed", committed,
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()

	if err := hook(ctx, committed); err != nil {
		m.logger.Error("after-commit hook failed",
			"transaction_id", tx.id,
			"hook_index", index,
			"committed", committed,
			"error", err)
	}
}

// Run executes fn inside a new transaction, retrying retryable failures
// until the configured attempt count is used up. When the final attempt
// fails with a retryable error, Run returns an *ExhaustedError. Any other
// error aborts the transaction and is returned without retrying.
func (m *Manager) Run(ctx context.Context, fn TxFn) error {
	attempt := 0
	err := retry.Do(ctx, m.newBackoff(), func(ctx context.Context) error {
		attempt++
		err := m.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if m.IsRetryable(err) {
			m.logger.Debug("transaction attempt hit a conflict",
				"attempt", attempt,
				"max_attempts", m.attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	if err == nil {
		return nil
	}

	// retry.Do only hands back a retryable error once the backoff stopped.
	if m.IsRetryable(err) {
		m.logger.Warn("transaction retries exhausted",
			"attempts", attempt,
			"error", err)
		return &ExhaustedError{Attempts: attempt, Err: err}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("transaction retry loop stopped after %d attempt(s): %w", attempt, err)
	}
	return err
}

func (m *Manager) newBackoff() retry.Backoff {
	var b retry.Backoff
	if m.backoffBase <= 0 {
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	} else {
		b = retry.NewExponential(m.backoffBase)
		if m.backoffMax > 0 {
			b = retry.WithCappedDuration(m.backoffMax, b)
		}
	}
	return retry.WithMaxRetries(uint64(m.attempts-1), b)
}

// attempt runs fn once inside a fresh transaction.
func (m *Manager) attempt(ctx context.Context, fn TxFn) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if abortErr := m.Abort(ctx); abortErr != nil {
				m.logger.Error("failed to abort transaction after panic",
					"transaction_id", tx.id,
					"error", abortErr,
					"panic", p)
			} else {
				m.logger.Error("aborted transaction after panic",
					"transaction_id", tx.id,
					"panic", p)
			}
			// ALLOW-PANIC: Propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if abortErr := m.Abort(ctx); abortErr != nil {
			return fmt.Errorf("error aborting transaction: %v (original error: %w)", abortErr, err)
		}
		return err
	}

	return m.Commit(ctx)
}
