package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/txtask/internal/events"
	"github.com/phrazzld/txtask/internal/platform/logger"
	"github.com/phrazzld/txtask/internal/txn"
)

// ExecutorConfig holds the collaborators an Executor needs
type ExecutorConfig struct {
	// Bindings are opened for every execution context, in order
	Bindings []Binding

	// Emitter receives a TaskFinished event for every execution
	Emitter events.EventEmitter

	// Retryable classifies conflict errors. Defaults to txn.IsConflict.
	Retryable txn.RetryableFunc

	// Backoff is the initial delay between attempts; zero retries at once
	Backoff time.Duration

	// BackoffMax caps the delay between attempts
	BackoffMax time.Duration

	Logger *slog.Logger
}

// Executor runs jobs inside their own retryable transaction.
type Executor struct {
	cfg    ExecutorConfig
	logger *slog.Logger
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg ExecutorConfig) *Executor {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Executor{
		cfg:    cfg,
		logger: l.With("component", "task_executor"),
	}
}

// Execute runs job with the handler of def.
//
// Each execution gets a fresh transaction manager and ExecutionContext. The
// handler runs inside the manager's retry loop for def.Retry.MaxAttempts
// attempts, or exactly one attempt when the job is eager. A handler panic is
// turned into a *PanicError and is not retried. Failures are logged here and
// returned to the caller. The context is torn down exactly once, whatever the
// outcome.
func (e *Executor) Execute(ctx context.Context, def Definition, job Job) (err error) {
	log := e.logger.With(
		"task", def.Name,
		"job_id", job.ID,
		"eager", job.Eager,
	)

	tm := txn.NewManager(e.managerOptions(def, job, log)...)

	ec, err := newExecutionContext(ctx, def, job, tm, e.cfg.Bindings, e.cfg.Emitter, log)
	if err != nil {
		log.Error("failed to create execution context", "error", err)
		return fmt.Errorf("failed to create execution context for task %q: %w", def.Name, err)
	}

	status := events.StatusFailure
	teardownCtx := context.WithoutCancel(ctx)
	defer func() {
		ec.teardown(teardownCtx, status, err)
	}()

	handlerCtx := logger.WithLogger(ctx, log)
	err = tm.Run(handlerCtx, func(ctx context.Context, tx *txn.Transaction) error {
		attempt := ec.startAttempt()
		log.Debug("task attempt started",
			"attempt", attempt,
			"max_attempts", tm.Attempts(),
			"transaction_id", tx.ID())
		return e.invoke(ctx, def, ec, job.Args.Clone())
	})
	if err != nil {
		e.logFailure(log, ec, err)
		return err
	}

	status = events.StatusSuccess
	log.Debug("task completed successfully", "attempts", ec.Attempts())
	return nil
}

func (e *Executor) managerOptions(def Definition, job Job, log *slog.Logger) []txn.Option {
	attempts := def.Retry.MaxAttempts
	if job.Eager {
		attempts = 1
	}

	opts := []txn.Option{
		txn.WithAttempts(attempts),
		txn.WithLogger(log),
	}
	if e.cfg.Retryable != nil {
		opts = append(opts, txn.WithRetryable(e.cfg.Retryable))
	}
	if !job.Eager && e.cfg.Backoff > 0 {
		opts = append(opts, txn.WithBackoff(e.cfg.Backoff, e.cfg.BackoffMax))
	}
	return opts
}

// invoke calls the handler, converting a panic into a *PanicError.
func (e *Executor) invoke(ctx context.Context, def Definition, ec *ExecutionContext, args Args) (err error) {
	defer func() {
		if p := recover(); p != nil {
			perr := &PanicError{Value: p, Stack: debug.Stack()}
			ec.logger.Error("task handler panicked",
				"attempt", ec.Attempts(),
				"panic", p,
				"stack", string(perr.Stack))
			err = perr
		}
	}()
	return def.Handler(ctx, ec, args)
}

func (e *Executor) logFailure(log *slog.Logger, ec *ExecutionContext, err error) {
	attrs := []any{
		"attempts", ec.Attempts(),
		"error", err,
		"error_type", fmt.Sprintf("%T", err),
	}

	switch {
	case errors.Is(err, txn.ErrRetriesExhausted):
		log.Error("task failed, transaction retries exhausted", attrs...)
	case errors.Is(err, ErrPanic):
		log.Error("task failed with panic", attrs...)
	default:
		log.Error("task failed", attrs...)
	}
}
