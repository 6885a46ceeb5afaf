package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/events"
	"github.com/phrazzld/txtask/internal/txn"
)

// BoundResource is a resource scoped to one execution context, such as a
// database session. Release is called once during teardown.
type BoundResource interface {
	Release(ctx context.Context) error
}

// Binding describes how to acquire a BoundResource for a new execution
// context. Bindings are opened in order and released in reverse order.
type Binding struct {
	Name string
	Open func(ctx context.Context, ec *ExecutionContext) (BoundResource, error)
}

// FinishedCallback runs once when an execution context is torn down.
type FinishedCallback func(ctx context.Context, ec *ExecutionContext)

type boundResource struct {
	name     string
	resource BoundResource
}

// ExecutionContext is the per-execution handle a task handler runs inside.
// It owns the transaction manager and the resources bound for the execution.
// It is created fresh for every job and never shared between executions.
type ExecutionContext struct {
	def     Definition
	job     Job
	tm      *txn.Manager
	logger  *slog.Logger
	emitter events.EventEmitter

	mu        sync.Mutex
	resources []boundResource
	callbacks []FinishedCallback
	attempts  int
	status    events.Status
	closed    bool
}

// newExecutionContext opens every binding in order. If one fails, the
// resources acquired so far are released in reverse order before the error
// is returned.
func newExecutionContext(
	ctx context.Context,
	def Definition,
	job Job,
	tm *txn.Manager,
	bindings []Binding,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (*ExecutionContext, error) {
	ec := &ExecutionContext{
		def:     def,
		job:     job,
		tm:      tm,
		logger:  logger,
		emitter: emitter,
	}

	for _, b := range bindings {
		if b.Open == nil {
			ec.releaseResources(ctx)
			return nil, &ConfigError{Task: def.Name, Param: "binding." + b.Name, Reason: "binding has no Open function"}
		}
		res, err := b.Open(ctx, ec)
		if err != nil {
			ec.releaseResources(ctx)
			return nil, fmt.Errorf("failed to open binding %q: %w", b.Name, err)
		}
		ec.mu.Lock()
		ec.resources = append(ec.resources, boundResource{name: b.Name, resource: res})
		ec.mu.Unlock()
	}

	return ec, nil
}

// TM returns the transaction manager owned by this execution
func (ec *ExecutionContext) TM() *txn.Manager {
	return ec.tm
}

// Job returns the job being executed
func (ec *ExecutionContext) Job() Job {
	return ec.job
}

// JobID returns the identifier of the job being executed
func (ec *ExecutionContext) JobID() uuid.UUID {
	return ec.job.ID
}

// Definition returns the definition of the task being executed
func (ec *ExecutionContext) Definition() Definition {
	return ec.def
}

// IsEager reports whether the job runs synchronously in its submitter
func (ec *ExecutionContext) IsEager() bool {
	return ec.job.Eager
}

// Logger returns a logger annotated with the task and job
func (ec *ExecutionContext) Logger() *slog.Logger {
	return ec.logger
}

// Attempts returns how many transaction attempts have started so far
func (ec *ExecutionContext) Attempts() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.attempts
}

// Status returns the final status, or "" while the execution is running
func (ec *ExecutionContext) Status() events.Status {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.status
}

// Resource returns the resource bound under name.
func (ec *ExecutionContext) Resource(name string) (BoundResource, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	for _, br := range ec.resources {
		if br.name == name {
			return br.resource, true
		}
	}
	return nil, false
}

// AddFinishedCallback registers fn to run during teardown. Callbacks run in
// registration order, each exactly once.
func (ec *ExecutionContext) AddFinishedCallback(fn FinishedCallback) error {
	if fn == nil {
		return errors.New("finished callback must not be nil")
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.closed {
		return ErrContextClosed
	}
	ec.callbacks = append(ec.callbacks, fn)
	return nil
}

func (ec *ExecutionContext) startAttempt() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.attempts++
	return ec.attempts
}

// teardown closes the context. Only the first call has any effect.
// On failure it aborts a transaction left open, then emits TaskFinished,
// runs finished callbacks and releases bound resources.
func (ec *ExecutionContext) teardown(ctx context.Context, status events.Status, cause error) {
	ec.mu.Lock()
	if ec.closed {
		ec.mu.Unlock()
		return
	}
	ec.closed = true
	ec.status = status
	callbacks := ec.callbacks
	ec.callbacks = nil
	ec.mu.Unlock()

	if status == events.StatusFailure {
		if tx, err := ec.tm.Get(); err == nil {
			ec.logger.Debug("aborting transaction left open by failed task", "transaction_id", tx.ID())
			if err := ec.tm.Abort(ctx); err != nil {
				ec.logger.Error("failed to abort transaction during teardown",
					"transaction_id", tx.ID(),
					"error", err)
			}
		}
	}

	if ec.emitter != nil {
		event := events.NewTaskFinished(ec, ec.def.Name, status, cause)
		if err := ec.emitter.EmitEvent(ctx, event); err != nil {
			ec.logger.Error("failed to emit task finished event",
				"event_id", event.ID,
				"error", err)
		}
	}

	for i, cb := range callbacks {
		ec.runCallback(ctx, i, cb)
	}

	ec.releaseResources(ctx)
	ec.logger.Debug("execution context torn down", "status", status)
}

func (ec *ExecutionContext) runCallback(ctx context.Context, index int, cb FinishedCallback) {
	defer func() {
		if p := recover(); p != nil {
			ec.logger.Error("finished callback panicked",
				"callback_index", index,
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()
	cb(ctx, ec)
}

func (ec *ExecutionContext) releaseResources(ctx context.Context) {
	ec.mu.Lock()
	resources := ec.resources
	ec.resources = nil
	ec.mu.Unlock()

	for i := len(resources) - 1; i >= 0; i-- {
		br := resources[i]
		if err := br.resource.Release(ctx); err != nil {
			ec.logger.Error("failed to release bound resource",
				"resource", br.name,
				"error", err)
		}
	}
}
