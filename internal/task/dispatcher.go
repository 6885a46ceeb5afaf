package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/txn"
)

type submitOptions struct {
	immediate bool
	queue     string
	delay     time.Duration
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithImmediate marks a call site that has no enclosing transaction, such as
// a scheduler or another task. The submission goes straight to the queue.
func WithImmediate() SubmitOption {
	return func(o *submitOptions) {
		o.immediate = true
	}
}

// WithQueueName overrides the definition's queue for this submission.
func WithQueueName(name string) SubmitOption {
	return func(o *submitOptions) {
		o.queue = name
	}
}

// WithDelay asks the queue to hold the job for d before running it.
func WithDelay(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		o.delay = d
	}
}

func applySubmitOptions(opts []SubmitOption) submitOptions {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o submitOptions) enqueueOptions(def Definition) EnqueueOptions {
	queue := o.queue
	if queue == "" {
		queue = def.Queue
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return EnqueueOptions{Queue: queue, Delay: o.delay}
}

// Dispatcher turns submissions into queued jobs, deferring them to the
// commit of the caller's transaction when required.
type Dispatcher struct {
	queue  Queue
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher that sends jobs to queue.
func NewDispatcher(queue Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  queue,
		logger: logger.With("component", "task_dispatcher"),
	}
}

// Submit schedules def to run with args.
//
// Immediate submissions, made with WithImmediate or for a ModeImmediate
// definition, go straight to the queue. Otherwise tm must be given and hold
// an open transaction; Submit then registers an after-commit hook that queues
// the job only if that transaction commits. Submit never returns a job
// handle, since a deferred job may never exist.
func (d *Dispatcher) Submit(
	ctx context.Context,
	def Definition,
	args Args,
	tm *txn.Manager,
	opts ...SubmitOption,
) error {
	o := applySubmitOptions(opts)
	if o.immediate || def.Mode == ModeImmediate {
		_, err := d.submit(ctx, def, args.Clone(), o.enqueueOptions(def))
		return err
	}

	if tm == nil {
		return &ConfigError{
			Task:   def.Name,
			Param:  "tm",
			Reason: "commit-deferred submissions need the caller's transaction manager",
		}
	}

	tx, err := tm.Get()
	if err != nil {
		return fmt.Errorf("failed to defer task %q: %w", def.Name, err)
	}

	captured := args.Clone()
	enqueue := o.enqueueOptions(def)
	err = tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		if !committed {
			d.logger.Debug("transaction aborted, discarding deferred task",
				"task", def.Name,
				"transaction_id", tx.ID())
			return nil
		}
		handle, err := d.submit(ctx, def, captured, enqueue)
		if err != nil {
			return err
		}
		d.logger.Debug("deferred task submitted after commit",
			"task", def.Name,
			"transaction_id", tx.ID(),
			"queue_job_id", handle.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to defer task %q: %w", def.Name, err)
	}

	d.logger.Debug("task submission deferred until commit",
		"task", def.Name,
		"transaction_id", tx.ID())
	return nil
}

// SubmitImmediate hands def to the queue right away and returns the handle
// of the resulting job.
func (d *Dispatcher) SubmitImmediate(
	ctx context.Context,
	def Definition,
	args Args,
	opts ...SubmitOption,
) (JobHandle, error) {
	o := applySubmitOptions(opts)
	return d.submit(ctx, def, args.Clone(), o.enqueueOptions(def))
}

func (d *Dispatcher) submit(ctx context.Context, def Definition, args Args, opts EnqueueOptions) (JobHandle, error) {
	job := Job{
		ID:         uuid.New(),
		Task:       def.Name,
		Args:       args,
		Eager:      d.queue.IsEager(),
		Queue:      opts.Queue,
		EnqueuedAt: time.Now().UTC(),
	}

	handle, err := d.queue.SubmitImmediate(ctx, job, opts)
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to submit task %q: %w", def.Name, err)
	}
	return handle, nil
}
