package task

import (
	"context"
	"fmt"
)

// DispatchMode controls how a submission reaches the queue.
type DispatchMode string

// Possible dispatch modes
const (
	// ModeCommitDeferred queues the job only after the caller's transaction commits
	ModeCommitDeferred DispatchMode = "commit_deferred"

	// ModeImmediate queues the job as soon as it is submitted
	ModeImmediate DispatchMode = "immediate"
)

// DefaultQueue is the queue name used when neither the definition nor the
// submission names one.
const DefaultQueue = "default"

// RetryPolicy bounds how many transaction attempts a task execution makes.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
}

// Handler is the body of a task. It runs inside the transaction owned by ec
// and is called once per attempt.
type Handler func(ctx context.Context, ec *ExecutionContext, args Args) error

// Definition is the immutable descriptor of a registered task.
// It is passed by value; changing a copy never affects the registry.
type Definition struct {
	Name    string
	Handler Handler
	Mode    DispatchMode
	Retry   RetryPolicy
	Queue   string
}

// Option configures a Definition at registration time.
type Option func(*Definition)

// WithMode sets the dispatch mode. The default is ModeCommitDeferred.
func WithMode(mode DispatchMode) Option {
	return func(d *Definition) {
		d.Mode = mode
	}
}

// WithMaxAttempts sets the retry policy's attempt count.
func WithMaxAttempts(n int) Option {
	return func(d *Definition) {
		d.Retry.MaxAttempts = n
	}
}

// WithQueue sets the queue jobs for this task are sent to by default.
func WithQueue(name string) Option {
	return func(d *Definition) {
		d.Queue = name
	}
}

func newDefinition(name string, handler Handler, opts ...Option) (Definition, error) {
	def := Definition{
		Name:    name,
		Handler: handler,
		Mode:    ModeCommitDeferred,
		Retry:   RetryPolicy{MaxAttempts: 1},
		Queue:   DefaultQueue,
	}
	for _, opt := range opts {
		opt(&def)
	}
	if err := def.validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidDefinition)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: task %q has no handler", ErrInvalidDefinition, d.Name)
	}
	switch d.Mode {
	case ModeCommitDeferred, ModeImmediate:
	default:
		return fmt.Errorf("%w: task %q has unknown dispatch mode %q", ErrInvalidDefinition, d.Name, d.Mode)
	}
	if d.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: task %q max attempts must be at least 1, got %d",
			ErrInvalidDefinition, d.Name, d.Retry.MaxAttempts)
	}
	if d.Queue == "" {
		return fmt.Errorf("%w: task %q queue name must not be empty", ErrInvalidDefinition, d.Name)
	}
	return nil
}
