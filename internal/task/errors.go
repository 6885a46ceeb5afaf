package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task package
var (
	// ErrConfiguration is matched by every *ConfigError
	ErrConfiguration = errors.New("task configuration error")

	// ErrInvalidDefinition is returned when a task cannot be registered as given
	ErrInvalidDefinition = errors.New("invalid task definition")

	// ErrDuplicateTask is returned when a task name is registered twice
	ErrDuplicateTask = errors.New("task already registered")

	// ErrUnknownTask is returned when no task is registered under a name
	ErrUnknownTask = errors.New("unknown task")

	// ErrUnknownQueue is returned when a submission names a queue that no
	// registered task is sent to
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrRegistryFrozen is returned when registering after Freeze
	ErrRegistryFrozen = errors.New("task registry is frozen")

	// ErrRegistryNotFrozen is returned when dispatching before Freeze
	ErrRegistryNotFrozen = errors.New("task registry is not frozen")

	// ErrContextClosed is returned when using an execution context after teardown
	ErrContextClosed = errors.New("execution context is closed")

	// ErrPanic is matched by every *PanicError
	ErrPanic = errors.New("task handler panicked")

	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// ConfigError reports a call made without a required parameter.
type ConfigError struct {
	Task   string
	Param  string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("task %q: missing required parameter %q", e.Task, e.Param)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is makes errors.Is(err, ErrConfiguration) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// PanicError wraps a value recovered from a panicking handler.
// It does not unwrap to the panic value, so a panic is never retried.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("task handler panicked: %v", e.Value)
}

// Is makes errors.Is(err, ErrPanic) match any PanicError.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}
