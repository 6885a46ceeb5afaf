package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the final outcome reported by a TaskFinished event.
type Status string

// Possible task outcomes
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Execution describes the execution context a task ran in.
// It is implemented by *task.ExecutionContext; handlers that need the full
// context can type-assert to it.
type Execution interface {
	// JobID returns the identifier of the job being executed
	JobID() uuid.UUID

	// IsEager reports whether the job ran synchronously in the caller
	IsEager() bool

	// Attempts returns how many transaction attempts were made
	Attempts() int
}

// TaskFinished is emitted exactly once when a task execution ends, after its
// transaction has been committed or aborted.
type TaskFinished struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Task is the name of the task definition that ran
	Task string `json:"task"`

	// Status reports whether the execution succeeded
	Status Status `json:"status"`

	// Err holds the final error for failed executions
	Err error `json:"-"`

	// Context is the execution context the task ran in
	Context Execution `json:"-"`

	// FinishedAt is the timestamp when the execution finished
	FinishedAt time.Time `json:"finished_at"`
}

// NewTaskFinished creates a TaskFinished event for the given execution.
func NewTaskFinished(exec Execution, task string, status Status, err error) *TaskFinished {
	return &TaskFinished{
		ID:         uuid.New(),
		Task:       task,
		Status:     status,
		Err:        err,
		Context:    exec,
		FinishedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that react to finished tasks.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskFinished) error
}

// EventHandlerFunc adapts an ordinary function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *TaskFinished) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskFinished) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the task executor to publish events without knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskFinished) error
}
