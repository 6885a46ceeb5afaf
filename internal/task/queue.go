package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is a submission that has been handed to a Queue.
type Job struct {
	// ID identifies the job across queue, executor and events
	ID uuid.UUID `json:"id"`

	// Task is the name of the definition to run
	Task string `json:"task"`

	// Args are the arguments captured at submission time
	Args Args `json:"args"`

	// Eager is true when the job runs synchronously in the submitter
	Eager bool `json:"eager"`

	// Queue is the name of the queue the job was sent to
	Queue string `json:"queue"`

	// EnqueuedAt is when the job was handed to the queue
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobHandle identifies a job accepted by a queue.
type JobHandle struct {
	// ID is the queue's own identifier for the job
	ID string

	// JobID is the identifier carried by the job itself
	JobID uuid.UUID

	Task  string
	Queue string
}

// EnqueueOptions are per-submission options passed through to the queue.
type EnqueueOptions struct {
	// Queue names the target queue
	Queue string

	// Delay postpones availability of the job
	Delay time.Duration
}

// Queue accepts ready-to-run jobs and delivers them to workers.
type Queue interface {
	// SubmitImmediate hands job to the queue without waiting for any
	// transaction. In eager mode the job has already run when it returns,
	// and its error is returned.
	SubmitImmediate(ctx context.Context, job Job, opts EnqueueOptions) (JobHandle, error)

	// IsEager reports whether submitted jobs run synchronously.
	IsEager() bool
}

// Resolver looks up task definitions by name. *Registry implements it.
type Resolver interface {
	Lookup(name string) (Definition, error)
}
