package riverqueue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/task"
)

// Kind is the River job kind shared by every txtask job
const Kind = "txtask"

// JobArgs is the River payload for one task job.
type JobArgs struct {
	JobID      string         `json:"job_id"`
	Task       string         `json:"task"`
	Args       []any          `json:"args,omitempty"`
	Kwargs     map[string]any `json:"kwargs,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Kind implements river.JobArgs
func (JobArgs) Kind() string { return Kind }

func newJobArgs(job task.Job) JobArgs {
	args := job.Args.Clone()
	return JobArgs{
		JobID:      job.ID.String(),
		Task:       job.Task,
		Args:       args.Positional,
		Kwargs:     args.Keyword,
		EnqueuedAt: job.EnqueuedAt,
	}
}

// toJob rebuilds the task.Job carried by a River job. Jobs delivered by River
// are never eager.
func (a JobArgs) toJob(queue string) (task.Job, error) {
	id, err := uuid.Parse(a.JobID)
	if err != nil {
		return task.Job{}, fmt.Errorf("invalid job id %q: %w", a.JobID, err)
	}
	return task.Job{
		ID:   id,
		Task: a.Task,
		Args: task.Args{
			Positional: a.Args,
			Keyword:    a.Kwargs,
		},
		Eager:      false,
		Queue:      queue,
		EnqueuedAt: a.EnqueuedAt,
	}, nil
}
