package riverqueue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/txtask/internal/task"
	"github.com/riverqueue/river"
)

// Executor runs a resolved job. *task.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, def task.Definition, job task.Job) error
}

// Worker works txtask jobs delivered by River.
type Worker struct {
	river.WorkerDefaults[JobArgs]

	resolver task.Resolver
	executor Executor
	logger   *slog.Logger
}

// NewWorker creates a Worker that resolves tasks with resolver and runs them
// with executor.
func NewWorker(resolver task.Resolver, executor Executor, logger *slog.Logger) *Worker {
	return &Worker{
		resolver: resolver,
		executor: executor,
		logger:   logger.With("component", "river_worker"),
	}
}

// Work implements river.Worker. Jobs naming an unknown task or carrying a
// malformed id are cancelled rather than retried. Execution errors were
// already logged by the executor and are returned so River records them.
func (w *Worker) Work(ctx context.Context, job *river.Job[JobArgs]) error {
	log := w.logger.With(
		"river_job_id", job.ID,
		"task", job.Args.Task,
		"river_attempt", job.Attempt)

	def, err := w.resolver.Lookup(job.Args.Task)
	if err != nil {
		if errors.Is(err, task.ErrUnknownTask) {
			log.Error("cancelling job for unknown task", "error", err)
			return river.JobCancel(err)
		}
		return err
	}

	tj, err := job.Args.toJob(job.Queue)
	if err != nil {
		log.Error("cancelling malformed job", "error", err)
		return river.JobCancel(err)
	}

	return w.executor.Execute(ctx, def, tj)
}
