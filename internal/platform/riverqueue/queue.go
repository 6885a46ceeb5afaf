package riverqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

// Config holds River client settings
type Config struct {
	// Queues maps queue names to their worker counts. Leaving it empty makes
	// an insert-only client that never works jobs.
	Queues map[string]int

	// MaxAttempts is River's own attempt limit per job. Conflict retries
	// already happen inside each execution, so this is usually 1.
	MaxAttempts int
}

type inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Queue is a task.Queue that inserts jobs into River.
type Queue struct {
	client      *river.Client[pgx.Tx]
	inserter    inserter
	maxAttempts int
	logger      *slog.Logger
}

var _ task.Queue = (*Queue)(nil)

// New creates a River-backed Queue on pool. Worked jobs are resolved with
// resolver and run by executor.
func New(pool *pgxpool.Pool, resolver task.Resolver, executor Executor, cfg Config, logger *slog.Logger) (*Queue, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, NewWorker(resolver, executor, logger)); err != nil {
		return nil, fmt.Errorf("failed to register river worker: %w", err)
	}

	riverCfg := &river.Config{
		Logger:  logger,
		Workers: workers,
	}
	if cfg.MaxAttempts > 0 {
		riverCfg.MaxAttempts = cfg.MaxAttempts
	}
	if len(cfg.Queues) > 0 {
		riverCfg.Queues = make(map[string]river.QueueConfig, len(cfg.Queues))
		for name, count := range cfg.Queues {
			riverCfg.Queues[name] = river.QueueConfig{MaxWorkers: count}
		}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}

	q := newQueue(client, cfg.MaxAttempts, logger)
	q.client = client
	return q, nil
}

func newQueue(ins inserter, maxAttempts int, logger *slog.Logger) *Queue {
	return &Queue{
		inserter:    ins,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "river_task_queue"),
	}
}

// IsEager implements task.Queue. River jobs always run asynchronously.
func (q *Queue) IsEager() bool {
	return false
}

// SubmitImmediate implements task.Queue by inserting job into River.
func (q *Queue) SubmitImmediate(ctx context.Context, job task.Job, opts task.EnqueueOptions) (task.JobHandle, error) {
	queue := opts.Queue
	if queue == "" {
		queue = job.Queue
	}
	if queue == "" {
		queue = river.QueueDefault
	}

	insertOpts := &river.InsertOpts{Queue: queue}
	if q.maxAttempts > 0 {
		insertOpts.MaxAttempts = q.maxAttempts
	}
	if opts.Delay > 0 {
		insertOpts.ScheduledAt = time.Now().Add(opts.Delay)
	}

	res, err := q.inserter.Insert(ctx, newJobArgs(job), insertOpts)
	if err != nil {
		q.logger.Error("failed to insert river job",
			"task", job.Task,
			"job_id", job.ID,
			"queue", queue,
			"error", err)
		return task.JobHandle{}, fmt.Errorf("failed to insert river job: %w", err)
	}

	handle := task.JobHandle{
		ID:    strconv.FormatInt(res.Job.ID, 10),
		JobID: job.ID,
		Task:  job.Task,
		Queue: queue,
	}
	q.logger.Debug("river job inserted",
		"task", job.Task,
		"job_id", job.ID,
		"river_job_id", handle.ID,
		"queue", queue)
	return handle, nil
}

// Start begins working jobs. It is an error to start an insert-only queue.
func (q *Queue) Start(ctx context.Context) error {
	if q.client == nil {
		return fmt.Errorf("river queue has no client")
	}
	return q.client.Start(ctx)
}

// Stop waits for running jobs to finish or ctx to be done.
func (q *Queue) Stop(ctx context.Context) error {
	if q.client == nil {
		return nil
	}
	return q.client.Stop(ctx)
}
