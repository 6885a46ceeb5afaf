package task

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// JobReader provides read-only access to the job channel, allowing workers
// to consume jobs without the ability to enqueue.
type JobReader interface {
	// Jobs returns a read-only channel for consuming jobs
	Jobs() <-chan Job
}

// LocalQueueConfig holds configuration for the in-process queue
type LocalQueueConfig struct {
	// Eager runs every job synchronously inside SubmitImmediate
	Eager bool

	// Size is the buffer size of the job channel in async mode
	Size int

	// WorkerCount is the number of workers started by Start
	WorkerCount int
}

// DefaultLocalQueueConfig returns a LocalQueueConfig with reasonable defaults
func DefaultLocalQueueConfig() LocalQueueConfig {
	return LocalQueueConfig{
		Size:        100,
		WorkerCount: 2,
	}
}

// LocalQueue is an in-process Queue. In eager mode it runs jobs
// synchronously in the submitter and returns their error. Otherwise it
// buffers jobs on a channel consumed by a WorkerPool.
type LocalQueue struct {
	jobs     chan Job
	eager    bool
	resolver Resolver
	executor *Executor
	pool     *WorkerPool
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	timers map[*time.Timer]struct{}
	seq    atomic.Uint64
}

// NewLocalQueue creates a LocalQueue that resolves task names with resolver
// and runs jobs with executor.
func NewLocalQueue(resolver Resolver, executor *Executor, config LocalQueueConfig, logger *slog.Logger) *LocalQueue {
	if config.Size <= 0 {
		config.Size = DefaultLocalQueueConfig().Size
	}
	logger = logger.With("component", "local_task_queue")

	q := &LocalQueue{
		jobs:     make(chan Job, config.Size),
		eager:    config.Eager,
		resolver: resolver,
		executor: executor,
		logger:   logger,
		timers:   make(map[*time.Timer]struct{}),
	}
	q.pool = NewWorkerPool(q, q.Process, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	return q
}

// IsEager reports whether jobs run synchronously
func (q *LocalQueue) IsEager() bool {
	return q.eager
}

// Jobs returns a read-only channel for consuming jobs
func (q *LocalQueue) Jobs() <-chan Job {
	return q.jobs
}

// SubmitImmediate adds job to the queue, or runs it right away in eager
// mode. Eager mode ignores opts.Delay.
func (q *LocalQueue) SubmitImmediate(ctx context.Context, job Job, opts EnqueueOptions) (JobHandle, error) {
	handle := JobHandle{
		ID:    strconv.FormatUint(q.seq.Add(1), 10),
		JobID: job.ID,
		Task:  job.Task,
		Queue: opts.Queue,
	}

	if q.eager {
		job.Eager = true
		q.logger.Debug("running job eagerly", "job_id", job.ID, "task", job.Task)
		return handle, q.Process(ctx, job)
	}

	if opts.Delay > 0 {
		return handle, q.schedule(job, opts.Delay)
	}
	return handle, q.enqueue(job)
}

// enqueue adds a job to the channel without blocking
func (q *LocalQueue) enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"job_id", job.ID,
			"task", job.Task,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

func (q *LocalQueue) schedule(job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		if err := q.enqueue(job); err != nil {
			q.logger.Error("failed to enqueue delayed job",
				"job_id", job.ID,
				"task", job.Task,
				"error", err)
		}
	})
	q.timers[timer] = struct{}{}

	q.logger.Debug("job scheduled", "job_id", job.ID, "task", job.Task, "delay", delay)
	return nil
}

// Process resolves the job's task and executes it.
func (q *LocalQueue) Process(ctx context.Context, job Job) error {
	def, err := q.resolver.Lookup(job.Task)
	if err != nil {
		q.logger.Error("cannot run job", "job_id", job.ID, "task", job.Task, "error", err)
		return err
	}
	return q.executor.Execute(ctx, def, job)
}

// Start launches the worker pool. It is a no-op in eager mode.
func (q *LocalQueue) Start() {
	if q.eager {
		return
	}
	q.pool.Start()
}

// Close stops accepting jobs and drops delayed jobs that have not fired yet.
// Jobs already on the channel are still delivered to workers.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for timer := range q.timers {
		timer.Stop()
	}
	if n := len(q.timers); n > 0 {
		q.logger.Warn("dropping delayed jobs on close", "count", n)
	}
	q.timers = nil

	close(q.jobs)
	q.logger.Info("task queue closed")
}

// Stop closes the queue and waits for workers to drain buffered jobs. If ctx
// is done first, workers are cancelled and ctx's error is returned.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.Close()
	if q.eager {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.pool.Stop()
		return ctx.Err()
	}
}

// SetErrorHandler sets the handler called when an async job fails
func (q *LocalQueue) SetErrorHandler(handler func(job Job, err error)) {
	q.pool.SetErrorHandler(handler)
}
