package task

import (
	"context"
	"log/slog"
	"sync"
)

// JobProcessor runs a single job.
type JobProcessor func(ctx context.Context, job Job) error

// WorkerPool manages a pool of worker goroutines that process jobs
// from a job channel. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// source provides read access to the jobs to be processed
	source JobReader

	// process runs each job
	process JobProcessor

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	logger *slog.Logger

	// errorHandler is called when a job fails
	// If nil, errors are only logged
	errorHandler func(job Job, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(source JobReader, process JobProcessor, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		source:      source,
		process:     process,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// SetErrorHandler allows setting a custom error handler for job failures
func (p *WorkerPool) SetErrorHandler(handler func(job Job, err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels the workers and waits for them to exit. Jobs in flight run
// to completion; jobs still buffered are not processed.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Wait blocks until every worker has exited, which happens once the job
// channel is closed and drained or the pool is stopped.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// worker processes jobs from the channel
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	jobs := p.source.Jobs()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-jobs:
			if !ok {
				p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}
			p.processJob(job, id)
		}
	}
}

// processJob runs a single job. Jobs are not cancelled mid-attempt, so the
// pool's shutdown context is not passed down.
func (p *WorkerPool) processJob(job Job, workerID int) {
	logger := p.logger.With(
		"job_id", job.ID,
		"task", job.Task,
		"worker_id", workerID,
	)

	logger.Debug("processing job")
	if err := p.process(context.Background(), job); err != nil {
		if p.errorHandler != nil {
			p.errorHandler(job, err)
			return
		}
		logger.Warn("job failed", "error", err)
		return
	}
	logger.Debug("job processed")
}
