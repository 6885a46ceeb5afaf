package task

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/phrazzld/txtask/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// recordingQueue implements Queue and records every job it receives
type recordingQueue struct {
	mu    sync.Mutex
	jobs  []Job
	opts  []EnqueueOptions
	eager bool
	err   error
}

func (q *recordingQueue) SubmitImmediate(ctx context.Context, job Job, opts EnqueueOptions) (JobHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return JobHandle{}, q.err
	}
	q.jobs = append(q.jobs, job)
	q.opts = append(q.opts, opts)
	return JobHandle{ID: job.ID.String(), JobID: job.ID, Task: job.Task, Queue: opts.Queue}, nil
}

func (q *recordingQueue) IsEager() bool {
	return q.eager
}

func (q *recordingQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// recordingEmitter implements events.EventEmitter and keeps every event
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskFinished
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.TaskFinished) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) Events() []*events.TaskFinished {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*events.TaskFinished, len(e.events))
	copy(out, e.events)
	return out
}

// releaseLog records the order in which bound resources are released
type releaseLog struct {
	mu    sync.Mutex
	names []string
}

func (l *releaseLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *releaseLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

type fakeResource struct {
	name string
	log  *releaseLog
}

func (r *fakeResource) Release(ctx context.Context) error {
	r.log.add(r.name)
	return nil
}

func fakeBinding(name string, log *releaseLog) Binding {
	return Binding{
		Name: name,
		Open: func(ctx context.Context, ec *ExecutionContext) (BoundResource, error) {
			return &fakeResource{name: name, log: log}, nil
		},
	}
}

func noopHandler(ctx context.Context, ec *ExecutionContext, args Args) error {
	return nil
}
