package task

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/phrazzld/txtask/internal/txn"
)

// Registry maps task names to definitions. Tasks are registered during an
// initialization pass; Freeze then binds the queue and seals the registry
// before any dispatch happens.
type Registry struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string
	dispatcher *Dispatcher
	base       *slog.Logger
	logger     *slog.Logger
}

// NewRegistry creates an empty, unfrozen Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tasks:  make(map[string]*Task),
		base:   logger,
		logger: logger.With("component", "task_registry"),
	}
}

// Register adds a task and returns its handle.
func (r *Registry) Register(name string, handler Handler, opts ...Option) (*Task, error) {
	def, err := newDefinition(name, handler, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dispatcher != nil {
		return nil, fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, name)
	}
	if _, exists := r.tasks[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}

	t := &Task{def: def, registry: r}
	r.tasks[name] = t
	r.order = append(r.order, name)

	r.logger.Debug("task registered",
		"task", name,
		"mode", def.Mode,
		"max_attempts", def.Retry.MaxAttempts,
		"queue", def.Queue)
	return t, nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level task declarations.
func (r *Registry) MustRegister(name string, handler Handler, opts ...Option) *Task {
	t, err := r.Register(name, handler, opts...)
	if err != nil {
		// ALLOW-PANIC: registration errors are programming errors
		panic(err)
	}
	return t
}

// Freeze binds queue to every registered task and rejects further
// registrations.
func (r *Registry) Freeze(queue Queue) error {
	if queue == nil {
		return &ConfigError{Task: "*", Param: "queue", Reason: "a registry can only be frozen onto a queue"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dispatcher != nil {
		return ErrRegistryFrozen
	}
	r.dispatcher = NewDispatcher(queue, r.base)
	r.logger.Info("task registry frozen", "task_count", len(r.tasks), "eager", queue.IsEager())
	return nil
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatcher != nil
}

// Dispatcher returns the dispatcher bound by Freeze.
func (r *Registry) Dispatcher() (*Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.dispatcher == nil {
		return nil, ErrRegistryNotFrozen
	}
	return r.dispatcher, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	t, err := r.Task(name)
	if err != nil {
		return Definition{}, err
	}
	return t.def, nil
}

// Task returns the handle registered under name.
func (r *Registry) Task(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return t, nil
}

// Names returns registered task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Queues returns the sorted set of queue names the registered tasks are sent
// to. Queue backends that need to know which queues to work read it.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{}, len(r.tasks))
	for _, t := range r.tasks {
		set[t.def.Queue] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// checkQueue rejects a WithQueueName override naming a queue no registered
// task uses, since no worker would consume it.
func (r *Registry) checkQueue(opts []SubmitOption) error {
	name := applySubmitOptions(opts).queue
	if name == "" || slices.Contains(r.Queues(), name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownQueue, name)
}

// Task is the handle returned by Register. Tasks are never called directly;
// they run only when a worker executes a job.
type Task struct {
	def      Definition
	registry *Registry
}

// Name returns the task's registered name
func (t *Task) Name() string {
	return t.def.Name
}

// Definition returns a copy of the task's definition
func (t *Task) Definition() Definition {
	return t.def
}

// Submit schedules the task. See Dispatcher.Submit.
func (t *Task) Submit(ctx context.Context, args Args, tm *txn.Manager, opts ...SubmitOption) error {
	d, err := t.registry.Dispatcher()
	if err != nil {
		return fmt.Errorf("cannot submit task %q: %w", t.def.Name, err)
	}
	if err := t.registry.checkQueue(opts); err != nil {
		return fmt.Errorf("cannot submit task %q: %w", t.def.Name, err)
	}
	return d.Submit(ctx, t.def, args, tm, opts...)
}

// SubmitImmediate queues the task right away. See Dispatcher.SubmitImmediate.
func (t *Task) SubmitImmediate(ctx context.Context, args Args, opts ...SubmitOption) (JobHandle, error) {
	d, err := t.registry.Dispatcher()
	if err != nil {
		return JobHandle{}, fmt.Errorf("cannot submit task %q: %w", t.def.Name, err)
	}
	if err := t.registry.checkQueue(opts); err != nil {
		return JobHandle{}, fmt.Errorf("cannot submit task %q: %w", t.def.Name, err)
	}
	return d.SubmitImmediate(ctx, t.def, args, opts...)
}
