package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/txtask/internal/config"
	"github.com/phrazzld/txtask/internal/events"
	"github.com/phrazzld/txtask/internal/platform/postgres"
	"github.com/phrazzld/txtask/internal/platform/riverqueue"
	"github.com/phrazzld/txtask/internal/store"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/phrazzld/txtask/internal/txn"
)

// appMode says whether the process works jobs or only submits them
type appMode int

const (
	modeSubmit appMode = iota
	modeWork
)

// queueRunner is implemented by queues that own background workers
type queueRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// localRunner adapts *task.LocalQueue to queueRunner
type localRunner struct {
	q *task.LocalQueue
}

func (r localRunner) Start(ctx context.Context) error {
	r.q.Start()
	return nil
}

func (r localRunner) Stop(ctx context.Context) error {
	return r.q.Stop(ctx)
}

// application holds the wired components of one txtask process
type application struct {
	config *config.Config
	logger *slog.Logger

	pool *pgxpool.Pool
	db   *sql.DB

	registry *task.Registry
	emitter  *events.InMemoryEventEmitter
	executor *task.Executor
	runs     task.RunStore
	queue    task.Queue
	runner   queueRunner
}

// newApplication wires configuration, database, executor, registry and
// queue. The registry is frozen onto the queue before it returns.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode appMode) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: task.NewRegistry(logger),
		emitter:  events.NewInMemoryEventEmitter(logger),
	}

	var bindings []task.Binding
	if cfg.Database.URL != "" {
		pool, err := postgres.OpenPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		app.db = postgres.OpenDB(pool)
		bindings = append(bindings, postgres.SessionBinding(pool, pgx.TxOptions{}))
	}

	if cfg.Task.RecordRuns {
		runs := postgres.NewRunStore(app.db)
		app.runs = runs
		app.emitter.RegisterHandler(task.NewRunRecorder(runs, logger))
	}

	app.executor = task.NewExecutor(task.ExecutorConfig{
		Bindings:   bindings,
		Emitter:    app.emitter,
		Retryable:  postgres.Retryable,
		Backoff:    cfg.Task.RetryBackoff,
		BackoffMax: cfg.Task.RetryBackoffMax,
		Logger:     logger,
	})

	if err := registerTasks(app.registry, cfg.Task.MaxAttempts); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to register tasks: %w", err)
	}

	if err := app.setupQueue(mode); err != nil {
		app.cleanup()
		return nil, err
	}

	if err := app.registry.Freeze(app.queue); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to freeze task registry: %w", err)
	}

	logger.Info("application initialized",
		"backend", cfg.Task.Backend,
		"eager", app.queue.IsEager(),
		"tasks", app.registry.Names())
	return app, nil
}

// riverQueues gives every queue a registered task is sent to its own set of
// workers, so no submission lands in a queue nothing consumes.
func riverQueues(names []string, workers int) map[string]int {
	queues := make(map[string]int, len(names))
	for _, name := range names {
		queues[name] = workers
	}
	return queues
}

func (app *application) setupQueue(mode appMode) error {
	cfg := app.config.Task

	switch cfg.Backend {
	case config.BackendRiver:
		riverCfg := riverqueue.Config{MaxAttempts: cfg.RiverMaxAttempts}
		if mode == modeWork {
			riverCfg.Queues = riverQueues(app.registry.Queues(), cfg.WorkerCount)
		}
		q, err := riverqueue.New(app.pool, app.registry, app.executor, riverCfg, app.logger)
		if err != nil {
			return err
		}
		app.queue = q
		if mode == modeWork {
			app.runner = q
		}

	default:
		q := task.NewLocalQueue(app.registry, app.executor, task.LocalQueueConfig{
			Eager:       cfg.Eager,
			Size:        cfg.QueueSize,
			WorkerCount: cfg.WorkerCount,
		}, app.logger)
		app.queue = q
		// Async local jobs are worked in the submitting process
		if !cfg.Eager {
			app.runner = localRunner{q: q}
		}
	}
	return nil
}

// newManager creates a request transaction manager. HTTP requests are not
// retried, so it makes a single attempt.
func (app *application) newManager() *txn.Manager {
	return txn.NewManager(
		txn.WithRetryable(postgres.Retryable),
		txn.WithLogger(app.logger),
	)
}

// submitDeferred submits t from a transaction owned by the caller. With a
// database configured that transaction also holds a database transaction, so
// the job is queued only once the database commit is durable.
func (app *application) submitDeferred(ctx context.Context, t *task.Task, args task.Args) error {
	tm := app.newManager()
	if app.db != nil {
		return store.RunInTransaction(ctx, tm, app.db, func(ctx context.Context, _ *sql.Tx) error {
			return t.Submit(ctx, args, tm)
		})
	}
	return tm.Run(ctx, func(ctx context.Context, _ *txn.Transaction) error {
		return t.Submit(ctx, args, tm)
	})
}

// start launches the queue's workers, if it has any
func (app *application) start(ctx context.Context) error {
	if app.runner == nil {
		return nil
	}
	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task queue: %w", err)
	}
	return nil
}

// stop drains the queue workers within ctx and releases resources
func (app *application) stop(ctx context.Context) error {
	var err error
	if app.runner != nil {
		if stopErr := app.runner.Stop(ctx); stopErr != nil {
			err = fmt.Errorf("failed to stop task queue: %w", stopErr)
		}
	}
	app.cleanup()
	return err
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			app.logger.Error("error closing database handle", "error", err)
		}
		app.db = nil
	}
	if app.pool != nil {
		app.pool.Close()
		app.pool = nil
	}
}
