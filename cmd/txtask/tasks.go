package main

import (
	"context"
	"fmt"

	"github.com/phrazzld/txtask/internal/platform/postgres"
	"github.com/phrazzld/txtask/internal/task"
)

// Built-in task names
const (
	taskEcho        = "echo"
	taskBumpCounter = "bump_counter"
)

// registerTasks adds the built-in tasks to r. It runs once during startup,
// before the registry is frozen.
func registerTasks(r *task.Registry, maxAttempts int) error {
	echo, err := r.Register(taskEcho, runEcho, task.WithMaxAttempts(1))
	if err != nil {
		return err
	}

	_, err = r.Register(taskBumpCounter, bumpCounter(echo), task.WithMaxAttempts(maxAttempts))
	return err
}

// runEcho logs its arguments.
func runEcho(ctx context.Context, ec *task.ExecutionContext, args task.Args) error {
	ec.Logger().Info("echo",
		"args", args.Positional,
		"kwargs", args.Keyword,
		"attempt", ec.Attempts())
	return nil
}

// bumpCounter increments the counter named by the "name" keyword inside the
// execution's database transaction, then submits an echo that is only
// dispatched once the increment has committed.
func bumpCounter(echo *task.Task) task.Handler {
	return func(ctx context.Context, ec *task.ExecutionContext, args task.Args) error {
		name, _ := args.Kwarg("name")
		counter, ok := name.(string)
		if !ok || counter == "" {
			counter = "default"
		}

		session, err := postgres.SessionFrom(ec)
		if err != nil {
			return err
		}

		var value int64
		err = session.QueryRow(ctx, []any{&value}, `
			INSERT INTO task_counters (name, value, updated_at)
			VALUES ($1, 1, NOW())
			ON CONFLICT (name) DO UPDATE
			SET value = task_counters.value + 1, updated_at = NOW()
			RETURNING value
		`, counter)
		if err != nil {
			return fmt.Errorf("failed to bump counter %q: %w", counter, err)
		}

		return echo.Submit(ctx, task.NewArgs(counter, value), ec.TM())
	}
}
