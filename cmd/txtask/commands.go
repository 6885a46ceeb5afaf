package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/txtask/internal/platform/postgres"
	"github.com/phrazzld/txtask/internal/platform/riverqueue"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/spf13/cobra"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (c *cli) shutdown(app *application) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.stop(ctx); err != nil {
		c.logger.Error("shutdown failed", "error", err)
	}
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task submission API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, c.cfg, c.logger, modeSubmit)
			if err != nil {
				return err
			}
			defer c.shutdown(app)

			if err := app.start(ctx); err != nil {
				return err
			}
			return app.serveHTTP(ctx)
		},
	}
}

func newWorkerCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Work queued tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, c.cfg, c.logger, modeWork)
			if err != nil {
				return err
			}
			defer c.shutdown(app)

			if app.runner == nil {
				return fmt.Errorf("backend %q with eager=%t has no workers to run", c.cfg.Task.Backend, c.cfg.Task.Eager)
			}
			if err := app.start(ctx); err != nil {
				return err
			}

			c.logger.Info("worker started", "workers", c.cfg.Task.WorkerCount)
			<-ctx.Done()
			c.logger.Info("worker shutting down")
			return nil
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	var river bool

	cmd := &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Apply database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required to run migrations")
			}
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = postgres.MigrateCommand(args[0])
			}

			ctx := cmd.Context()
			pool, err := postgres.OpenPool(ctx, c.cfg.Database.URL, c.logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if river && command == postgres.MigrateUp {
				if err := riverqueue.Migrate(ctx, pool, c.logger); err != nil {
					return err
				}
			}

			db := postgres.OpenDB(pool)
			defer func() { _ = db.Close() }()
			return postgres.Migrate(ctx, db, command, c.logger)
		},
	}
	cmd.Flags().BoolVar(&river, "river", true, "also apply River's queue schema when migrating up")
	return cmd
}

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		kwargsJSON string
		immediate  bool
	)

	cmd := &cobra.Command{
		Use:   "submit <task> [args...]",
		Short: "Submit a task from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApplication(ctx, c.cfg, c.logger, modeSubmit)
			if err != nil {
				return err
			}
			defer c.shutdown(app)

			if err := app.start(ctx); err != nil {
				return err
			}

			t, err := app.registry.Task(args[0])
			if err != nil {
				return err
			}

			positional := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				positional = append(positional, a)
			}
			taskArgs := task.NewArgs(positional...)
			if kwargsJSON != "" {
				if err := json.Unmarshal([]byte(kwargsJSON), &taskArgs.Keyword); err != nil {
					return fmt.Errorf("invalid --kwargs JSON: %w", err)
				}
			}

			if immediate {
				handle, err := t.SubmitImmediate(ctx, taskArgs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "submitted %s job %s\n", handle.Task, handle.JobID)
				return nil
			}

			if err := app.submitDeferred(ctx, t, taskArgs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s after commit\n", t.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", `keyword arguments as a JSON object, e.g. '{"name":"visits"}'`)
	cmd.Flags().BoolVar(&immediate, "immediate", false, "submit without waiting for a transaction")
	return cmd
}

func newTasksCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := task.NewRegistry(c.logger)
			if err := registerTasks(registry, c.cfg.Task.MaxAttempts); err != nil {
				return err
			}
			for _, name := range registry.Names() {
				def, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tmode=%s\tmax_attempts=%d\tqueue=%s\n",
					def.Name, def.Mode, def.Retry.MaxAttempts, def.Queue)
			}
			return nil
		},
	}
}
