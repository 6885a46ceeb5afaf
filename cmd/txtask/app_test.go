package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/config"
	"github.com/phrazzld/txtask/internal/store"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/phrazzld/txtask/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(eager bool) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 5 * time.Second,
		},
		Task: config.TaskConfig{
			Backend:          config.BackendLocal,
			Eager:            eager,
			MaxAttempts:      3,
			WorkerCount:      1,
			QueueSize:        10,
			RiverMaxAttempts: 1,
		},
	}
}

func TestNewApplication_Eager(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := newApplication(ctx, testConfig(true), testLogger(), modeSubmit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.stop(ctx) })

	assert.True(t, app.registry.Frozen())
	assert.True(t, app.queue.IsEager())
	assert.Nil(t, app.runner)
	assert.Equal(t, []string{taskEcho, taskBumpCounter}, app.registry.Names())

	echo, err := app.registry.Task(taskEcho)
	require.NoError(t, err)
	_, err = echo.SubmitImmediate(ctx, task.NewArgs("hello"))
	require.NoError(t, err)

	// Without a database there is no session to bump the counter with, and
	// eager errors reach the submitter
	bump, err := app.registry.Task(taskBumpCounter)
	require.NoError(t, err)
	_, err = bump.SubmitImmediate(ctx, task.NewArgs().With("name", "visits"))
	assert.ErrorIs(t, err, task.ErrConfiguration)
}

func TestNewApplication_EagerDeferredSubmit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := newApplication(ctx, testConfig(true), testLogger(), modeSubmit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.stop(ctx) })

	echo, err := app.registry.Task(taskEcho)
	require.NoError(t, err)

	var runs []string
	app.emitter.RegisterHandler(task.NewRunRecorder(recordingRuns(&runs), testLogger()))

	tm := app.newManager()
	_, err = tm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, echo.Submit(ctx, task.NewArgs(1), tm))
	assert.Empty(t, runs)

	require.NoError(t, tm.Commit(ctx))
	assert.Equal(t, []string{taskEcho}, runs)
}

func TestApplication_SubmitDeferred(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := newApplication(ctx, testConfig(true), testLogger(), modeSubmit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.stop(ctx) })

	echo, err := app.registry.Task(taskEcho)
	require.NoError(t, err)

	var runs []string
	app.emitter.RegisterHandler(task.NewRunRecorder(recordingRuns(&runs), testLogger()))

	require.NoError(t, app.submitDeferred(ctx, echo, task.NewArgs("x")))
	assert.Equal(t, []string{taskEcho}, runs)

	// A manager with no open transaction has nothing to hook into
	err = echo.Submit(ctx, task.NewArgs("y"), app.newManager())
	assert.ErrorIs(t, err, txn.ErrNoTransaction)
	assert.Equal(t, []string{taskEcho}, runs)
}

func TestRiverQueues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := newApplication(ctx, testConfig(true), testLogger(), modeSubmit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.stop(ctx) })

	assert.Equal(t, map[string]int{task.DefaultQueue: 4}, riverQueues(app.registry.Queues(), 4))
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, riverQueues([]string{"a", "b"}, 2))
}

func TestNewApplication_Async(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := newApplication(ctx, testConfig(false), testLogger(), modeWork)
	require.NoError(t, err)

	assert.False(t, app.queue.IsEager())
	require.NotNil(t, app.runner)
	require.NoError(t, app.start(ctx))

	echo, err := app.registry.Task(taskEcho)
	require.NoError(t, err)
	_, err = echo.SubmitImmediate(ctx, task.NewArgs("queued"))
	require.NoError(t, err)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, app.stop(stopCtx))
}

func TestTasksCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tasks"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "echo\tmode=commit_deferred\tmax_attempts=1")
	assert.Contains(t, out.String(), "bump_counter\tmode=commit_deferred\tmax_attempts=3")
}

func TestSubmitCommand_Eager(t *testing.T) {
	t.Setenv("TXTASK_TASK_EAGER", "true")
	t.Setenv("TXTASK_SERVER_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"submit", taskEcho, "a", "b", "--kwargs", `{"k":"v"}`})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "submitted echo after commit")
}

// recordingRuns is a RunStore that keeps only task names
type recordingRunStore struct {
	names *[]string
}

func recordingRuns(names *[]string) task.RunStore {
	return recordingRunStore{names: names}
}

func (s recordingRunStore) SaveRun(ctx context.Context, run task.Run) error {
	*s.names = append(*s.names, run.Task)
	return nil
}

func (s recordingRunStore) GetRun(ctx context.Context, id uuid.UUID) (task.Run, error) {
	return task.Run{}, store.ErrRunNotFound
}

func (s recordingRunStore) ListRuns(ctx context.Context, name string, limit int) ([]task.Run, error) {
	return nil, nil
}
