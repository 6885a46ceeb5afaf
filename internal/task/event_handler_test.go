package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/events"
	runstore "github.com/phrazzld/txtask/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecution implements events.Execution for testing
type stubExecution struct {
	jobID    uuid.UUID
	eager    bool
	attempts int
}

func (s stubExecution) JobID() uuid.UUID { return s.jobID }
func (s stubExecution) IsEager() bool    { return s.eager }
func (s stubExecution) Attempts() int    { return s.attempts }

// failingRunStore implements RunStore and always fails
type failingRunStore struct {
	err error
}

func (s failingRunStore) SaveRun(ctx context.Context, run Run) error {
	return s.err
}

func (s failingRunStore) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	return Run{}, s.err
}

func (s failingRunStore) ListRuns(ctx context.Context, task string, limit int) ([]Run, error) {
	return nil, s.err
}

func TestRunRecorder_HandleEvent(t *testing.T) {
	t.Parallel()

	t.Run("records failed run", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryRunStore()
		recorder := NewRunRecorder(store, testLogger())

		exec := stubExecution{jobID: uuid.New(), attempts: 2}
		event := events.NewTaskFinished(exec, "send_email", events.StatusFailure, errors.New("smtp timeout"))

		require.NoError(t, recorder.HandleEvent(context.Background(), event))

		runs, err := store.ListRuns(context.Background(), "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, event.ID, runs[0].ID)
		assert.Equal(t, exec.jobID, runs[0].JobID)
		assert.Equal(t, "send_email", runs[0].Task)
		assert.Equal(t, events.StatusFailure, runs[0].Status)
		assert.Equal(t, 2, runs[0].Attempts)
		assert.False(t, runs[0].Eager)
		assert.Equal(t, "smtp timeout", runs[0].Error)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		storeErr := errors.New("database unavailable")
		recorder := NewRunRecorder(failingRunStore{err: storeErr}, testLogger())

		event := events.NewTaskFinished(stubExecution{jobID: uuid.New()}, "t", events.StatusSuccess, nil)
		err := recorder.HandleEvent(context.Background(), event)
		assert.ErrorIs(t, err, storeErr)
	})
}

func TestRunRecorder_WiredToExecutor(t *testing.T) {
	t.Parallel()

	store := NewMemoryRunStore()
	emitter := events.NewInMemoryEventEmitter(testLogger())
	emitter.RegisterHandler(NewRunRecorder(store, testLogger()))

	executor := NewExecutor(ExecutorConfig{Emitter: emitter, Logger: testLogger()})
	def := mustDefinition(t, "T", noopHandler)
	job := newJob("T", true)

	require.NoError(t, executor.Execute(context.Background(), def, job))

	runs, err := store.ListRuns(context.Background(), "T", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, job.ID, runs[0].JobID)
	assert.Equal(t, events.StatusSuccess, runs[0].Status)
	assert.Equal(t, 1, runs[0].Attempts)
	assert.True(t, runs[0].Eager)
	assert.Empty(t, runs[0].Error)
}

func TestMemoryRunStore_ListRuns(t *testing.T) {
	t.Parallel()

	store := NewMemoryRunStore()
	now := time.Now().UTC()
	for i, name := range []string{"a", "b", "a", "a"} {
		require.NoError(t, store.SaveRun(context.Background(), Run{
			ID:         uuid.New(),
			Task:       name,
			Status:     events.StatusSuccess,
			FinishedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := store.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, now.Add(3*time.Second), all[0].FinishedAt, "newest first")

	onlyA, err := store.ListRuns(context.Background(), "a", 2)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, now.Add(3*time.Second), onlyA[0].FinishedAt)
	assert.Equal(t, now.Add(2*time.Second), onlyA[1].FinishedAt)
}

func TestMemoryRunStore_GetRun(t *testing.T) {
	t.Parallel()

	runs := NewMemoryRunStore()
	run := Run{ID: uuid.New(), JobID: uuid.New(), Task: "a", Status: events.StatusFailure, Error: "boom"}
	require.NoError(t, runs.SaveRun(context.Background(), run))

	got, err := runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = runs.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, runstore.ErrRunNotFound)
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}
