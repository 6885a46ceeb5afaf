package txn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// recordingResource records the calls made to it by the manager
type recordingResource struct {
	name      string
	log       *[]string
	mu        *sync.Mutex
	commitErr error
}

func (r *recordingResource) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.name+":commit")
	return r.commitErr
}

func (r *recordingResource) Rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.name+":rollback")
	return nil
}

func TestManager_BeginGet(t *testing.T) {
	t.Parallel()

	m := NewManager(WithLogger(testLogger()))

	_, err := m.Get()
	assert.ErrorIs(t, err, ErrNoTransaction)

	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, tx.Status())

	current, err := m.Get()
	require.NoError(t, err)
	assert.Same(t, tx, current)

	_, err = m.Begin(context.Background())
	assert.ErrorIs(t, err, ErrTransactionActive)
}

func TestManager_CommitFiresHooksInOrder(t *testing.T) {
	t.Parallel()

	m := NewManager(WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	var calls []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
			assert.True(t, committed)
			// The transaction is already finished when hooks fire
			assert.Equal(t, StatusCommitted, tx.Status())
			calls = append(calls, name)
			return nil
		}))
	}

	require.NoError(t, m.Commit(context.Background()))
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	// Hooks are handed out once, so a later abort cannot fire them again
	require.NoError(t, m.Abort(context.Background()))
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	_, err = m.Get()
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestManager_AbortFiresHooksWithFalse(t *testing.T) {
	t.Parallel()

	m := NewManager(WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	var outcomes []bool
	require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		outcomes = append(outcomes, committed)
		return nil
	}))

	require.NoError(t, m.Abort(context.Background()))
	assert.Equal(t, []bool{false}, outcomes)
	assert.Equal(t, StatusAborted, tx.Status())

	// A second abort is a no-op and must not fire the hook again
	require.NoError(t, m.Abort(context.Background()))
	assert.Equal(t, []bool{false}, outcomes)
}

func TestManager_HookFailureDoesNotStopOtherHooks(t *testing.T) {
	t.Parallel()

	m := NewManager(WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	var ran []int
	require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		ran = append(ran, 1)
		return errors.New("hook error")
	}))
	require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		ran = append(ran, 2)
		panic("hook panic")
	}))
	require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		ran = append(ran, 3)
		return nil
	}))

	assert.NoError(t, m.Commit(context.Background()))
	assert.Equal(t, []int{1, 2, 3}, ran)
}

func TestTransaction_ClosedRejectsHooksAndResources(t *testing.T) {
	t.Parallel()

	m := NewManager(WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Commit(context.Background()))

	err = tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error { return nil })
	assert.ErrorIs(t, err, ErrTransactionClosed)

	var mu sync.Mutex
	var log []string
	err = tx.Join("db", &recordingResource{name: "db", log: &log, mu: &mu})
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

func TestManager_ResourcesCommitInOrderAndRollBackInReverse(t *testing.T) {
	t.Parallel()

	t.Run("commit", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var log []string
		m := NewManager(WithLogger(testLogger()))
		tx, err := m.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Join("a", &recordingResource{name: "a", log: &log, mu: &mu}))
		require.NoError(t, tx.Join("b", &recordingResource{name: "b", log: &log, mu: &mu}))

		res, ok := tx.Joined("b")
		require.True(t, ok)
		assert.Equal(t, "b", res.(*recordingResource).name)

		assert.Error(t, tx.Join("a", &recordingResource{name: "dup", log: &log, mu: &mu}))

		require.NoError(t, m.Commit(context.Background()))
		assert.Equal(t, []string{"a:commit", "b:commit"}, log)
	})

	t.Run("abort", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var log []string
		m := NewManager(WithLogger(testLogger()))
		tx, err := m.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Join("a", &recordingResource{name: "a", log: &log, mu: &mu}))
		require.NoError(t, tx.Join("b", &recordingResource{name: "b", log: &log, mu: &mu}))

		require.NoError(t, m.Abort(context.Background()))
		assert.Equal(t, []string{"b:rollback", "a:rollback"}, log)
	})
}

func TestManager_ResourceCommitFailureAborts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var log []string
	commitErr := errors.New("disk full")

	m := NewManager(WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Join("a", &recordingResource{name: "a", log: &log, mu: &mu, commitErr: commitErr}))
	require.NoError(t, tx.Join("b", &recordingResource{name: "b", log: &log, mu: &mu}))

	var outcomes []bool
	require.NoError(t, tx.AddAfterCommitHook(func(ctx context.Context, committed bool) error {
		outcomes = append(outcomes, committed)
		return nil
	}))

	err = m.Commit(context.Background())
	assert.ErrorIs(t, err, commitErr)
	assert.Equal(t, []string{"a:commit", "b:rollback"}, log)
	assert.Equal(t, []bool{false}, outcomes)
	assert.Equal(t, StatusAborted, tx.Status())
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	conflict := func() error { return errors.Join(ErrConflict, errors.New("row changed")) }

	t.Run("succeeds after conflicts", func(t *testing.T) {
		t.Parallel()

		m := NewManager(WithAttempts(3), WithLogger(testLogger()))
		var statuses []*Transaction
		attempts := 0
		err := m.Run(context.Background(), func(ctx context.Context, tx *Transaction) error {
			attempts++
			statuses = append(statuses, tx)
			if attempts < 3 {
				return conflict()
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, StatusAborted, statuses[0].Status())
		assert.Equal(t, StatusAborted, statuses[1].Status())
		assert.Equal(t, StatusCommitted, statuses[2].Status())
	})

	t.Run("exhausts retries", func(t *testing.T) {
		t.Parallel()

		m := NewManager(WithAttempts(2), WithLogger(testLogger()))
		attempts := 0
		var last *Transaction
		err := m.Run(context.Background(), func(ctx context.Context, tx *Transaction) error {
			attempts++
			last = tx
			return conflict()
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.ErrorIs(t, err, ErrConflict)
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 2, exhausted.Attempts)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, StatusAborted, last.Status())

		_, err = m.Get()
		assert.ErrorIs(t, err, ErrNoTransaction)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		t.Parallel()

		m := NewManager(WithAttempts(5), WithLogger(testLogger()))
		boom := errors.New("boom")
		attempts := 0
		err := m.Run(context.Background(), func(ctx context.Context, tx *Transaction) error {
			attempts++
			return boom
		})

		assert.Equal(t, boom, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("single attempt never retries a conflict", func(t *testing.T) {
		t.Parallel()

		m := NewManager(WithAttempts(0), WithLogger(testLogger()))
		assert.Equal(t, 1, m.Attempts())

		attempts := 0
		err := m.Run(context.Background(), func(ctx context.Context, tx *Transaction) error {
			attempts++
			return conflict()
		})

		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 1, attempts)
	})

	t.Run("custom retryable predicate", func(t *testing.T) {
		t.Parallel()

		busy := errors.New("busy")
		m := NewManager(
			WithAttempts(2),
			WithRetryable(func(err error) bool { return errors.Is(err, busy) }),
			WithBackoff(time.Millisecond, 5*time.Millisecond),
			WithLogger(testLogger()),
		)
		attempts := 0
		err := m.Run(context.Background(), func(ctx context.Context, tx *Transaction) error {
			attempts++
			return busy
		})

		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 2, attempts)
	})

	t.Run("panic aborts and propagates", func(t *testing.T) {
		t.Parallel()

		m := NewManager(WithAttempts(3), WithLogger(testLogger()))
		var tx *Transaction
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = m.Run(context.Background(), func(ctx context.Context, current *Transaction) error {
				tx = current
				panic("kaboom")
			})
		})
		assert.Equal(t, StatusAborted, tx.Status())
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		m := NewManager(WithAttempts(5), WithBackoff(time.Hour, time.Hour), WithLogger(testLogger()))
		attempts := 0
		err := m.Run(ctx, func(ctx context.Context, tx *Transaction) error {
			attempts++
			cancel()
			return conflict()
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestAnyOf(t *testing.T) {
	t.Parallel()

	other := errors.New("other")
	pred := AnyOf(nil, IsConflict, func(err error) bool { return errors.Is(err, other) })

	assert.True(t, pred(ErrConflict))
	assert.True(t, pred(other))
	assert.False(t, pred(errors.New("unrelated")))
}
