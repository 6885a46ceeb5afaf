package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/txtask/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgxResource(t *testing.T) {
	t.Parallel()

	t.Run("commit", func(t *testing.T) {
		t.Parallel()

		tx := &fakeTx{}
		require.NoError(t, (&pgxResource{tx: tx}).Commit(context.Background()))
		assert.Equal(t, 1, tx.commits)
	})

	t.Run("serialization failure at commit is a conflict", func(t *testing.T) {
		t.Parallel()

		tx := &fakeTx{commitErr: &pgconn.PgError{Code: "40001"}}
		err := (&pgxResource{tx: tx}).Commit(context.Background())
		assert.ErrorIs(t, err, txn.ErrConflict)
		assert.True(t, txn.IsConflict(err))
	})

	t.Run("rollback of closed transaction", func(t *testing.T) {
		t.Parallel()

		tx := &fakeTx{rollbackErr: pgx.ErrTxClosed}
		assert.NoError(t, (&pgxResource{tx: tx}).Rollback(context.Background()))
	})

	t.Run("rollback error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("conn lost")
		tx := &fakeTx{rollbackErr: boom}
		assert.ErrorIs(t, (&pgxResource{tx: tx}).Rollback(context.Background()), boom)
	})
}

func TestJoinPgx(t *testing.T) {
	t.Parallel()

	m := txn.NewManager(txn.WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	key := &struct{ name string }{"session"}
	begun := 0
	pgxTx := &fakeTx{}
	begin := func(ctx context.Context) (pgx.Tx, error) {
		begun++
		return pgxTx, nil
	}

	first, err := joinPgx(context.Background(), tx, key, begin)
	require.NoError(t, err)
	second, err := joinPgx(context.Background(), tx, key, begin)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, begun)

	require.NoError(t, m.Commit(context.Background()))
	assert.Equal(t, 1, pgxTx.commits)
	assert.Equal(t, 0, pgxTx.rollbacks)
}

func TestJoinPgx_AbortRollsBack(t *testing.T) {
	t.Parallel()

	m := txn.NewManager(txn.WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	pgxTx := &fakeTx{}
	_, err = joinPgx(context.Background(), tx, "k", func(ctx context.Context) (pgx.Tx, error) {
		return pgxTx, nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Abort(context.Background()))
	assert.Equal(t, 0, pgxTx.commits)
	assert.Equal(t, 1, pgxTx.rollbacks)
}

func TestJoinPgx_ClosedTransaction(t *testing.T) {
	t.Parallel()

	m := txn.NewManager(txn.WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Commit(context.Background()))

	pgxTx := &fakeTx{}
	_, err = joinPgx(context.Background(), tx, "k", func(ctx context.Context) (pgx.Tx, error) {
		return pgxTx, nil
	})
	assert.ErrorIs(t, err, txn.ErrTransactionClosed)
	assert.Equal(t, 1, pgxTx.rollbacks)
}

func TestJoinPgx_BeginError(t *testing.T) {
	t.Parallel()

	m := txn.NewManager(txn.WithLogger(testLogger()))
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	boom := errors.New("too many connections")
	_, err = joinPgx(context.Background(), tx, "k", func(ctx context.Context) (pgx.Tx, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, joined := tx.Joined("k")
	assert.False(t, joined)
}
