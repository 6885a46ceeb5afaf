package postgres

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeTx overrides the pgx.Tx methods a txn resource uses. Calling any other
// method panics on the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	commitErr   error
	rollbackErr error
	commits     int
	rollbacks   int
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.commits++
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rollbacks++
	return f.rollbackErr
}
