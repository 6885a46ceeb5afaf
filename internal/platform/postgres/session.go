package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/phrazzld/txtask/internal/txn"
)

// SessionBindingName is the name a Session is registered under on the
// execution context.
const SessionBindingName = "postgres"

// Session is a database connection scoped to one task execution. Its pgx
// transaction is begun lazily per attempt and joined to the attempt's
// txn.Transaction, so it commits, rolls back and retries with it.
type Session struct {
	conn *pgxpool.Conn
	tm   *txn.Manager
	opts pgx.TxOptions
}

// SessionBinding returns a task.Binding that acquires a pooled connection for
// every execution. The zero TxOptions value selects serializable isolation.
func SessionBinding(pool *pgxpool.Pool, opts pgx.TxOptions) task.Binding {
	if opts.IsoLevel == "" {
		opts.IsoLevel = pgx.Serializable
	}
	return task.Binding{
		Name: SessionBindingName,
		Open: func(ctx context.Context, ec *task.ExecutionContext) (task.BoundResource, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to acquire database connection: %w", err)
			}
			return &Session{conn: conn, tm: ec.TM(), opts: opts}, nil
		},
	}
}

// SessionFrom returns the Session bound to ec.
func SessionFrom(ec *task.ExecutionContext) (*Session, error) {
	res, ok := ec.Resource(SessionBindingName)
	if !ok {
		return nil, &task.ConfigError{
			Task:   ec.Definition().Name,
			Param:  "binding." + SessionBindingName,
			Reason: "no postgres session is bound to the executor",
		}
	}
	s, ok := res.(*Session)
	if !ok {
		return nil, fmt.Errorf("resource %q is %T, not *postgres.Session", SessionBindingName, res)
	}
	return s, nil
}

// Tx returns the pgx transaction joined to the current txn.Transaction,
// beginning one on first use within an attempt.
func (s *Session) Tx(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.tm.Get()
	if err != nil {
		return nil, err
	}
	return joinPgx(ctx, tx, s, func(ctx context.Context) (pgx.Tx, error) {
		return s.conn.BeginTx(ctx, s.opts)
	})
}

// Exec runs sql inside the session transaction.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx, err := s.Tx(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return tag, MapError(err)
	}
	return tag, nil
}

// Query runs sql inside the session transaction.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx, err := s.Tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, MapError(err)
	}
	return rows, nil
}

// QueryRow runs sql inside the session transaction and scans the single
// result row into dest.
func (s *Session) QueryRow(ctx context.Context, dest []any, sql string, args ...any) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, sql, args...).Scan(dest...); err != nil {
		return MapError(err)
	}
	return nil
}

// Release returns the connection to the pool. It implements task.BoundResource.
func (s *Session) Release(ctx context.Context) error {
	s.conn.Release()
	return nil
}

// pgxResource adapts a pgx.Tx to txn.Resource.
type pgxResource struct {
	tx pgx.Tx
}

// Commit implements txn.Resource. Serialization failures reported at commit
// time map to txn.ErrConflict.
func (r *pgxResource) Commit(ctx context.Context) error {
	if err := r.tx.Commit(ctx); err != nil {
		return MapError(err)
	}
	return nil
}

// Rollback implements txn.Resource. Rolling back a closed transaction is a no-op.
func (r *pgxResource) Rollback(ctx context.Context) error {
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func joinPgx(
	ctx context.Context,
	tx *txn.Transaction,
	key any,
	begin func(ctx context.Context) (pgx.Tx, error),
) (pgx.Tx, error) {
	if res, ok := tx.Joined(key); ok {
		pgxRes, ok := res.(*pgxResource)
		if !ok {
			return nil, fmt.Errorf("resource joined for session is %T, not a pgx transaction", res)
		}
		return pgxRes.tx, nil
	}

	pgxTx, err := begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin database transaction: %w", MapError(err))
	}
	if err := tx.Join(key, &pgxResource{tx: pgxTx}); err != nil {
		_ = pgxTx.Rollback(ctx)
		return nil, fmt.Errorf("failed to join database transaction: %w", err)
	}
	return pgxTx, nil
}
