package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phrazzld/txtask/internal/platform/logger"
	"github.com/phrazzld/txtask/internal/txn"
)

// TxFn is a function that executes within a database transaction.
// The transaction is committed if the function returns nil, or rolled back if it returns an error.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// SQLResource adapts a *sql.Tx to txn.Resource so it commits and rolls back
// together with the txn.Transaction it joined.
type SQLResource struct {
	tx *sql.Tx
}

// Tx returns the underlying database transaction
func (r *SQLResource) Tx() *sql.Tx {
	return r.tx
}

// Commit implements txn.Resource
func (r *SQLResource) Commit(ctx context.Context) error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return nil
}

// Rollback implements txn.Resource. Rolling back a finished transaction is a no-op.
func (r *SQLResource) Rollback(ctx context.Context) error {
	if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// JoinSQL returns the database transaction for db joined to tx, beginning
// and joining a new one on first use. Later calls within the same tx return
// the same *sql.Tx.
func JoinSQL(ctx context.Context, tx *txn.Transaction, db *sql.DB, opts *sql.TxOptions) (*sql.Tx, error) {
	if res, ok := tx.Joined(db); ok {
		sqlRes, ok := res.(*SQLResource)
		if !ok {
			return nil, fmt.Errorf("resource joined for database is %T, not *SQLResource", res)
		}
		return sqlRes.tx, nil
	}

	sqlTx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.Join(db, &SQLResource{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return nil, fmt.Errorf("failed to join database transaction: %w", err)
	}
	return sqlTx, nil
}

// RunInTransaction executes fn inside a database transaction driven by tm.
// The database transaction joins each txn.Transaction that tm's retry loop
// begins, so it commits, rolls back and retries together with it, and any
// after-commit hooks registered during fn fire only once it is durable.
func RunInTransaction(ctx context.Context, tm *txn.Manager, db *sql.DB, fn TxFn) error {
	log := logger.FromContextOrDefault(ctx)

	err := tm.Run(ctx, func(ctx context.Context, tx *txn.Transaction) error {
		sqlTx, err := JoinSQL(ctx, tx, db, nil)
		if err != nil {
			log.Error("failed to begin database transaction", "error", err)
			return err
		}
		return fn(ctx, sqlTx)
	})
	if err != nil {
		log.Debug("database transaction did not commit", "error", err)
		return err
	}

	log.Debug("database transaction committed successfully")
	return nil
}
