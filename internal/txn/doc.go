// Package txn provides a small transaction manager that coordinates the
// resources participating in a unit of work.
//
// A Manager owns at most one open Transaction at a time. Resources such as a
// pgx transaction join the open Transaction and are committed or rolled back
// together with it. Callers can register after-commit hooks on a Transaction;
// hooks fire exactly once, in registration order, after the commit outcome is
// known and before Commit or Abort returns.
//
// Manager.Run executes a function inside a fresh transaction and retries it
// when the error is classified as a retryable conflict. Classification is a
// pluggable predicate so that storage backends can decide what counts as a
// conflict.
package txn
