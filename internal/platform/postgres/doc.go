// Package postgres provides the PostgreSQL pieces of txtask: classification
// of serialization failures as retryable conflicts, a pgx session bound to
// each task execution whose transaction joins the task's txn.Transaction,
// the task_runs ledger, and goose migrations.
package postgres
