// Package store defines the shared persistence contracts: the DBTX
// abstraction over *sql.DB and *sql.Tx, common store errors, and helpers
// that enlist database/sql transactions in a txn.Transaction.
package store
