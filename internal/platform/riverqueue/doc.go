// Package riverqueue implements task.Queue on top of River, a Postgres-backed
// job queue. Jobs are inserted as JobArgs and worked by a single Worker kind
// that resolves the task by name and runs it through the task executor.
//
// Arguments travel as JSON, so numbers in positional and keyword arguments
// reach handlers as float64.
package riverqueue
