// Package task runs background work bound to the lifecycle of a transaction.
//
// Tasks are registered up front in a Registry, which is frozen before any
// dispatch happens. Submitting a commit-deferred task from inside an open
// transaction registers an after-commit hook instead of queueing the job, so
// the job only reaches the Queue once the caller's data is durable. Workers
// run each job through an Executor, which builds a fresh ExecutionContext and
// transaction manager, retries conflicts, and tears the context down exactly
// once on every exit path.
package task
