package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a Transaction.
type Status string

// Possible transaction status values
const (
	StatusActive    Status = "active"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Resource is a data manager that takes part in a transaction.
// Commit and Rollback are each called at most once.
type Resource interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AfterCommitHook runs once the outcome of a transaction is known.
// committed is true only when every joined resource committed.
type AfterCommitHook func(ctx context.Context, committed bool) error

type joinedResource struct {
	key      any
	resource Resource
}

// Transaction is a single unit of work owned by a Manager.
type Transaction struct {
	id uuid.UUID

	mu        sync.Mutex
	status    Status
	hooks     []AfterCommitHook
	resources []joinedResource
}

func newTransaction() *Transaction {
	return &Transaction{
		id:     uuid.New(),
		status: StatusActive,
	}
}

// ID returns the transaction's unique identifier
func (t *Transaction) ID() uuid.UUID {
	return t.id
}

// Status returns the current transaction status
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// AddAfterCommitHook registers hook to run after this transaction finishes.
// Hooks run in registration order.
func (t *Transaction) AddAfterCommitHook(hook AfterCommitHook) error {
	if hook == nil {
		return fmt.Errorf("after-commit hook must not be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrTransactionClosed, t.id, t.status)
	}
	t.hooks = append(t.hooks, hook)
	return nil
}

// Join enlists r under key. Resources commit in join order and roll back in
// reverse join order. A key may only be joined once.
func (t *Transaction) Join(key any, r Resource) error {
	if r == nil {
		return fmt.Errorf("resource must not be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrTransactionClosed, t.id, t.status)
	}
	for _, jr := range t.resources {
		if jr.key == key {
			return fmt.Errorf("resource %v already joined transaction %s", key, t.id)
		}
	}
	t.resources = append(t.resources, joinedResource{key: key, resource: r})
	return nil
}

// Joined returns the resource previously joined under key.
func (t *Transaction) Joined(key any) (Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, jr := range t.resources {
		if jr.key == key {
			return jr.resource, true
		}
	}
	return nil, false
}

func (t *Transaction) joinedResources() []joinedResource {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]joinedResource, len(t.resources))
	copy(out, t.resources)
	return out
}

// finish moves the transaction to its terminal status and hands the pending
// hooks to the caller. The hook list is cleared so each hook fires once.
func (t *Transaction) finish(status Status) []AfterCommitHook {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	hooks := t.hooks
	t.hooks = nil
	return hooks
}
