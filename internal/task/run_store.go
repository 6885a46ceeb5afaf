package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/events"
	"github.com/phrazzld/txtask/internal/store"
)

// Run is the recorded outcome of one task execution.
type Run struct {
	ID         uuid.UUID     `json:"id"`
	JobID      uuid.UUID     `json:"job_id"`
	Task       string        `json:"task"`
	Status     events.Status `json:"status"`
	Attempts   int           `json:"attempts"`
	Eager      bool          `json:"eager"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RunStore persists finished task runs.
type RunStore interface {
	// SaveRun records a finished run
	SaveRun(ctx context.Context, run Run) error

	// GetRun returns the run recorded under id, or an error matching
	// store.ErrRunNotFound
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)

	// ListRuns returns the most recent runs first. An empty task matches all
	// tasks; a limit of zero or less returns every run.
	ListRuns(ctx context.Context, task string, limit int) ([]Run, error)
}

// MemoryRunStore is a RunStore kept in process memory. It is used by eager
// and local setups and by tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []Run
}

// NewMemoryRunStore creates an empty MemoryRunStore
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

// SaveRun implements RunStore
func (s *MemoryRunStore) SaveRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// GetRun implements RunStore
func (s *MemoryRunStore) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
}

// ListRuns implements RunStore
func (s *MemoryRunStore) ListRuns(ctx context.Context, task string, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for _, run := range s.runs {
		if task == "" || run.Task == task {
			out = append(out, run)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
