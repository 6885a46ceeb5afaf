package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/events"
	"github.com/phrazzld/txtask/internal/platform/logger"
	"github.com/phrazzld/txtask/internal/store"
	"github.com/phrazzld/txtask/internal/task"
)

const runEntity = "task_run"

// RunStore implements task.RunStore using the task_runs table
type RunStore struct {
	db store.DBTX
}

// NewRunStore creates a new RunStore
func NewRunStore(db store.DBTX) *RunStore {
	return &RunStore{db: db}
}

var _ task.RunStore = (*RunStore)(nil)

const runColumns = `id, job_id, task, status, attempts, eager, error_message, finished_at`

// SaveRun persists a finished run
func (s *RunStore) SaveRun(ctx context.Context, run task.Run) error {
	log := logger.FromContextOrDefault(ctx)

	query := `
		INSERT INTO task_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.JobID,
		run.Task,
		string(run.Status),
		run.Attempts,
		run.Eager,
		errMsg,
		run.FinishedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to save task run",
			"run_id", run.ID,
			"task", run.Task,
			"error", err)
		return store.NewStoreError(runEntity, "save", "failed to save task run", MapError(err))
	}
	return nil
}

// GetRun returns the run with the given id, or store.ErrRunNotFound
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (task.Run, error) {
	query := `SELECT ` + runColumns + ` FROM task_runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return task.Run{}, store.ErrRunNotFound
		}
		return task.Run{}, store.NewStoreError(runEntity, "get", "failed to get task run", MapError(err))
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (s *RunStore) ListRuns(ctx context.Context, taskName string, limit int) ([]task.Run, error) {
	query := `SELECT ` + runColumns + ` FROM task_runs`
	var args []any
	if taskName != "" {
		args = append(args, taskName)
		query += ` WHERE task = $1`
	}
	query += ` ORDER BY finished_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError(runEntity, "list", "failed to list task runs", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var runs []task.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (task.Run, error) {
	var (
		run    task.Run
		status string
		errMsg sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.JobID,
		&run.Task,
		&status,
		&run.Attempts,
		&run.Eager,
		&errMsg,
		&run.FinishedAt,
	); err != nil {
		return task.Run{}, err
	}
	run.Status = events.Status(status)
	run.Error = errMsg.String
	return run, nil
}
