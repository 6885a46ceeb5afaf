package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/txtask/internal/events"
)

// RunRecorder implements events.EventHandler by saving every finished
// execution to a RunStore.
type RunRecorder struct {
	store  RunStore
	logger *slog.Logger
}

// NewRunRecorder creates a RunRecorder that writes to store.
func NewRunRecorder(store RunStore, logger *slog.Logger) *RunRecorder {
	return &RunRecorder{
		store:  store,
		logger: logger.With("component", "run_recorder"),
	}
}

// HandleEvent records the run described by event.
func (h *RunRecorder) HandleEvent(ctx context.Context, event *events.TaskFinished) error {
	run := Run{
		ID:         event.ID,
		Task:       event.Task,
		Status:     event.Status,
		FinishedAt: event.FinishedAt,
	}
	if event.Context != nil {
		run.JobID = event.Context.JobID()
		run.Attempts = event.Context.Attempts()
		run.Eager = event.Context.IsEager()
	}
	if event.Err != nil {
		run.Error = event.Err.Error()
	}

	if err := h.store.SaveRun(ctx, run); err != nil {
		h.logger.Error("failed to record task run",
			"error", err,
			"event_id", event.ID,
			"task", event.Task)
		return fmt.Errorf("failed to record task run: %w", err)
	}

	h.logger.Debug("task run recorded",
		"task", run.Task,
		"job_id", run.JobID,
		"status", run.Status,
		"attempts", run.Attempts)
	return nil
}
