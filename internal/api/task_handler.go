package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/api/shared"
	"github.com/phrazzld/txtask/internal/store"
	"github.com/phrazzld/txtask/internal/task"
)

// SubmitTaskRequest is the body of POST /api/tasks/{name}
type SubmitTaskRequest struct {
	Args         []any          `json:"args"`
	Kwargs       map[string]any `json:"kwargs"`
	Immediate    bool           `json:"immediate"`
	Queue        string         `json:"queue" validate:"omitempty,max=128"`
	DelaySeconds int            `json:"delay_seconds" validate:"gte=0,lte=86400"`
}

// SubmitTaskResponse describes an accepted submission
type SubmitTaskResponse struct {
	Task string `json:"task"`

	// Mode is "immediate" when the job was handed to the queue during the
	// request, or "commit_deferred" when it waits for the commit.
	Mode string `json:"mode"`

	JobID    string `json:"job_id,omitempty"`
	QueueJob string `json:"queue_job_id,omitempty"`
}

// RunResponse is one entry of GET /api/runs
type RunResponse struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Task       string    `json:"task"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Eager      bool      `json:"eager"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// TaskSource resolves task handles by name. *task.Registry implements it.
type TaskSource interface {
	Task(name string) (*task.Task, error)
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	tasks  TaskSource
	runs   task.RunStore
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. runs may be nil, in which case
// the run listing responds 404.
func NewTaskHandler(tasks TaskSource, runs task.RunStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		runs:   runs,
		logger: logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /api/tasks/{name}
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	t, err := h.tasks.Task(name)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	args := task.Args{Positional: req.Args, Keyword: req.Kwargs}
	var opts []task.SubmitOption
	if req.Queue != "" {
		opts = append(opts, task.WithQueueName(req.Queue))
	}
	if req.DelaySeconds > 0 {
		opts = append(opts, task.WithDelay(time.Duration(req.DelaySeconds)*time.Second))
	}

	resp := SubmitTaskResponse{Task: t.Name()}
	if req.Immediate || t.Definition().Mode == task.ModeImmediate {
		handle, err := t.SubmitImmediate(r.Context(), args, opts...)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		resp.Mode = string(task.ModeImmediate)
		resp.JobID = handle.JobID.String()
		resp.QueueJob = handle.ID
	} else {
		if err := t.Submit(r.Context(), args, shared.TxManagerFrom(r.Context()), opts...); err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		resp.Mode = string(task.ModeCommitDeferred)
	}

	h.logger.Debug("task submitted", "task", t.Name(), "mode", resp.Mode, "trace_id", shared.GetTraceID(r.Context()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, resp)
}

// GetRun handles GET /api/runs/{id}
func (h *TaskHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Run recording is disabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task run not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to get task run", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newRunResponse(run))
}

// ListRuns handles GET /api/runs
func (h *TaskHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Run recording is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit: must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), r.URL.Query().Get("task"), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to list task runs", err)
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, newRunResponse(run))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

func newRunResponse(run task.Run) RunResponse {
	return RunResponse{
		ID:         run.ID.String(),
		JobID:      run.JobID.String(),
		Task:       run.Task,
		Status:     string(run.Status),
		Attempts:   run.Attempts,
		Eager:      run.Eager,
		Error:      run.Error,
		FinishedAt: run.FinishedAt,
	}
}
