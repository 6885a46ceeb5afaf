package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/txtask/internal/api/shared"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/phrazzld/txtask/internal/txn"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("lookup: %w", task.ErrUnknownTask), http.StatusNotFound, "Task not found"},
		{fmt.Errorf("submit: %w", task.ErrUnknownQueue), http.StatusBadRequest, "Invalid queue: no task is sent to it"},
		{task.ErrQueueFull, http.StatusServiceUnavailable, "Task queue is full"},
		{&txn.ExhaustedError{Attempts: 1, Err: txn.ErrConflict}, http.StatusConflict, "Task conflicted with a concurrent update"},
		{&task.PanicError{Value: "boom"}, http.StatusInternalServerError, "Task failed"},
		{&task.ConfigError{Task: "t", Param: "tm"}, http.StatusInternalServerError, "Failed to submit task"},
		{errors.New("postgres://u:secret@h/db unreachable"), http.StatusInternalServerError, "Failed to submit task"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err), tc.err.Error())
		assert.Equal(t, tc.msg, GetSafeErrorMessage(tc.err))
	}
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := shared.ValidateRequest(SubmitTaskRequest{DelaySeconds: -5})
	assert.Equal(t, "Invalid delayseconds: too small", SanitizeValidationError(err))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
