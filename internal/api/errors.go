package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/txtask/internal/task"
	"github.com/phrazzld/txtask/internal/txn"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrUnknownTask):
		return http.StatusNotFound

	case errors.Is(err, task.ErrUnknownQueue):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrQueueFull):
		return http.StatusServiceUnavailable

	case errors.Is(err, txn.ErrRetriesExhausted),
		errors.Is(err, txn.ErrConflict):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrUnknownTask):
		return "Task not found"
	case errors.Is(err, task.ErrUnknownQueue):
		return "Invalid queue: no task is sent to it"
	case errors.Is(err, task.ErrQueueFull):
		return "Task queue is full"
	case errors.Is(err, txn.ErrRetriesExhausted),
		errors.Is(err, txn.ErrConflict):
		return "Task conflicted with a concurrent update"
	case errors.Is(err, task.ErrPanic):
		return "Task failed"
	default:
		return "Failed to submit task"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
