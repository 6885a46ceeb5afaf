package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("without wrapped error", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("task_run", "create", "invalid status", nil)
		assert.Equal(t, "create operation on task_run failed: invalid status", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("with wrapped error", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("task_run", "list", "query failed", ErrNotFound)
		assert.Equal(t, "list operation on task_run failed: query failed: entity not found", err.Error())
		assert.ErrorIs(t, err, ErrNotFound)

		var storeErr *StoreError
		assert.ErrorAs(t, fmt.Errorf("outer: %w", err), &storeErr)
		assert.Equal(t, "task_run", storeErr.Entity)
	})
}

func TestErrRunNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Is(ErrRunNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrRunNotFound))
	assert.False(t, errors.Is(ErrRunNotFound, ErrDuplicate))
}
