package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	args := NewArgs("a", 2).With("x", 1)

	v, ok := args.Arg(1)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = args.Arg(2)
	assert.False(t, ok)
	_, ok = args.Arg(-1)
	assert.False(t, ok)

	v, ok = args.Kwarg("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = args.Kwarg("y")
	assert.False(t, ok)

	with := args.With("y", 2)
	_, ok = args.Kwarg("y")
	assert.False(t, ok, "With does not modify the receiver")
	_, ok = with.Kwarg("y")
	assert.True(t, ok)

	clone := args.Clone()
	clone.Positional[0] = "changed"
	clone.Keyword["x"] = 99
	assert.Equal(t, "a", args.Positional[0])
	assert.Equal(t, 1, args.Keyword["x"])

	assert.Equal(t, Args{}, Args{}.Clone())
}

func TestArgs_CloneIsDeep(t *testing.T) {
	t.Parallel()

	args := Args{
		Positional: []any{[]any{1, map[string]any{"k": "v"}}},
		Keyword:    map[string]any{"user": map[string]any{"tags": []any{"a"}}},
	}
	clone := args.Clone()

	clone.Positional[0].([]any)[1].(map[string]any)["k"] = "changed"
	clone.Keyword["user"].(map[string]any)["tags"].([]any)[0] = "changed"

	assert.Equal(t, "v", args.Positional[0].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, "a", args.Keyword["user"].(map[string]any)["tags"].([]any)[0])
}
