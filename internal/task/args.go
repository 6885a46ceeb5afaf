package task

// Args holds the positional and keyword arguments of a submission.
type Args struct {
	Positional []any          `json:"args,omitempty"`
	Keyword    map[string]any `json:"kwargs,omitempty"`
}

// NewArgs builds Args from positional values.
func NewArgs(positional ...any) Args {
	return Args{Positional: positional}
}

// With returns a copy of a with the keyword argument key set to value.
func (a Args) With(key string, value any) Args {
	out := a.Clone()
	if out.Keyword == nil {
		out.Keyword = make(map[string]any, 1)
	}
	out.Keyword[key] = value
	return out
}

// Clone returns a deep copy of a. Nested []any and map[string]any values are
// copied recursively; other values are copied as-is.
func (a Args) Clone() Args {
	var out Args
	if a.Positional != nil {
		out.Positional = cloneSlice(a.Positional)
	}
	if a.Keyword != nil {
		out.Keyword = cloneMap(a.Keyword)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case []any:
		if v == nil {
			return v
		}
		return cloneSlice(v)
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneMap(v)
	default:
		return v
	}
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// Arg returns the positional argument at index i.
func (a Args) Arg(i int) (any, bool) {
	if i < 0 || i >= len(a.Positional) {
		return nil, false
	}
	return a.Positional[i], true
}

// Kwarg returns the keyword argument named key.
func (a Args) Kwarg(key string) (any, bool) {
	v, ok := a.Keyword[key]
	return v, ok
}
