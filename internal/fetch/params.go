package fetch

import (
	"fmt"
	"strconv"
)

// Params maps parameter names to scalar values (strings or numbers). The
// Fetcher passes them to the operation untouched; validating them is the
// operation's job.
type Params map[string]any

// Clone returns a shallow copy. Cloning nil yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value under key formatted as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value under key as an int. Absent keys yield (0, nil);
// values that are neither numbers nor numeric strings yield an error.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		if n == "" {
			return 0, nil
		}
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("param %q: unsupported type %T", key, v)
	}
}
