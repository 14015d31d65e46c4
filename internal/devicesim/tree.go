package devicesim

import (
	"github.com/dhd-bridge/dhd-go/pkg/path"
)

// setIn stores value at p inside tree, creating intermediate objects.
// It returns false if p descends through a scalar or an array.
func setIn(tree map[string]any, p string, value any) bool {
	segs := path.Segments(p)
	if len(segs) == 0 {
		return false
	}

	node := tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg]
		if !ok {
			child := make(map[string]any)
			node[seg] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	node[segs[len(segs)-1]] = clone(value)
	return true
}

// nest wraps value in objects so it sits at p when read from the root.
func nest(p string, value any) any {
	segs := path.Segments(p)
	out := clone(value)
	for i := len(segs) - 1; i >= 0; i-- {
		out = map[string]any{segs[i]: out}
	}
	return out
}

// clone deep-copies JSON-shaped values.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

// normalizeTree converts YAML-decoded maps (map[any]any, int) into the
// shapes encoding/json produces, so seeded and pushed values compare equal.
func normalizeTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeTree(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := k.(string); ok {
				out[s] = normalizeTree(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeTree(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
