package path

import (
	"strconv"
	"strings"
)

// Separator delimits path segments.
const Separator = "/"

// Normalize returns the canonical form of p: duplicate slashes collapsed,
// leading and trailing slashes removed.
func Normalize(p string) string {
	if p == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(p))

	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}

	return strings.Trim(b.String(), Separator)
}

// Equal reports whether a and b address the same node.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Segments splits p into its normalized segments.
// The empty path has no segments.
func Segments(p string) []string {
	n := Normalize(p)
	if n == "" {
		return nil
	}
	return strings.Split(n, Separator)
}

// Join concatenates parts and normalizes the result.
func Join(parts ...string) string {
	return Normalize(strings.Join(parts, Separator))
}

// HasPrefix reports whether prefix addresses p itself or one of its ancestors.
func HasPrefix(p, prefix string) bool {
	p, prefix = Normalize(p), Normalize(prefix)
	if prefix == "" {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+Separator)
}

// Lookup descends tree along p and returns the value found there.
//
// Objects are descended by key (map[string]any) and arrays by decimal index
// ([]any). The second return value is false if any segment is missing or
// descends into a scalar. An empty path returns tree itself.
func Lookup(tree any, p string) (any, bool) {
	cur := tree
	for _, seg := range Segments(p) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
