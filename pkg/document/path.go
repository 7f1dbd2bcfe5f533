package document

import (
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: either a map key or a sequence
// index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed dotted path, optionally wrapped in int(...) or str(...)
// to force a coercion on the resolved value, and optionally rooted at a
// container-parsed subfield view rather than the document root.
type Path struct {
	Segments  []Segment
	Coerce    Coercion
	Container *ContainerSpec
	raw       string
}

// WithContainer returns a copy of p rooted at the given container spec:
// resolution starts from the parsed kv/json subfield view instead of the
// document root. Used by a mapping's full-mode field table to route a
// selection field through a Chainsaw container mapping.
func (p Path) WithContainer(spec ContainerSpec) Path {
	p.Container = &spec
	return p
}

// Coercion identifies an optional wrapper around a path expression.
type Coercion int

const (
	CoerceNone Coercion = iota
	CoerceInt
	CoerceStr
)

// String returns the original path text (without the coercion wrapper).
func (p Path) String() string { return p.raw }

// ParsePath parses a dotted path expression such as
// "Event.EventData.CommandLine", "foo[3].bar" or "int(EventID)".
func ParsePath(expr string) Path {
	expr = strings.TrimSpace(expr)
	coerce := CoerceNone
	raw := expr
	switch {
	case strings.HasPrefix(expr, "int(") && strings.HasSuffix(expr, ")"):
		coerce = CoerceInt
		raw = expr[4 : len(expr)-1]
	case strings.HasPrefix(expr, "str(") && strings.HasSuffix(expr, ")"):
		coerce = CoerceStr
		raw = expr[4 : len(expr)-1]
	}
	return Path{Segments: parseSegments(raw), Coerce: coerce, raw: raw}
}

func parseSegments(raw string) []Segment {
	var segs []Segment
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, Segment{Key: cur.String()})
			cur.Reset()
		}
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		switch c {
		case '.':
			flush()
			i++
		case '[':
			flush()
			j := strings.IndexByte(raw[i:], ']')
			if j < 0 {
				cur.WriteByte(c)
				i++
				continue
			}
			numStr := raw[i+1 : i+j]
			if n, err := strconv.Atoi(numStr); err == nil {
				segs = append(segs, Segment{Index: n, IsIndex: true})
			}
			i += j + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return segs
}

// Get resolves path against root, returning Absent if any segment fails to
// resolve. Path resolution is read-only and side-effect free.
func Get(root Value, path Path) Value {
	cur := root
	for _, seg := range path.Segments {
		if seg.IsIndex {
			seq, ok := cur.AsSequence()
			if !ok || seg.Index < 0 || seg.Index >= len(seq) {
				return Absent
			}
			cur = seq[seg.Index]
			continue
		}
		m, ok := cur.AsMap()
		if !ok {
			return Absent
		}
		v, found := m[seg.Key]
		if !found {
			return Absent
		}
		cur = v
	}
	return applyCoercion(cur, path.Coerce)
}

func applyCoercion(v Value, c Coercion) Value {
	switch c {
	case CoerceInt:
		if v.IsAbsent() {
			return Absent
		}
		i, ok := v.AsInt64()
		if !ok {
			return Absent
		}
		return Int64(i)
	case CoerceStr:
		if v.IsAbsent() {
			return Absent
		}
		s, ok := v.AsString()
		if !ok {
			return Absent
		}
		return String(s)
	default:
		return v
	}
}

// IterWildcard resolves a path that may contain a '*' segment, matching any
// key at that level, and returns every matching leaf value. Non-wildcard
// paths behave like Get wrapped in a single-element slice (or empty if
// Absent).
func IterWildcard(root Value, path Path) []Value {
	results := iterSegments(root, path.Segments)
	out := make([]Value, 0, len(results))
	for _, v := range results {
		cv := applyCoercion(v, path.Coerce)
		if !cv.IsAbsent() {
			out = append(out, cv)
		}
	}
	return out
}

func iterSegments(cur Value, segs []Segment) []Value {
	if len(segs) == 0 {
		return []Value{cur}
	}
	seg := segs[0]
	rest := segs[1:]

	if seg.IsIndex {
		seq, ok := cur.AsSequence()
		if !ok || seg.Index < 0 || seg.Index >= len(seq) {
			return nil
		}
		return iterSegments(seq[seg.Index], rest)
	}

	if seg.Key == "*" {
		m, ok := cur.AsMap()
		if !ok {
			return nil
		}
		var out []Value
		for _, v := range m {
			out = append(out, iterSegments(v, rest)...)
		}
		return out
	}

	m, ok := cur.AsMap()
	if !ok {
		return nil
	}
	v, found := m[seg.Key]
	if !found {
		return nil
	}
	return iterSegments(v, rest)
}
