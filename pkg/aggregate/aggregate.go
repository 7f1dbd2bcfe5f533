// Package aggregate implements the one bounded, per-file, per-rule
// correlation feature both rule dialects carry: bucket hits by a hash of
// a fixed field set and only surface the bucket once its size satisfies a
// count comparison. Grounded on original_source/src/rule/mod.rs's
// Aggregate{count: Pattern, fields: Vec<String>} and the pipe-suffix
// parsing in rule/sigma.rs::prepare_condition ("selection | count() by
// Field > N").
package aggregate

import (
	"fmt"
	"strconv"
	"strings"
)

// Comparator is the operator a Spec's count threshold is compared with.
type Comparator int

const (
	ComparatorEq Comparator = iota
	ComparatorGt
	ComparatorGe
	ComparatorLt
	ComparatorLe
)

// Spec is one rule's aggregation declaration: group hits by Fields, and
// only emit a bucket once its running count satisfies Comparator Count.
type Spec struct {
	Comparator Comparator
	Count      int64
	Fields     []string
}

// Satisfied reports whether a bucket holding n hits meets the threshold.
func (s *Spec) Satisfied(n int64) bool {
	switch s.Comparator {
	case ComparatorGt:
		return n > s.Count
	case ComparatorGe:
		return n >= s.Count
	case ComparatorLt:
		return n < s.Count
	case ComparatorLe:
		return n <= s.Count
	default:
		return n == s.Count
	}
}

// ParsePattern parses a count comparison such as ">5", ">=3", "==1", "<10"
// or a bare "3" (defaulting to ComparatorEq), the shape
// rule/sigma.rs::prepare_condition builds before tau_engine's own numeric
// Pattern parser consumes it.
func ParsePattern(pattern string) (Comparator, int64, error) {
	pattern = strings.TrimSpace(pattern)
	cmp := ComparatorEq
	rest := pattern
	switch {
	case strings.HasPrefix(pattern, ">="):
		cmp, rest = ComparatorGe, pattern[2:]
	case strings.HasPrefix(pattern, "<="):
		cmp, rest = ComparatorLe, pattern[2:]
	case strings.HasPrefix(pattern, "=="):
		cmp, rest = ComparatorEq, pattern[2:]
	case strings.HasPrefix(pattern, ">"):
		cmp, rest = ComparatorGt, pattern[1:]
	case strings.HasPrefix(pattern, "<"):
		cmp, rest = ComparatorLt, pattern[1:]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate: invalid count pattern %q: %w", pattern, err)
	}
	return cmp, n, nil
}

// New builds a Spec from a raw count pattern string and its group-by
// fields.
func New(pattern string, fields []string) (*Spec, error) {
	cmp, n, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return &Spec{Comparator: cmp, Count: n, Fields: fields}, nil
}

// ParseConditionSuffix splits a Sigma condition string on its optional
// " | count(...) [by field] comparison value" aggregation suffix, per
// rule/sigma.rs::prepare_condition. It returns the bare boolean condition
// and, if present, the parsed Spec.
func ParseConditionSuffix(condition string) (string, *Spec, error) {
	base, agg, ok := strings.Cut(condition, " | ")
	if !ok {
		return condition, nil, nil
	}

	fields := []string{}
	parts := strings.Fields(agg)
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("aggregate: empty aggregation expression")
	}

	fn := parts[0]
	inner := strings.TrimSuffix(strings.TrimPrefix(fn, "count("), ")")
	if !strings.HasPrefix(fn, "count(") || !strings.HasSuffix(fn, ")") {
		return "", nil, fmt.Errorf("aggregate: unsupported aggregation function %q", fn)
	}
	if inner != "" {
		fields = append(fields, inner)
	}
	parts = parts[1:]

	if len(parts) == 0 {
		return "", nil, fmt.Errorf("aggregate: missing comparison after count()")
	}
	if parts[0] == "by" {
		if len(parts) < 2 {
			return "", nil, fmt.Errorf("aggregate: missing group field after 'by'")
		}
		fields = append(fields, parts[1])
		parts = parts[2:]
	}
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("aggregate: expected 'comparator value', got %q", agg)
	}

	spec, err := New(parts[0]+parts[1], fields)
	if err != nil {
		return "", nil, err
	}
	return base, spec, nil
}
