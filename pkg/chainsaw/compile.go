package chainsaw

import (
	"fmt"
	"strings"

	"github.com/WithSecureLabs/chainsaw/pkg/aggregate"
	"github.com/WithSecureLabs/chainsaw/pkg/document"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// Compile translates a Chainsaw rule's filter block into the shared tau
// matcher IR. Every field that carries a Container mapping is rewritten
// to read through document.Document.Container instead of a plain path, so
// a condition like `Hashes.SHA1` transparently reads the kv-parsed
// subfield of the raw `Hashes` string. Unlike Sigma, a Chainsaw rule's
// aggregation is its own top-level `aggregate:` key rather than a suffix
// folded into the condition string, so it is parsed straight off r.Aggregate.
func Compile(r *Rule) (tau.Node, *aggregate.Spec, error) {
	if r.Filter == nil {
		return nil, nil, ErrMissingFilter{}
	}
	condition, ok := r.Filter.Condition()
	if !ok {
		return nil, nil, ErrMissingCondition{RuleTitle: r.Title}
	}

	containers := containerIndex(r.Fields)

	idents := make(tau.Idents)
	for name, raw := range r.Filter.Expressions() {
		node, err := compileExpression(r.Title, name, raw, containers)
		if err != nil {
			return nil, nil, err
		}
		idents[name] = node
	}

	tree, err := tau.Compile(condition, idents)
	if err != nil {
		return nil, nil, fmt.Errorf("chainsaw rule %q: %w", r.Title, err)
	}

	var spec *aggregate.Spec
	if r.Aggregate != nil {
		spec, err = aggregate.New(r.Aggregate.Count, r.Aggregate.Fields)
		if err != nil {
			return nil, nil, fmt.Errorf("chainsaw rule %q: %w", r.Title, err)
		}
	}
	return tree, spec, nil
}

// containerIndex collects every field's container declaration, keyed by
// the raw field path it decomposes, so compileClause can recognise a
// reference into one of its subfields (e.g. "Hashes.SHA1" once "Hashes" is
// declared as a container field).
func containerIndex(fields []Field) map[string]document.ContainerSpec {
	out := make(map[string]document.ContainerSpec)
	for _, f := range fields {
		if f.Container.Field != "" {
			out[f.Container.Field] = ContainerSpec(f.Container)
		}
	}
	return out
}

// resolveFieldPath parses field as a dotted path, rewriting it to read
// through a container's parsed subfield view when its prefix matches a
// declared container field.
func resolveFieldPath(field string, containers map[string]document.ContainerSpec) document.Path {
	for containerField, spec := range containers {
		prefix := containerField + "."
		if strings.HasPrefix(field, prefix) {
			return document.ParsePath(strings.TrimPrefix(field, prefix)).WithContainer(spec)
		}
	}
	return document.ParsePath(field)
}

// compileExpression compiles one named filter subexpression: a map of
// field -> operator clause, ANDed together. A clause is either a bare
// scalar/list (equality), or a single-key map naming an operator
// (contains, starts_with, ends_with, regex, cidr, gt, gte, lt, lte,
// exists, is_null).
func compileExpression(ruleTitle, name string, raw interface{}, containers map[string]document.ContainerSpec) (tau.Node, error) {
	fields, ok := asStringMap(raw)
	if !ok || len(fields) == 0 {
		return nil, ErrEmptyExpression{RuleTitle: ruleTitle, Name: name}
	}

	and := make(tau.And, 0, len(fields))
	for field, clause := range fields {
		n, err := compileClause(ruleTitle, field, clause, containers)
		if err != nil {
			return nil, err
		}
		and = append(and, n)
	}
	return and.Reduce(), nil
}

func compileClause(ruleTitle, field string, clause interface{}, containers map[string]document.ContainerSpec) (tau.Node, error) {
	path := resolveFieldPath(field, containers)

	if opMap, ok := asStringMap(clause); ok && len(opMap) == 1 {
		for op, val := range opMap {
			return compileOperator(ruleTitle, field, path, op, val)
		}
	}

	values, isNull := toStringValues(clause)
	if isNull {
		return tau.NewIsNullPredicate(path), nil
	}
	return tau.NewEqPredicate(path, values, false, tau.QuantifyAny)
}

func compileOperator(ruleTitle, field string, path document.Path, op string, val interface{}) (tau.Node, error) {
	values, isNull := toStringValues(val)
	switch op {
	case "eq", "equals":
		if isNull {
			return tau.NewIsNullPredicate(path), nil
		}
		return tau.NewEqPredicate(path, values, false, tau.QuantifyAny)
	case "ne", "not_equals":
		return tau.NewNePredicate(path, values, false, tau.QuantifyAny), nil
	case "contains":
		return tau.NewContainsPredicate(path, tau.OpContains, values, false, tau.QuantifyAny), nil
	case "starts_with", "startswith":
		return tau.NewContainsPredicate(path, tau.OpStartsWith, values, false, tau.QuantifyAny), nil
	case "ends_with", "endswith":
		return tau.NewContainsPredicate(path, tau.OpEndsWith, values, false, tau.QuantifyAny), nil
	case "regex", "re":
		if len(values) != 1 {
			return nil, fmt.Errorf("chainsaw rule %q: field %q regex operator needs exactly one pattern", ruleTitle, field)
		}
		return tau.NewRegexPredicate(path, values[0])
	case "cidr":
		if len(values) != 1 {
			return nil, fmt.Errorf("chainsaw rule %q: field %q cidr operator needs exactly one network", ruleTitle, field)
		}
		return tau.NewCidrPredicate(path, values[0])
	case "gt":
		return numericOperator(path, tau.OpGt, values, ruleTitle, field)
	case "gte":
		return numericOperator(path, tau.OpGe, values, ruleTitle, field)
	case "lt":
		return numericOperator(path, tau.OpLt, values, ruleTitle, field)
	case "lte":
		return numericOperator(path, tau.OpLe, values, ruleTitle, field)
	case "exists":
		return tau.NewExistsPredicate(path), nil
	case "is_null":
		return tau.NewIsNullPredicate(path), nil
	default:
		return nil, ErrUnknownOperator{RuleTitle: ruleTitle, Field: field, Operator: op}
	}
}

func numericOperator(path document.Path, op tau.Op, values []string, ruleTitle, field string) (tau.Node, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("chainsaw rule %q: field %q needs exactly one numeric operand", ruleTitle, field)
	}
	return tau.NewNumericPredicate(path, op, values[0])
}

func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringValues(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, false
	case []string:
		return t, false
	default:
		return []string{fmt.Sprintf("%v", t)}, false
	}
}
