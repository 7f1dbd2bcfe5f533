package sigma

import (
	"fmt"

	"github.com/WithSecureLabs/chainsaw/pkg/aggregate"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// Compile translates a Sigma rule's detection block into the shared tau
// matcher IR: each selection becomes a compiled subtree, and the condition
// expression folds them together (4.C steps 1-4). The returned node does
// not yet carry the resolved precondition filter — callers AND that in
// separately (4.C step 5), since preconditions are a mapping-layer concern.
// A condition carrying a " | count() by field > N" suffix yields a non-nil
// *aggregate.Spec; the returned Node compiles only the bare boolean part.
func Compile(r *Rule, resolve FieldResolver) (tau.Node, *aggregate.Spec, error) {
	if r.Detection == nil {
		return nil, nil, ErrMissingDetection{}
	}
	condition, ok := r.Detection.Condition()
	if !ok {
		return nil, nil, ErrMissingCondition{RuleID: r.ID}
	}

	condition, spec, err := aggregate.ParseConditionSuffix(condition)
	if err != nil {
		return nil, nil, fmt.Errorf("sigma rule %s: %w", r.ID, err)
	}
	if spec != nil {
		for i, field := range spec.Fields {
			spec.Fields[i] = resolvePath(field, resolve).String()
		}
	}

	idents := make(tau.Idents)
	for name, raw := range r.Detection.Selections() {
		node, err := compileSelection(r.ID, name, raw, resolve)
		if err != nil {
			return nil, nil, err
		}
		idents[name] = node
	}

	tree, err := tau.Compile(condition, idents)
	if err != nil {
		return nil, nil, fmt.Errorf("sigma rule %s: %w", r.ID, err)
	}
	return tree, spec, nil
}

// compileSelection builds the subtree for one named selection. A selection
// is either:
//   - a map of field|modifiers -> value, ANDed together, or
//   - a list of such maps, ORed together (multiple alternative selections
//     sharing one name), or
//   - a bare list of keyword strings (Sigma's "keyword list" form), ORed
//     together, each compiled like a plain value of a field named
//     "keyword" (Event.EventData.keyword unless the resolver maps it); the
//     record's other fields are not searched.
func compileSelection(ruleID, name string, raw interface{}, resolve FieldResolver) (tau.Node, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		return compileFieldMap(ruleID, name, v, resolve)
	case map[interface{}]interface{}:
		return compileFieldMap(ruleID, name, cleanMap(v), resolve)
	case []interface{}:
		if len(v) == 0 {
			return nil, ErrEmptySelection{RuleID: ruleID, Selection: name}
		}
		or := make(tau.Or, 0, len(v))
		for _, item := range v {
			switch iv := item.(type) {
			case map[string]interface{}:
				n, err := compileFieldMap(ruleID, name, iv, resolve)
				if err != nil {
					return nil, err
				}
				or = append(or, n)
			case map[interface{}]interface{}:
				n, err := compileFieldMap(ruleID, name, cleanMap(iv), resolve)
				if err != nil {
					return nil, err
				}
				or = append(or, n)
			default:
				n, err := compileValuePredicate(ruleID, "keyword", item, resolve)
				if err != nil {
					return nil, err
				}
				or = append(or, n)
			}
		}
		return or.Reduce(), nil
	default:
		return nil, ErrEmptySelection{RuleID: ruleID, Selection: name}
	}
}

func compileFieldMap(ruleID, name string, fields map[string]interface{}, resolve FieldResolver) (tau.Node, error) {
	if len(fields) == 0 {
		return nil, ErrEmptySelection{RuleID: ruleID, Selection: name}
	}
	and := make(tau.And, 0, len(fields))
	for key, value := range fields {
		n, err := compileValuePredicate(ruleID, key, value, resolve)
		if err != nil {
			return nil, err
		}
		and = append(and, n)
	}
	return and.Reduce(), nil
}

func cleanMap(in map[interface{}]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[fmt.Sprintf("%v", k)] = v
	}
	return out
}

// Matches reports whether a rule's logsource equals, field by field, every
// selector key (product, category, service, definition); any other key
// fails the match. Exposed here because the Rust
// original resolves preconditions against the rule's own logsource struct
// (rule/sigma.rs Document::find), and that comparison belongs next to the
// Logsource type it reads.
func (l Logsource) Matches(selector map[string]string) bool {
	for k, v := range selector {
		switch k {
		case "product":
			if l.Product != v {
				return false
			}
		case "category":
			if l.Category != v {
				return false
			}
		case "service":
			if l.Service != v {
				return false
			}
		case "definition":
			if l.Definition != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}
