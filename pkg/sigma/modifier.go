package sigma

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// FieldResolver maps a Sigma selection field name to the concrete path it
// should be read from, per the mapping's field table (4.D). The bool return
// is false for "no mapping entry", in which case the compiler falls back to
// the conventional Event.EventData.<field> location. A resolved Path may
// carry a container spec (see document.Path.WithContainer), letting a
// mapping route a selection field through a kv/json-decomposed subfield.
type FieldResolver func(field string) (document.Path, bool)

// SimpleFieldResolver adapts a plain from->to string table (the mapping's
// "fast mode", no container/cast fields) into a FieldResolver.
func SimpleFieldResolver(fields map[string]string) FieldResolver {
	return func(field string) (document.Path, bool) {
		to, ok := fields[field]
		if !ok {
			return document.Path{}, false
		}
		return document.ParsePath(to), true
	}
}

func resolvePath(field string, resolve FieldResolver) document.Path {
	if resolve != nil {
		if p, ok := resolve(field); ok {
			return p
		}
	}
	return document.ParsePath("Event.EventData." + field)
}

// modifiers is the ordered, parsed modifier suffix of a selection field key
// (e.g. "CommandLine|contains|all").
type modifiers struct {
	field string
	mods  []string
}

func parseFieldKey(key string) modifiers {
	parts := strings.Split(key, "|")
	return modifiers{field: parts[0], mods: parts[1:]}
}

func (m modifiers) has(name string) bool {
	for _, mod := range m.mods {
		if mod == name {
			return true
		}
	}
	return false
}

// compileValuePredicate builds the matcher node for one selection field,
// applying its modifier chain in the order 4.C describes, then combines it
// with the Or/And list aggregation the value type dictates.
func compileValuePredicate(ruleID string, key string, value interface{}, resolve FieldResolver) (tau.Node, error) {
	mk := parseFieldKey(key)
	path := resolvePath(mk.field, resolve)

	for _, mod := range mk.mods {
		switch mod {
		case "all", "cased", "contains", "startswith", "endswith", "re", "regex", "cidr",
			"base64", "base64offset", "windash", "gt", "gte", "lt", "lte", "utf16", "wide", "ascii":
			continue
		default:
			return nil, ErrUnknownModifier{RuleID: ruleID, Field: mk.field, Modifier: mod}
		}
	}

	values, isNullList := toValueList(value)
	all := mk.has("all")

	switch {
	case mk.has("contains"):
		return combineContains(path, tau.OpContains, values, all, isNullList)
	case mk.has("startswith"):
		return combineContains(path, tau.OpStartsWith, values, all, isNullList)
	case mk.has("endswith"):
		return combineContains(path, tau.OpEndsWith, values, all, isNullList)
	case mk.has("re") || mk.has("regex"):
		return combineRegex(path, values, mk.has("cased"))
	case mk.has("cidr"):
		return combineCidr(path, values)
	case mk.has("base64"):
		return combineBase64(ruleID, path, values, false, all)
	case mk.has("base64offset"):
		return combineBase64(ruleID, path, values, true, all)
	case mk.has("windash"):
		return combineWindash(path, values, all)
	case mk.has("gt"):
		return combineNumeric(path, tau.OpGt, values)
	case mk.has("gte"):
		return combineNumeric(path, tau.OpGe, values)
	case mk.has("lt"):
		return combineNumeric(path, tau.OpLt, values)
	case mk.has("lte"):
		return combineNumeric(path, tau.OpLe, values)
	case mk.has("utf16"), mk.has("wide"), mk.has("ascii"):
		// Accepted per 4.C: treated as raw byte encodings feeding the same
		// base64offset expansion, since that's how the original maps them
		// onto a byte-alignment search.
		return combineBase64(ruleID, path, values, true, all)
	}

	cased := mk.has("cased")
	return combineEq(path, values, all, cased, isNullList)
}

func toValueList(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, len(out) == 0
	case []string:
		return v, false
	default:
		return []string{fmt.Sprintf("%v", v)}, false
	}
}

func combineEq(path document.Path, values []string, all, cased, isNull bool) (tau.Node, error) {
	if isNull {
		return tau.NewIsNullPredicate(path), nil
	}
	quantify := tau.QuantifyAny
	if all {
		quantify = tau.QuantifyAll
	}
	p, err := tau.NewEqPredicate(path, values, cased, quantify)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func combineContains(path document.Path, op tau.Op, values []string, all, isNull bool) (tau.Node, error) {
	if isNull {
		return tau.NewIsNullPredicate(path), nil
	}
	quantify := tau.QuantifyAny
	if all {
		quantify = tau.QuantifyAll
	}
	return tau.NewContainsPredicate(path, op, values, false, quantify), nil
}

func combineRegex(path document.Path, values []string, cased bool) (tau.Node, error) {
	nodes := make(tau.Or, 0, len(values))
	for _, v := range values {
		if !cased {
			v = "(?i)" + v
		}
		p, err := tau.NewRegexPredicate(path, v)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, p)
	}
	return nodes.Reduce(), nil
}

func combineCidr(path document.Path, values []string) (tau.Node, error) {
	nodes := make(tau.Or, 0, len(values))
	for _, v := range values {
		p, err := tau.NewCidrPredicate(path, v)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, p)
	}
	return nodes.Reduce(), nil
}

func combineNumeric(path document.Path, op tau.Op, values []string) (tau.Node, error) {
	nodes := make(tau.Or, 0, len(values))
	for _, v := range values {
		p, err := tau.NewNumericPredicate(path, op, v)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, p)
	}
	return nodes.Reduce(), nil
}

// combineBase64 expands each value into its base64 (or, for offset, every
// 3-byte alignment of its base64) encoding and ORs the resulting substring
// matches together, per 4.C's base64/base64offset modifier rule.
func combineBase64(ruleID string, path document.Path, values []string, offset, all bool) (tau.Node, error) {
	encoded := make([]string, 0, len(values)*3)
	for _, v := range values {
		if !offset {
			encoded = append(encoded, base64.StdEncoding.EncodeToString([]byte(v)))
			continue
		}
		for i := 0; i < 3; i++ {
			buf := append(make([]byte, i), []byte(v)...)
			enc := base64.StdEncoding.EncodeToString(buf)
			trim := int(math.Ceil(float64(i) * 8 / 6))
			if trim > len(enc) {
				return nil, fmt.Errorf("sigma rule %s: base64offset produced empty alignment for %q", ruleID, v)
			}
			encoded = append(encoded, enc[trim:])
		}
	}
	quantify := tau.QuantifyAny
	if all {
		quantify = tau.QuantifyAll
	}
	return tau.NewContainsPredicate(path, tau.OpContains, encoded, true, quantify), nil
}

// combineWindash expands a leading '-' into the hyphen/slash/en-dash/em-dash
// variants Sigma's windash modifier covers, per (P5).
func combineWindash(path document.Path, values []string, all bool) (tau.Node, error) {
	variants := make([]string, 0, len(values)*4)
	for _, v := range values {
		if !strings.HasPrefix(v, "-") {
			variants = append(variants, v)
			continue
		}
		suffix := strings.TrimPrefix(v, "-")
		for _, dash := range []string{"-", "/", "–", "—"} {
			variants = append(variants, dash+suffix)
		}
	}
	quantify := tau.QuantifyAny
	if all {
		quantify = tau.QuantifyAll
	}
	p, err := tau.NewEqPredicate(path, variants, false, quantify)
	if err != nil {
		return nil, err
	}
	return p, nil
}
