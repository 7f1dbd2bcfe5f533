package tau

import (
	"net"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

// Op identifies a predicate's comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpContains
	OpStartsWith
	OpEndsWith
	OpRegex
	OpGlob
	OpCidr
	OpGt
	OpGe
	OpLt
	OpLe
	OpIsNull
	OpExists
	OpBetween
)

// Operand is the compiled right-hand side of a predicate. Exactly one of
// the typed fields is meaningful, decided by the owning Predicate's Op.
type Operand struct {
	Scalar   document.Value
	List     []document.Value
	Regex    *regexp.Regexp
	Glob     glob.Glob
	Cidr     *net.IPNet
	Low, High document.Value // OpBetween
}

// Predicate is a single leaf of the matcher tree: a field path compared
// against a compiled operand with a given operator.
type Predicate struct {
	Path     document.Path
	Op       Op
	Operand  Operand
	Cased    bool // disables the default case-insensitive string comparison
	Quantify Quantifier
}

// Quantifier controls how a predicate combines against a multi-value
// (sequence) path resolution.
type Quantifier int

const (
	// QuantifyAny matches if at least one element of the sequence matches
	// ("some element matches" per the path grammar's default downgrade).
	QuantifyAny Quantifier = iota
	// QuantifyAll matches only if every element of the sequence matches
	// (selected by a Sigma `|all` modifier).
	QuantifyAll
)

// Match implements Node.
func (p Predicate) Match(d *document.Document) (bool, bool) {
	if p.Op == OpExists {
		v := d.GetPath(p.Path)
		return !v.IsAbsent(), true
	}

	v := d.GetPath(p.Path)

	if p.Op == OpIsNull {
		return v.IsAbsent() || v.IsNull(), true
	}

	if v.IsAbsent() {
		return false, false
	}

	if seq, ok := v.AsSequence(); ok && v.Kind() == document.KindSequence {
		return p.matchSequence(seq)
	}

	return p.matchScalar(v), true
}

func (p Predicate) matchSequence(seq []document.Value) (bool, bool) {
	if len(seq) == 0 {
		return false, false
	}
	switch p.Quantify {
	case QuantifyAll:
		for _, v := range seq {
			if !p.matchScalar(v) {
				return false, true
			}
		}
		return true, true
	default:
		for _, v := range seq {
			if p.matchScalar(v) {
				return true, true
			}
		}
		return false, true
	}
}

func (p Predicate) matchScalar(v document.Value) bool {
	switch p.Op {
	case OpEq:
		return p.eq(v)
	case OpNe:
		return !p.eq(v)
	case OpContains:
		s, ok := stringOf(v, p.Cased)
		if !ok {
			return false
		}
		return containsAny(s, p.operandStrings(), p.Cased)
	case OpStartsWith:
		s, ok := stringOf(v, p.Cased)
		if !ok {
			return false
		}
		for _, o := range p.operandStrings() {
			if strings.HasPrefix(s, normalizeCase(o, p.Cased)) {
				return true
			}
		}
		return false
	case OpEndsWith:
		s, ok := stringOf(v, p.Cased)
		if !ok {
			return false
		}
		for _, o := range p.operandStrings() {
			if strings.HasSuffix(s, normalizeCase(o, p.Cased)) {
				return true
			}
		}
		return false
	case OpRegex:
		s, ok := v.AsString()
		if !ok {
			return false
		}
		return p.Operand.Regex.MatchString(s)
	case OpGlob:
		s, ok := stringOf(v, p.Cased)
		if !ok {
			return false
		}
		return p.Operand.Glob.Match(s)
	case OpCidr:
		s, ok := v.AsString()
		if !ok {
			return false
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return false
		}
		return p.Operand.Cidr.Contains(ip)
	case OpGt, OpGe, OpLt, OpLe:
		return p.compareNumeric(v)
	case OpBetween:
		f, ok := v.AsFloat64()
		if !ok {
			return false
		}
		low, lok := p.Operand.Low.AsFloat64()
		high, hok := p.Operand.High.AsFloat64()
		return lok && hok && f >= low && f <= high
	default:
		return false
	}
}

func (p Predicate) eq(v document.Value) bool {
	if fv, fok := v.AsFloat64(); fok {
		for _, cand := range p.operandScalars() {
			if iv, iok := cand.AsFloat64(); iok && iv == fv {
				return true
			}
		}
	}
	s, ok := stringOf(v, p.Cased)
	if !ok {
		return false
	}
	for _, o := range p.operandStrings() {
		if s == normalizeCase(o, p.Cased) {
			return true
		}
	}
	return false
}

func (p Predicate) compareNumeric(v document.Value) bool {
	fv, ok := v.AsFloat64()
	if !ok {
		return false
	}
	target, ok := p.Operand.Scalar.AsFloat64()
	if !ok {
		return false
	}
	switch p.Op {
	case OpGt:
		return fv > target
	case OpGe:
		return fv >= target
	case OpLt:
		return fv < target
	case OpLe:
		return fv <= target
	default:
		return false
	}
}

func (p Predicate) operandScalars() []document.Value {
	if p.Operand.List != nil {
		return p.Operand.List
	}
	return []document.Value{p.Operand.Scalar}
}

func (p Predicate) operandStrings() []string {
	out := make([]string, 0, 1)
	for _, v := range p.operandScalars() {
		if s, ok := v.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOf(v document.Value, cased bool) (string, bool) {
	s, ok := v.AsString()
	if !ok {
		return "", false
	}
	return normalizeCase(s, cased), true
}

func normalizeCase(s string, cased bool) string {
	if cased {
		return s
	}
	return strings.ToLower(s)
}

func containsAny(s string, candidates []string, cased bool) bool {
	for _, c := range candidates {
		if strings.Contains(s, normalizeCase(c, cased)) {
			return true
		}
	}
	return false
}
