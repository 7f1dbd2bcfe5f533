package tau

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

// NewEqPredicate builds an Eq predicate over one or more literal values.
// A literal containing unescaped '*'/'?' is compiled as a Glob predicate
// instead, matching Sigma's implicit-wildcard rule for plain string values.
// Negation is applied by the caller wrapping the returned Node in tau.Not
// at the tree level rather than threading a negated flag through here.
func NewEqPredicate(path document.Path, values []string, cased bool, quantify Quantifier) (Predicate, error) {
	var globs, literals []string
	for _, v := range values {
		if strings.ContainsAny(v, "*?") {
			globs = append(globs, v)
		} else {
			literals = append(literals, v)
		}
	}
	if len(globs) > 0 {
		// mixed literal/wildcard value list: fall back to glob compilation
		// for all of them, since glob.Compile degrades gracefully to a
		// literal match when there's nothing to expand.
		return NewGlobPredicate(path, append(literals, globs...), cased, quantify)
	}

	operand := Operand{List: stringsToValues(literals)}
	if len(literals) == 1 {
		operand = Operand{Scalar: document.String(literals[0])}
	}
	return Predicate{Path: path, Op: OpEq, Operand: operand, Cased: cased, Quantify: quantify}, nil
}

// NewNePredicate builds a direct Ne predicate, used by the Chainsaw filter
// grammar's explicit `ne` operator clauses where Sigma would instead negate an
// Eq node with `not`.
func NewNePredicate(path document.Path, values []string, cased bool, quantify Quantifier) Predicate {
	operand := Operand{List: stringsToValues(values)}
	if len(values) == 1 {
		operand = Operand{Scalar: document.String(values[0])}
	}
	return Predicate{Path: path, Op: OpNe, Operand: operand, Cased: cased, Quantify: quantify}
}

// NewContainsPredicate builds a Contains/StartsWith/EndsWith predicate,
// picking the operator from the Sigma modifier name.
func NewContainsPredicate(path document.Path, op Op, values []string, cased bool, quantify Quantifier) Predicate {
	return Predicate{
		Path:     path,
		Op:       op,
		Operand:  Operand{List: stringsToValues(values)},
		Cased:    cased,
		Quantify: quantify,
	}
}

// NewGlobPredicate compiles one or more `*`/`?` wildcard patterns into a
// single OR'd glob operand, translating Sigma's escaping rules the way the
// teacher's pattern.go does for gobwas/glob compilation.
func NewGlobPredicate(path document.Path, patterns []string, cased bool, quantify Quantifier) (Predicate, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(escapeSigmaForGlob(p))
		if err != nil {
			return Predicate{}, fmt.Errorf("compile glob %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	pred := Predicate{Path: path, Op: OpGlob, Cased: cased, Quantify: quantify}
	if len(compiled) == 1 {
		pred.Operand = Operand{Glob: compiled[0]}
		return pred, nil
	}
	pred.Operand = Operand{Glob: orGlob(compiled)}
	return pred, nil
}

func orGlob(gs []glob.Glob) glob.Glob {
	if len(gs) == 1 {
		return gs[0]
	}
	return globAdapter{gs}
}

type globAdapter struct{ gs []glob.Glob }

func (g globAdapter) Match(s string) bool {
	for _, m := range g.gs {
		if m.Match(s) {
			return true
		}
	}
	return false
}

// NewRegexPredicate compiles a regex pattern exactly as given: the document
// model's general Eq case-folding is not applied, so case sensitivity is
// decided by the pattern's own flags. pkg/sigma prefixes a `|re`/`|regex`
// value with `(?i)` unless the field also carries `|cased`.
func NewRegexPredicate(path document.Path, pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile regex %q: %w", pattern, err)
	}
	return Predicate{Path: path, Op: OpRegex, Operand: Operand{Regex: re}, Cased: true}, nil
}

// NewCidrPredicate compiles a `|cidr` modifier value.
func NewCidrPredicate(path document.Path, cidr string) (Predicate, error) {
	if !strings.Contains(cidr, "/") {
		cidr = cidr + "/32"
		if strings.Contains(cidr, ":") {
			cidr = strings.TrimSuffix(cidr, "/32") + "/128"
		}
	}
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile cidr %q: %w", cidr, err)
	}
	return Predicate{Path: path, Op: OpCidr, Operand: Operand{Cidr: ipnet}}, nil
}

// NewNumericPredicate builds a Gt/Ge/Lt/Le predicate from a numeric
// modifier value.
func NewNumericPredicate(path document.Path, op Op, value string) (Predicate, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile numeric operand %q: %w", value, err)
	}
	return Predicate{Path: path, Op: op, Operand: Operand{Scalar: document.Float(f)}}, nil
}

// NewIsNullPredicate builds an IsNull predicate for a `null` detection
// value.
func NewIsNullPredicate(path document.Path) Predicate {
	return Predicate{Path: path, Op: OpIsNull}
}

// NewExistsPredicate builds an Exists predicate for a Chainsaw `exists`
// filter clause.
func NewExistsPredicate(path document.Path) Predicate {
	return Predicate{Path: path, Op: OpExists}
}

func stringsToValues(ss []string) []document.Value {
	out := make([]document.Value, 0, len(ss))
	for _, s := range ss {
		out = append(out, document.String(s))
	}
	return out
}

const (
	sigmaWildcard  = byte('*')
	sigmaSingle    = byte('?')
	sigmaEscape    = byte('\\')
	globSqrLeft    = byte('[')
	globSqrRight   = byte(']')
	globCurlyLeft  = byte('{')
	globCurlyRight = byte('}')
)

// escapeSigmaForGlob translates Sigma's backslash-escaping convention into
// gobwas/glob's, escaping glob metacharacters that Sigma treats as literal.
func escapeSigmaForGlob(str string) string {
	if str == "" {
		return ""
	}
	isBracket := func(b byte) bool {
		return b == globSqrLeft || b == globSqrRight || b == globCurlyLeft || b == globCurlyRight
	}

	sLen := len(str)
	replStr := make([]byte, 2*sLen)
	x := (2 * sLen) - 1

	wildcard := false
	slashCnt := 0
	for i := sLen - 1; i >= 0; i-- {
		switch str[i] {
		case sigmaWildcard, sigmaSingle:
			wildcard = true
		case sigmaEscape:
			if !wildcard {
				slashCnt++
			}
		default:
			wildcard = false
		}

		if str[i] != sigmaEscape && slashCnt > 0 {
			if slashCnt%2 != 0 {
				replStr[x] = sigmaEscape
				x--
			}
			slashCnt = 0
		}

		replStr[x] = str[i]
		x--

		if isBracket(str[i]) {
			replStr[x] = sigmaEscape
			x--
		}
	}

	if slashCnt%2 != 0 {
		replStr[x] = sigmaEscape
	} else {
		x++
	}

	return string(replStr[x:])
}
