// Package tau implements the boolean matcher IR shared by the Sigma and
// Chainsaw rule compilers: a small tree of And/Or/Not/Predicate nodes with
// short-circuit evaluation, plus the condition-expression lexer and parser
// used to stitch named subexpressions ("selections" in Sigma, named filter
// blocks in Chainsaw) together.
package tau

import "github.com/WithSecureLabs/chainsaw/pkg/document"

// Node is the interface every matcher IR element implements.
//
// Match returns (matched, applicable). applicable is false when the node
// could not be meaningfully evaluated against the document (for example a
// predicate whose target path is entirely Absent and whose operator is not
// IsNull/Exists) — callers combine applicable across subtrees so that an
// inapplicable subtree never silently forces a match.
type Node interface {
	Match(d *document.Document) (matched, applicable bool)
}

// And is a logical conjunction of one or more nodes.
type And []Node

// Match implements Node with short-circuit evaluation: the first node to
// fail to match stops the walk.
func (a And) Match(d *document.Document) (bool, bool) {
	for _, n := range a {
		matched, applicable := n.Match(d)
		if !matched || !applicable {
			return matched, applicable
		}
	}
	return true, true
}

// Reduce collapses single-element conjunctions down to their sole child.
func (a And) Reduce() Node {
	if len(a) == 1 {
		return a[0]
	}
	return a
}

// Or is a logical disjunction of one or more nodes.
type Or []Node

// Match implements Node with short-circuit evaluation: the first node to
// match stops the walk.
func (o Or) Match(d *document.Document) (bool, bool) {
	var oneApplicable bool
	for _, n := range o {
		matched, applicable := n.Match(d)
		if matched {
			return true, true
		}
		if applicable {
			oneApplicable = true
		}
	}
	return false, oneApplicable
}

// Reduce collapses single-element disjunctions.
func (o Or) Reduce() Node {
	if len(o) == 1 {
		return o[0]
	}
	return o
}

// Not negates a single node. Negation only flips a conclusive match; an
// inapplicable child stays inapplicable rather than becoming a vacuous
// match.
type Not struct {
	Node Node
}

// Match implements Node.
func (n Not) Match(d *document.Document) (bool, bool) {
	matched, applicable := n.Node.Match(d)
	if !applicable {
		return matched, applicable
	}
	return !matched, applicable
}

// Static is a constant-valued leaf: it always reports its own value as an
// applicable match, without reference to the document.
type Static bool

// Match implements Node.
func (s Static) Match(*document.Document) (bool, bool) { return bool(s), true }
