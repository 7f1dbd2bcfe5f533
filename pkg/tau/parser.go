package tau

import (
	"fmt"
	"sort"

	"github.com/gobwas/glob"
)

// Idents resolves a referenced name inside a condition expression (a Sigma
// selection name, or a Chainsaw named filter subexpression) to its already
// compiled Node.
type Idents map[string]Node

// Compile parses a condition expression (`sel1 and not sel2`, `1 of sel*`,
// `all of them`, parenthesised groups) against a set of already-compiled
// named subexpressions and returns the combined matcher tree. This is the
// shared grammar used by both the Sigma and Chainsaw compilers.
func Compile(expr string, idents Idents) (Node, error) {
	p := &parser{lex: lex(expr), idents: idents, previous: item{tok: tokBegin}, condition: expr}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.result, nil
}

type parser struct {
	lex       *lexer
	tokens    []item
	previous  item
	idents    Idents
	condition string
	result    Node
}

func (p *parser) run() error {
	if p.lex == nil {
		return fmt.Errorf("tau: cannot run condition parser, lexer not initialized")
	}
	if err := p.collect(); err != nil {
		return err
	}
	branch, err := newBranch(p.idents, p.tokens, 0)
	if err != nil {
		return err
	}
	p.result = branch
	return nil
}

func (p *parser) collect() error {
	for it := range p.lex.items {
		if it.tok == tokUnsupp {
			return fmt.Errorf("tau: unsupported token: %s", it.val)
		}
		if !validTokenSequence(p.previous.tok, it.tok) {
			return fmt.Errorf("tau: invalid token sequence: %s followed by %s in %q", p.previous.tok, it.tok, p.condition)
		}
		if it.tok != tokLitEof {
			p.tokens = append(p.tokens, it)
		}
		p.previous = it
	}
	if p.previous.tok != tokLitEof {
		return fmt.Errorf("tau: incomplete condition expression: %q", p.condition)
	}
	return nil
}

// validTokenSequence rejects a handful of nonsensical adjacent-token pairs
// before parsing.
func validTokenSequence(t1, t2 token) bool {
	switch t2 {
	case tokStAll, tokStOne:
		switch t1 {
		case tokBegin, tokSepLpar, tokKeywordAnd, tokKeywordOr, tokKeywordNot:
			return true
		}
	case tokIdentifierAll:
		switch t1 {
		case tokStAll, tokStOne:
			return true
		}
	case tokIdentifier, tokIdentifierWithWildcard:
		switch t1 {
		case tokSepLpar, tokBegin, tokKeywordAnd, tokKeywordOr, tokKeywordNot, tokStOne, tokStAll:
			return true
		}
	case tokKeywordAnd, tokKeywordOr:
		switch t1 {
		case tokIdentifier, tokIdentifierAll, tokIdentifierWithWildcard, tokSepRpar:
			return true
		}
	case tokKeywordNot:
		switch t1 {
		case tokKeywordAnd, tokKeywordOr, tokSepLpar, tokBegin:
			return true
		}
	case tokSepLpar:
		switch t1 {
		case tokKeywordAnd, tokKeywordOr, tokKeywordNot, tokBegin, tokSepLpar:
			return true
		}
	case tokSepRpar:
		switch t1 {
		case tokIdentifier, tokIdentifierAll, tokIdentifierWithWildcard, tokSepLpar, tokSepRpar:
			return true
		}
	case tokLitEof:
		switch t1 {
		case tokIdentifier, tokIdentifierAll, tokIdentifierWithWildcard, tokSepRpar:
			return true
		}
	}
	return false
}

// newBranch builds a binary tree from a flat token list. Sequence and group
// validation has already been done in parser.collect.
func newBranch(idents Idents, tokens []item, depth int) (Node, error) {
	rx := genItems(tokens)

	and := make(And, 0)
	or := make(Or, 0)
	var negated bool
	var quantifier token

	for it := range rx {
		switch it.tok {
		case tokIdentifier:
			n, ok := idents[it.val]
			if !ok {
				return nil, fmt.Errorf("tau: condition references unknown identifier %q", it.val)
			}
			and = append(and, negateIf(n, negated))
			negated = false
		case tokKeywordAnd:
		case tokKeywordOr:
			or = append(or, and.Reduce())
			and = make(And, 0)
		case tokKeywordNot:
			negated = true
		case tokSepLpar:
			b, err := newBranch(idents, extractGroup(rx), depth+1)
			if err != nil {
				return nil, err
			}
			and = append(and, negateIf(b, negated))
			negated = false
		case tokIdentifierAll:
			n, err := combineAll(idents, quantifier)
			if err != nil {
				return nil, err
			}
			and = append(and, negateIf(n, negated))
			negated = false
			quantifier = tokBegin
		case tokIdentifierWithWildcard:
			n, err := combineWildcard(idents, it.val, quantifier)
			if err != nil {
				return nil, err
			}
			and = append(and, negateIf(n, negated))
			negated = false
			quantifier = tokBegin
		case tokStAll:
			quantifier = tokStAll
		case tokStOne:
			quantifier = tokStOne
		case tokSepRpar:
			return nil, fmt.Errorf("tau: parser error, unexpected %s", tokSepRpar)
		default:
			return nil, fmt.Errorf("tau: unsupported token %s (%s)", it.tok, it.tok.literal())
		}
	}
	or = append(or, negateIf(and.Reduce(), negated))
	return or.Reduce(), nil
}

func negateIf(n Node, negated bool) Node {
	if negated {
		return Not{Node: n}
	}
	return n
}

func combineAll(idents Idents, quantifier token) (Node, error) {
	if quantifier != tokStAll && quantifier != tokStOne {
		return nil, fmt.Errorf("tau: 'them' must follow '1 of' or 'all of'")
	}
	nodes := make(And, 0, len(idents))
	for _, name := range sortedKeys(idents) {
		nodes = append(nodes, idents[name])
	}
	if quantifier == tokStOne {
		return Or(nodes).Reduce(), nil
	}
	return nodes.Reduce(), nil
}

func combineWildcard(idents Idents, pattern string, quantifier token) (Node, error) {
	if quantifier != tokStAll && quantifier != tokStOne {
		return nil, fmt.Errorf("tau: wildcard identifier %q must follow '1 of' or 'all of'", pattern)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("tau: compile wildcard identifier %q: %w", pattern, err)
	}
	nodes := make(And, 0)
	for _, name := range sortedKeys(idents) {
		if g.Match(name) {
			nodes = append(nodes, idents[name])
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("tau: wildcard identifier %q matched no selections", pattern)
	}
	if quantifier == tokStOne {
		return Or(nodes).Reduce(), nil
	}
	return nodes.Reduce(), nil
}

func sortedKeys(idents Idents) []string {
	keys := make([]string, 0, len(idents))
	for k := range idents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// extractGroup consumes tokens until the matching closing paren, balancing
// nested groups. Called right after TokSepLpar has already been consumed,
// so balance starts at 1.
func extractGroup(rx <-chan item) []item {
	balance := 1
	group := make([]item, 0)
	for it := range rx {
		if balance > 0 {
			group = append(group, it)
		}
		switch it.tok {
		case tokSepLpar:
			balance++
		case tokSepRpar:
			balance--
			if balance == 0 {
				return group[:len(group)-1]
			}
		}
	}
	return group
}

// genItems streams a flat slice of tokens back out as a channel so newBranch
// can consume it the same way it consumes the live lexer output.
func genItems(tokens []item) <-chan item {
	out := make(chan item)
	go func() {
		defer close(out)
		for _, it := range tokens {
			out <- it
		}
	}()
	return out
}
