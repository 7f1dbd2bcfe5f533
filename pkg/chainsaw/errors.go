package chainsaw

import "fmt"

// ErrMissingFilter indicates a Chainsaw rule is missing its filter block.
type ErrMissingFilter struct{}

func (e ErrMissingFilter) Error() string { return "chainsaw rule is missing filter field" }

// ErrMissingCondition indicates a Chainsaw rule's filter block has no
// condition entry.
type ErrMissingCondition struct{ RuleTitle string }

func (e ErrMissingCondition) Error() string {
	return fmt.Sprintf("chainsaw rule %q is missing filter.condition", e.RuleTitle)
}

// ErrEmptyExpression indicates a named filter subexpression has no
// field/operator pairs.
type ErrEmptyExpression struct {
	RuleTitle, Name string
}

func (e ErrEmptyExpression) Error() string {
	return fmt.Sprintf("chainsaw rule %q: filter expression %q is empty", e.RuleTitle, e.Name)
}

// ErrUnknownOperator indicates a named filter subexpression used an
// operator keyword this compiler does not recognise.
type ErrUnknownOperator struct {
	RuleTitle, Field, Operator string
}

func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("chainsaw rule %q: field %q used unknown operator %q", e.RuleTitle, e.Field, e.Operator)
}
