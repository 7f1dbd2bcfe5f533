package sigma

import "fmt"

// ErrMissingDetection indicates a Sigma rule is missing its detection field.
type ErrMissingDetection struct{}

func (e ErrMissingDetection) Error() string { return "sigma rule is missing detection field" }

// ErrMissingCondition indicates a Sigma rule's detection block has no
// condition entry.
type ErrMissingCondition struct{ RuleID string }

func (e ErrMissingCondition) Error() string {
	return fmt.Sprintf("sigma rule %s is missing detection.condition", e.RuleID)
}

// ErrEmptySelection indicates a selection block has no field/value pairs,
// a compile-time error per the selection grammar.
type ErrEmptySelection struct {
	RuleID, Selection string
}

func (e ErrEmptySelection) Error() string {
	return fmt.Sprintf("sigma rule %s: selection %q is empty", e.RuleID, e.Selection)
}

// ErrUnknownModifier indicates a selection field key carried a modifier
// this compiler does not recognise. The rule is disabled.
type ErrUnknownModifier struct {
	RuleID, Field, Modifier string
}

func (e ErrUnknownModifier) Error() string {
	return fmt.Sprintf("sigma rule %s: field %q has unknown modifier %q", e.RuleID, e.Field, e.Modifier)
}

// ErrNoPrecondition indicates a rule's logsource matched no precondition in
// the supplied mapping and no default-admission flag was set.
type ErrNoPrecondition struct {
	RuleID string
	Logsource
}

func (e ErrNoPrecondition) Error() string {
	return fmt.Sprintf("sigma rule %s: no precondition for logsource %+v", e.RuleID, e.Logsource)
}
