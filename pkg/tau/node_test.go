package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

func doc(fields map[string]interface{}) *document.Document {
	return document.FromMap(fields)
}

func TestAndShortCircuits(t *testing.T) {
	d := doc(map[string]interface{}{"A": "1"})
	trueP := Predicate{Path: document.ParsePath("A"), Op: OpEq, Operand: Operand{Scalar: document.String("1")}}
	falseP := Predicate{Path: document.ParsePath("A"), Op: OpEq, Operand: Operand{Scalar: document.String("2")}}
	node := And{trueP, falseP}
	matched, applicable := node.Match(d)
	assert.False(t, matched)
	assert.True(t, applicable)
}

func TestOrMatchesOnFirstHit(t *testing.T) {
	d := doc(map[string]interface{}{"A": "1"})
	falseP := Predicate{Path: document.ParsePath("A"), Op: OpEq, Operand: Operand{Scalar: document.String("2")}}
	trueP := Predicate{Path: document.ParsePath("A"), Op: OpEq, Operand: Operand{Scalar: document.String("1")}}
	node := Or{falseP, trueP}
	matched, applicable := node.Match(d)
	assert.True(t, matched)
	assert.True(t, applicable)
}

func TestNotFlipsConclusiveMatchOnly(t *testing.T) {
	d := doc(map[string]interface{}{"A": "1"})
	absent := Predicate{Path: document.ParsePath("Missing"), Op: OpEq, Operand: Operand{Scalar: document.String("x")}}
	notAbsent := Not{Node: absent}
	matched, applicable := notAbsent.Match(d)
	assert.False(t, matched)
	assert.False(t, applicable)
}

func TestPredicateEqCaseInsensitiveByDefault(t *testing.T) {
	d := doc(map[string]interface{}{"A": "HELLO"})
	p := Predicate{Path: document.ParsePath("A"), Op: OpEq, Operand: Operand{Scalar: document.String("hello")}}
	matched, applicable := p.Match(d)
	assert.True(t, matched)
	assert.True(t, applicable)
}

func TestPredicateEqCasedRespectsCase(t *testing.T) {
	d := doc(map[string]interface{}{"A": "HELLO"})
	p := Predicate{Path: document.ParsePath("A"), Op: OpEq, Cased: true, Operand: Operand{Scalar: document.String("hello")}}
	matched, _ := p.Match(d)
	assert.False(t, matched)
}

func TestPredicateContainsOnSequenceDowngradesToAny(t *testing.T) {
	d := doc(map[string]interface{}{"A": []interface{}{"foo", "bar"}})
	p, err := NewGlobPredicate(document.ParsePath("A"), []string{"ba*"}, false, QuantifyAny)
	require.NoError(t, err)
	matched, applicable := p.Match(d)
	assert.True(t, matched)
	assert.True(t, applicable)
}

func TestPredicateQuantifyAllRequiresEveryElement(t *testing.T) {
	d := doc(map[string]interface{}{"A": []interface{}{"foo", "bar"}})
	p, err := NewGlobPredicate(document.ParsePath("A"), []string{"*a*"}, false, QuantifyAll)
	require.NoError(t, err)
	matched, _ := p.Match(d)
	assert.False(t, matched)
}

func TestPredicateBetween(t *testing.T) {
	d := doc(map[string]interface{}{"A": 5})
	p := Predicate{Path: document.ParsePath("A"), Op: OpBetween, Operand: Operand{Low: document.Int64(1), High: document.Int64(10)}}
	matched, applicable := p.Match(d)
	assert.True(t, matched)
	assert.True(t, applicable)
}

func TestPredicateCidrMatch(t *testing.T) {
	d := doc(map[string]interface{}{"A": "10.0.0.5"})
	p, err := NewCidrPredicate(document.ParsePath("A"), "10.0.0.0/8")
	require.NoError(t, err)
	matched, _ := p.Match(d)
	assert.True(t, matched)
}

func TestPredicateCidrNonParsableTargetIsNonMatchNotError(t *testing.T) {
	d := doc(map[string]interface{}{"A": "not-an-ip"})
	p, err := NewCidrPredicate(document.ParsePath("A"), "10.0.0.0/8")
	require.NoError(t, err)
	matched, applicable := p.Match(d)
	assert.False(t, matched)
	assert.True(t, applicable)
}

func TestPredicateIsNullMatchesAbsentAndNull(t *testing.T) {
	d := doc(map[string]interface{}{"A": nil})
	p := NewIsNullPredicate(document.ParsePath("A"))
	matched, _ := p.Match(d)
	assert.True(t, matched)

	p2 := NewIsNullPredicate(document.ParsePath("Missing"))
	matched2, _ := p2.Match(d)
	assert.True(t, matched2)
}

func TestPredicateExists(t *testing.T) {
	d := doc(map[string]interface{}{"A": "1"})
	p := NewExistsPredicate(document.ParsePath("A"))
	matched, applicable := p.Match(d)
	assert.True(t, matched)
	assert.True(t, applicable)

	p2 := NewExistsPredicate(document.ParsePath("Missing"))
	matched2, applicable2 := p2.Match(d)
	assert.False(t, matched2)
	assert.True(t, applicable2)
}
