package chainsaw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

func docFrom(fields map[string]interface{}) *document.Document {
	return document.FromMap(map[string]interface{}{"Event": map[string]interface{}{"EventData": fields}})
}

func TestCompileEqFilter(t *testing.T) {
	r := &Rule{Title: "t", Filter: Filter{
		"selection": map[string]interface{}{"Event.EventData.EventID": "1"},
		"condition": "selection",
	}}
	node, _, err := Compile(r)
	require.NoError(t, err)
	matched, _ := node.Match(docFrom(map[string]interface{}{"EventID": "1"}))
	assert.True(t, matched)
}

func TestCompileOperatorClause(t *testing.T) {
	r := &Rule{Title: "t", Filter: Filter{
		"selection": map[string]interface{}{
			"Event.EventData.CommandLine": map[string]interface{}{"contains": "evil"},
		},
		"condition": "selection",
	}}
	node, _, err := Compile(r)
	require.NoError(t, err)
	matched, _ := node.Match(docFrom(map[string]interface{}{"CommandLine": "run evil.exe"}))
	assert.True(t, matched)
}

func TestCompileUnknownOperatorErrors(t *testing.T) {
	r := &Rule{Title: "t", Filter: Filter{
		"selection": map[string]interface{}{
			"Event.EventData.X": map[string]interface{}{"bogus": "1"},
		},
		"condition": "selection",
	}}
	_, _, err := Compile(r)
	require.Error(t, err)
	var target ErrUnknownOperator
	assert.ErrorAs(t, err, &target)
}

func TestCompileNamedSubexpressionsCombineWithAndOr(t *testing.T) {
	r := &Rule{Title: "t", Filter: Filter{
		"sel1":      map[string]interface{}{"Event.EventData.A": "1"},
		"sel2":      map[string]interface{}{"Event.EventData.B": "2"},
		"condition": "sel1 or sel2",
	}}
	node, _, err := Compile(r)
	require.NoError(t, err)
	matched, _ := node.Match(docFrom(map[string]interface{}{"A": "nope", "B": "2"}))
	assert.True(t, matched)
}

func TestCompileRewritesContainerFieldReferenceInFilter(t *testing.T) {
	r := &Rule{
		Title:  "t",
		Fields: []Field{{Name: "sha1", From: "Event.EventData.Hashes.SHA1", Container: Container{Field: "Event.EventData.Hashes", Format: "kv", Delimiter: ";", Separator: "="}}},
		Filter: Filter{
			"selection": map[string]interface{}{"Event.EventData.Hashes.SHA1": "deadbeef"},
			"condition": "selection",
		},
	}
	node, _, err := Compile(r)
	require.NoError(t, err)
	matched, _ := node.Match(docFrom(map[string]interface{}{"Hashes": "SHA1=deadbeef;MD5=cafebabe"}))
	assert.True(t, matched)
}

func TestCompileParsesTopLevelAggregateBlock(t *testing.T) {
	r := &Rule{Title: "t", Filter: Filter{
		"selection": map[string]interface{}{"Event.EventData.EventID": "1"},
		"condition": "selection",
	}, Aggregate: &AggregateSpec{Count: ">=3", Fields: []string{"Event.EventData.Image"}}}
	_, spec, err := Compile(r)
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, []string{"Event.EventData.Image"}, spec.Fields)
	assert.True(t, spec.Satisfied(3))
}

func TestContainerKVSubfieldAccessibleByDottedPath(t *testing.T) {
	d := docFrom(map[string]interface{}{"Hashes": "SHA1=deadbeef;MD5=cafebabe"})
	spec := ContainerSpec(Container{Field: "Event.EventData.Hashes", Format: "kv", Delimiter: ";", Separator: "="})
	view := d.Container(spec)
	m, ok := view.AsMap()
	require.True(t, ok)
	sha1, ok := m["SHA1"].AsString()
	require.True(t, ok)
	assert.Equal(t, "deadbeef", sha1)
}
