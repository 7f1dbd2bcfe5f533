package sigma

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

func docFrom(fields map[string]interface{}) *document.Document {
	return document.FromMap(map[string]interface{}{
		"Event": map[string]interface{}{
			"EventData": fields,
		},
	})
}

func compileCondition(t *testing.T, detection Detection) (func(*document.Document) bool, error) {
	r := &Rule{ID: "test", Detection: detection}
	node, _, err := Compile(r, nil)
	if err != nil {
		return nil, err
	}
	return func(d *document.Document) bool {
		matched, _ := node.Match(d)
		return matched
	}, nil
}

func TestCompileSimpleEqSelection(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine": "evil.exe"},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"CommandLine": "evil.exe"})))
	assert.False(t, m(docFrom(map[string]interface{}{"CommandLine": "benign.exe"})))
}

func TestCompileContainsModifier(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine|contains": "mimikatz"},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"CommandLine": "c:\\tools\\mimikatz.exe"})))
}

func TestCompileAllOfSelections(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"sel1":      map[string]interface{}{"A": "1"},
		"sel2":      map[string]interface{}{"B": "2"},
		"condition": "all of them",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"A": "1", "B": "2"})))
	assert.False(t, m(docFrom(map[string]interface{}{"A": "1", "B": "x"})))
}

func TestCompileOneOfWildcardSelections(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection_1": map[string]interface{}{"A": "1"},
		"selection_2": map[string]interface{}{"A": "2"},
		"condition":   "1 of selection_*",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"A": "2"})))
}

func TestCompileBase64Modifier(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine|base64": "secret"},
		"condition": "selection",
	})
	require.NoError(t, err)
	enc := base64.StdEncoding.EncodeToString([]byte("secret"))
	assert.True(t, m(docFrom(map[string]interface{}{"CommandLine": "prefix-" + enc + "-suffix"})))
}

func TestCompileBase64OffsetAllThreeAlignments(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine|base64offset": "secret"},
		"condition": "selection",
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		buf := append(make([]byte, i), []byte("secret")...)
		enc := base64.StdEncoding.EncodeToString(buf)
		assert.True(t, m(docFrom(map[string]interface{}{"CommandLine": enc})), "offset %d should match", i)
	}
}

func TestCompileWindashModifier(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine": "-enc"},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"CommandLine": "-enc"})))

	m2, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"CommandLine|windash": "-enc"},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m2(docFrom(map[string]interface{}{"CommandLine": "/enc"})))
	assert.True(t, m2(docFrom(map[string]interface{}{"CommandLine": "\u2013enc"})))
	assert.True(t, m2(docFrom(map[string]interface{}{"CommandLine": "\u2014enc"})))
}

func TestCompileCidrModifier(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"DestinationIp|cidr": "10.0.0.0/8"},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{"DestinationIp": "10.1.2.3"})))
	assert.False(t, m(docFrom(map[string]interface{}{"DestinationIp": "192.168.1.1"})))
}

func TestCompileUnknownModifierDisablesRule(t *testing.T) {
	_, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"Field|bogus": "value"},
		"condition": "selection",
	})
	require.Error(t, err)
	var target ErrUnknownModifier
	assert.ErrorAs(t, err, &target)
}

func TestCompileUndefinedSelectionReferenceErrors(t *testing.T) {
	_, err := compileCondition(t, Detection{
		"sel1":      map[string]interface{}{"A": "1"},
		"condition": "sel1 and sel2",
	})
	require.Error(t, err)
}

func TestCompileNullValueMeansIsNull(t *testing.T) {
	m, err := compileCondition(t, Detection{
		"selection": map[string]interface{}{"ParentImage": nil},
		"condition": "selection",
	})
	require.NoError(t, err)
	assert.True(t, m(docFrom(map[string]interface{}{})))
	assert.False(t, m(docFrom(map[string]interface{}{"ParentImage": "cmd.exe"})))
}

func TestCompileFieldMapperResolvesAlias(t *testing.T) {
	r := &Rule{ID: "test", Detection: Detection{
		"selection": map[string]interface{}{"Image": "cmd.exe"},
		"condition": "selection",
	}}
	resolve := SimpleFieldResolver(map[string]string{"Image": "Event.EventData.NewProcessName"})
	node, _, err := Compile(r, resolve)
	require.NoError(t, err)
	matched, _ := node.Match(docFrom(map[string]interface{}{"NewProcessName": "cmd.exe"}))
	assert.True(t, matched)
}

func TestCompileSplitsAggregationSuffixOffCondition(t *testing.T) {
	r := &Rule{ID: "test", Detection: Detection{
		"selection": map[string]interface{}{"Image": "cmd.exe"},
		"condition": "selection | count() by Image > 5",
	}}
	node, spec, err := Compile(r, nil)
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, []string{"Event.EventData.Image"}, spec.Fields)
	assert.False(t, spec.Satisfied(5))
	assert.True(t, spec.Satisfied(6))

	matched, _ := node.Match(docFrom(map[string]interface{}{"Image": "cmd.exe"}))
	assert.True(t, matched)
}
