package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

func TestFieldMapperBypassModeWhenNoRenames(t *testing.T) {
	m := NewFieldMapper(nil)
	assert.Equal(t, ModeNone, m.Mode())
	_, ok := m.Resolve("Image")
	assert.False(t, ok)
}

func TestFieldMapperFastModeRenamesField(t *testing.T) {
	m := NewFieldMapper([]chainsaw.Field{
		{From: "Image", To: "Event.EventData.NewProcessName"},
	})
	assert.Equal(t, ModeFast, m.Mode())
	p, ok := m.Resolve("Image")
	require.True(t, ok)
	assert.Equal(t, "Event.EventData.NewProcessName", p.String())
}

func TestFieldMapperFullModeResolvesContainerSubfield(t *testing.T) {
	m := NewFieldMapper([]chainsaw.Field{
		{From: "Sha1Hash", To: "SHA1", Container: chainsaw.Container{
			Field: "Event.EventData.Hashes", Format: "kv", Delimiter: ";", Separator: "=",
		}},
	})
	assert.Equal(t, ModeFull, m.Mode())

	path, ok := m.Resolve("Sha1Hash")
	require.True(t, ok)
	require.NotNil(t, path.Container)

	d := document.FromMap(map[string]interface{}{
		"Event": map[string]interface{}{"EventData": map[string]interface{}{"Hashes": "SHA1=deadbeef;MD5=cafebabe"}},
	})
	v := d.GetPath(path)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "deadbeef", s)
}

func TestFieldMapperFullModeAppliesCast(t *testing.T) {
	m := NewFieldMapper([]chainsaw.Field{
		{From: "EventID", To: "Event.System.EventID", Cast: "int"},
	})
	path, ok := m.Resolve("EventID")
	require.True(t, ok)

	d := document.FromMap(map[string]interface{}{"Event": map[string]interface{}{"System": map[string]interface{}{"EventID": "4625"}}})
	v := d.GetPath(path)
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.EqualValues(t, 4625, i)
}
