package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *Document {
	return FromMap(map[string]interface{}{
		"Event": map[string]interface{}{
			"System": map[string]interface{}{
				"Provider": "Microsoft-Windows-Sysmon",
				"EventID":  "1",
			},
			"EventData": map[string]interface{}{
				"CommandLine": "powershell.exe -enc AAA",
				"Hashes":      "SHA1=abc;MD5=def",
				"Items": []interface{}{
					"first", "second", "third",
				},
			},
		},
	})
}

func TestGetDottedPath(t *testing.T) {
	d := sampleDoc()
	v := d.Get("Event.System.Provider")
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "Microsoft-Windows-Sysmon", s)
}

func TestGetMissingPathIsAbsentNotNull(t *testing.T) {
	d := sampleDoc()
	v := d.Get("Event.System.NoSuchField")
	assert.True(t, v.IsAbsent())
	assert.False(t, v.IsNull())
}

func TestGetSequenceIndex(t *testing.T) {
	d := sampleDoc()
	v := d.Get("Event.EventData.Items[1]")
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "second", s)
}

func TestGetSequenceIndexOutOfRange(t *testing.T) {
	d := sampleDoc()
	v := d.Get("Event.EventData.Items[99]")
	assert.True(t, v.IsAbsent())
}

func TestCoerceIntWrapper(t *testing.T) {
	d := sampleDoc()
	i, ok := d.CoerceInt("Event.System.EventID")
	require.True(t, ok)
	assert.Equal(t, int64(1), i)
}

func TestCoerceIntFailsCleanlyOnNonNumeric(t *testing.T) {
	d := sampleDoc()
	_, ok := d.CoerceInt("Event.System.Provider")
	assert.False(t, ok)
}

func TestCoerceStrWrapper(t *testing.T) {
	d := sampleDoc()
	s, ok := d.CoerceStr("Event.System.EventID")
	require.True(t, ok)
	assert.Equal(t, "1", s)
}

func TestWildcardMatchesAnyKeyAtLevel(t *testing.T) {
	d := sampleDoc()
	vals := d.IterWildcard("Event.*.Provider")
	require.Len(t, vals, 1)
	s, _ := vals[0].AsString()
	assert.Equal(t, "Microsoft-Windows-Sysmon", s)
}

func TestContainerKVParsesDelimitedSubfields(t *testing.T) {
	d := sampleDoc()
	spec := ContainerSpec{Field: "Event.EventData.Hashes", Format: ContainerKV, Delimiter: ";", Separator: "="}
	view := d.Container(spec)
	m, ok := view.AsMap()
	require.True(t, ok)
	sha1, ok := m["SHA1"].AsString()
	require.True(t, ok)
	assert.Equal(t, "abc", sha1)
}

func TestContainerCacheIsScopedPerDocument(t *testing.T) {
	d1 := sampleDoc()
	d2 := sampleDoc()
	spec := ContainerSpec{Field: "Event.EventData.Hashes", Format: ContainerKV}
	v1 := d1.Container(spec)
	v2 := d2.Container(spec)
	m1, _ := v1.AsMap()
	m2, _ := v2.AsMap()
	assert.Equal(t, m1["MD5"], m2["MD5"])
}

func TestPathResolutionIsReadOnly(t *testing.T) {
	d := sampleDoc()
	before := d.Get("Event.System.Provider")
	_ = d.Get("Event.System.Provider")
	after := d.Get("Event.System.Provider")
	assert.Equal(t, before, after)
}

func TestGetPathWithContainerResolvesThroughSubfieldView(t *testing.T) {
	d := sampleDoc()
	spec := ContainerSpec{Field: "Event.EventData.Hashes", Format: ContainerKV}
	path := ParsePath("SHA1").WithContainer(spec)
	v := d.GetPath(path)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "abc", s)
}
