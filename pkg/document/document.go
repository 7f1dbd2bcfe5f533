package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is a single event record together with a lazily computed cache
// of container-parsed subfield views (Chainsaw's "container.format: kv|json"
// fields). The cache is scoped to this Document and is never shared across
// records.
type Document struct {
	root Value

	containers map[string]Value
}

// New wraps a Value tree as a Document.
func New(root Value) *Document {
	return &Document{root: root}
}

// FromMap is a convenience constructor for tests and reference record
// sources.
func FromMap(fields map[string]interface{}) *Document {
	return New(FromInterface(fields))
}

// Root returns the document's root value.
func (d *Document) Root() Value { return d.root }

// MarshalJSON implements json.Marshaler by delegating to the root Value,
// so a Document embedded in a CLI-facing struct (pkg/collate's Sink
// output) serialises as plain JSON.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.root)
}

// Get resolves a dotted path expression against the document.
func (d *Document) Get(expr string) Value {
	return Get(d.root, ParsePath(expr))
}

// GetPath resolves an already-parsed Path. A Path carrying a Container spec
// resolves against that container's lazily parsed subfield view instead of
// the document root.
func (d *Document) GetPath(p Path) Value {
	root := d.root
	if p.Container != nil {
		root = d.Container(*p.Container)
	}
	return Get(root, p)
}

// CoerceInt resolves path and forces int64 coercion, matching the
// int(path) wrapper semantics: numeric strings and integers coerce, floats
// truncate, anything else fails with Absent.
func (d *Document) CoerceInt(expr string) (int64, bool) {
	v := Get(d.root, ParsePath(fmt.Sprintf("int(%s)", expr)))
	return v.AsInt64()
}

// CoerceStr resolves path and forces string coercion.
func (d *Document) CoerceStr(expr string) (string, bool) {
	v := Get(d.root, ParsePath(fmt.Sprintf("str(%s)", expr)))
	return v.AsString()
}

// IterWildcard resolves a path containing at most one '*' segment and
// returns every matching leaf.
func (d *Document) IterWildcard(expr string) []Value {
	return IterWildcard(d.root, ParsePath(expr))
}

// ContainerFormat identifies how a string field is decomposed into
// synthetic subfields by a Chainsaw container mapping.
type ContainerFormat int

const (
	ContainerKV ContainerFormat = iota
	ContainerJSON
)

// ContainerSpec describes how to parse a string field into a subfield map,
// grounded on the Chainsaw rule format's fields[].container{field,format,
// delimiter,separator}.
type ContainerSpec struct {
	Field     string
	Format    ContainerFormat
	Delimiter string // separates entries, default ";"
	Separator string // separates key from value within an entry, default "="
}

// Container returns the lazily parsed synthetic subfield view for spec,
// caching the result for the lifetime of the Document so repeated
// predicate evaluation against the same container field does not re-parse.
func (d *Document) Container(spec ContainerSpec) Value {
	cacheKey := spec.Field + "\x00" + fmt.Sprint(spec.Format)
	if d.containers == nil {
		d.containers = make(map[string]Value)
	}
	if v, ok := d.containers[cacheKey]; ok {
		return v
	}

	raw := d.Get(spec.Field)
	s, ok := raw.AsString()
	if !ok {
		d.containers[cacheKey] = Absent
		return Absent
	}

	var parsed Value
	switch spec.Format {
	case ContainerJSON:
		parsed = parseContainerJSON(s)
	default:
		parsed = parseContainerKV(s, orDefault(spec.Delimiter, ";"), orDefault(spec.Separator, "="))
	}
	d.containers[cacheKey] = parsed
	return parsed
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseContainerKV(s, delimiter, separator string) Value {
	fields := make(map[string]Value)
	for _, entry := range strings.Split(s, delimiter) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, separator, 2)
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		val := ""
		if len(parts) == 2 {
			val = strings.TrimSpace(parts[1])
		}
		fields[key] = String(val)
	}
	return Map(fields)
}

func parseContainerJSON(s string) Value {
	var raw interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Absent
	}
	return FromInterface(raw)
}
