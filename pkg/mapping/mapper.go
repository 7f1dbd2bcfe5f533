package mapping

import (
	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

// Mode identifies which strategy a FieldMapper uses to resolve a field,
// chosen once at construction time from the field table's shape: a mapping
// with no renames pays nothing per record, a plain rename table is a map
// lookup, and only a table with container or cast entries pays for the
// richer resolution path.
type Mode int

const (
	// ModeNone is the bypass mode: every field resolves to its
	// conventional Event.EventData.<field> location, untouched.
	ModeNone Mode = iota
	// ModeFast is a plain from->to rename table.
	ModeFast
	// ModeFull additionally resolves container-parsed subfields and cast
	// coercions.
	ModeFull
)

type fullEntry struct {
	to        string
	container *document.ContainerSpec
	cast      document.Coercion
}

// FieldMapper resolves a Sigma selection field name onto the concrete path
// a mapping's field table declares for it, implementing sigma.FieldResolver
// via Resolve. Grounded on original_source/src/hunt.rs's Mapper/Mapped.
type FieldMapper struct {
	fields []chainsaw.Field
	mode   Mode
	fast   map[string]string
	full   map[string]fullEntry
}

// NewFieldMapper builds a FieldMapper from one field table. An empty or
// nil table yields a ModeNone mapper.
func NewFieldMapper(fields []chainsaw.Field) *FieldMapper {
	m := &FieldMapper{fields: fields}

	full, fast := false, false
	for _, f := range fields {
		if f.Cast != "" || f.Container.Field != "" {
			full = true
			break
		}
		if f.From != f.To {
			fast = true
		}
	}

	switch {
	case full:
		m.mode = ModeFull
		m.full = make(map[string]fullEntry, len(fields))
		for _, f := range fields {
			entry := fullEntry{to: f.To, cast: castOf(f.Cast)}
			if f.Container.Field != "" {
				spec := chainsaw.ContainerSpec(f.Container)
				entry.container = &spec
			}
			m.full[f.From] = entry
		}
	case fast:
		m.mode = ModeFast
		m.fast = make(map[string]string, len(fields))
		for _, f := range fields {
			m.fast[f.From] = f.To
		}
	default:
		m.mode = ModeNone
	}
	return m
}

func castOf(name string) document.Coercion {
	switch name {
	case "int":
		return document.CoerceInt
	case "str":
		return document.CoerceStr
	default:
		return document.CoerceNone
	}
}

// Mode reports which resolution strategy this mapper uses.
func (m *FieldMapper) Mode() Mode { return m.mode }

// Fields returns the field table the mapper was built from.
func (m *FieldMapper) Fields() []chainsaw.Field { return m.fields }

// Resolve implements sigma.FieldResolver: it translates a selection field
// name into the concrete Path a mapped record should be read from.
func (m *FieldMapper) Resolve(field string) (document.Path, bool) {
	switch m.mode {
	case ModeFast:
		to, ok := m.fast[field]
		if !ok {
			return document.Path{}, false
		}
		return document.ParsePath(to), true
	case ModeFull:
		entry, ok := m.full[field]
		if !ok {
			return document.Path{}, false
		}
		path := document.ParsePath(entry.to)
		if entry.container != nil {
			path = path.WithContainer(*entry.container)
		}
		path.Coerce = entry.cast
		return path, true
	default:
		return document.Path{}, false
	}
}
