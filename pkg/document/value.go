// Package document implements the in-memory event record used by the rest
// of the engine: a small typed tree with dotted-path lookup and the numeric
// coercion rules the Sigma/Chainsaw matcher grammar relies on.
package document

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindInt64
	KindUint64
	KindFloat
	KindString
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Absent is the distinguished value returned when a path does not resolve
// to anything in the document, as opposed to resolving to an explicit Null.
var Absent = Value{kind: KindAbsent}

// Null is an explicit JSON/YAML null.
var Null = Value{kind: KindNull}

// Value is a single node of the document tree.
type Value struct {
	kind Kind

	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	seq []Value
	m   map[string]Value
}

// Kind returns the concrete type of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value is the distinguished Absent marker.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int64 builds a signed integer value.
func Int64(i int64) Value { return Value{kind: KindInt64, i: i} }

// Uint64 builds an unsigned integer value.
func Uint64(u uint64) Value { return Value{kind: KindUint64, u: u} }

// Float builds a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String builds a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence builds a sequence (array) value.
func Sequence(items []Value) Value { return Value{kind: KindSequence, seq: items} }

// Map builds a map (object) value.
func Map(fields map[string]Value) Value { return Value{kind: KindMap, m: fields} }

// AsBool returns the boolean payload, or false with ok=false if the value is
// not a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsString returns the value's textual representation. Scalars always have
// one; sequences and maps do not.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt64:
		return strconv.FormatInt(v.i, 10), true
	case KindUint64:
		return strconv.FormatUint(v.u, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindNull:
		return "", true
	default:
		return "", false
	}
}

// AsInt64 coerces the value to a signed 64-bit integer. Numeric strings are
// parsed; floats are truncated; non-numeric values fail.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt64:
		return v.i, true
	case KindUint64:
		return int64(v.u), true
	case KindFloat:
		return int64(v.f), true
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// AsFloat64 coerces the value to a float64.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt64:
		return float64(v.i), true
	case KindUint64:
		return float64(v.u), true
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsSequence returns the sequence payload. A scalar is returned as a
// single-element sequence to support the "some element matches" downgrade
// described by the path grammar.
func (v Value) AsSequence() ([]Value, bool) {
	switch v.kind {
	case KindSequence:
		return v.seq, true
	case KindAbsent, KindMap:
		return nil, false
	default:
		return []Value{v}, true
	}
}

// AsMap returns the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// GoString implements a debugging representation.
func (v Value) GoString() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindNull:
		return "<null>"
	default:
		s, _ := v.AsString()
		return fmt.Sprintf("%s(%v)", v.kind, s)
	}
}

// ToInterface recursively unpacks a Value back into the plain Go types
// JSON encoding understands: nil, bool, int64, uint64, float64, string,
// []interface{}, map[string]interface{}. Absent unpacks to nil, same as
// Null, since a CLI sink has no use for the distinction FromInterface's
// caller needs internally.
func (v Value) ToInterface() interface{} {
	switch v.kind {
	case KindAbsent, KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindUint64:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToInterface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToInterface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler via ToInterface, so a Value (and
// therefore a Document) embedded in a CLI-facing struct serialises as
// plain JSON instead of its internal tagged-union representation.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToInterface())
}

// FromInterface recursively builds a Value tree from the loosely typed
// output of a YAML/JSON decoder (map[string]interface{}, []interface{},
// string, bool, float64/int, nil).
func FromInterface(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Null
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int64(int64(t))
	case int32:
		return Int64(int64(t))
	case int64:
		return Int64(t)
	case uint:
		return Uint64(uint64(t))
	case uint64:
		return Uint64(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromInterface(item))
		}
		return Sequence(items)
	case []string:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, String(item))
		}
		return Sequence(items)
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, v := range t {
			fields[k] = FromInterface(v)
		}
		return Map(fields)
	case map[interface{}]interface{}:
		fields := make(map[string]Value, len(t))
		for k, v := range t {
			fields[fmt.Sprintf("%v", k)] = FromInterface(v)
		}
		return Map(fields)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
