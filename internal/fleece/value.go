// Package fleece implements the narrow "value tree" interface spec.md §1
// treats as an external collaborator: parse from trusted bytes, typed
// value access (null/bool/number/string/data/array/dict), iterator, path
// evaluator, encoder. The real production encoding (pointer-tagged, with
// shared key dictionaries) is out of scope; this package gives the Core B
// query bridge something concrete to evaluate against, modeled on the type
// tags in original_source/LiteCore/Query/SQLiteFleeceFunctions.cc.
package fleece

// ValueType tags a node in the value tree.
type ValueType int

const (
	Undefined ValueType = iota - 1 // "missing" — the path found nothing
	Null
	Bool
	Number
	String
	Data
	Array
	DictType
)

func (t ValueType) String() string {
	switch t {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Data:
		return "data"
	case Array:
		return "array"
	case DictType:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed document tree.
type Value struct {
	typ ValueType
	b   bool
	n   float64
	isI bool
	i   int64
	s   string
	d   []byte
	arr []Value
	dct *Dict
}

// Missing is the canonical "path found nothing" sentinel, distinct from a
// Fleece null (spec §8 "Query null distinction").
var Missing = Value{typ: Undefined}

// NullValue is a Fleece null.
var NullValue = Value{typ: Null}

func BoolValue(b bool) Value   { return Value{typ: Bool, b: b} }
func IntValue(i int64) Value   { return Value{typ: Number, isI: true, i: i, n: float64(i)} }
func FloatValue(f float64) Value { return Value{typ: Number, n: f} }
func StringValue(s string) Value { return Value{typ: String, s: s} }
func DataValue(b []byte) Value   { return Value{typ: Data, d: b} }
func ArrayValue(items []Value) Value { return Value{typ: Array, arr: items} }
func DictValue(d *Dict) Value        { return Value{typ: DictType, dct: d} }

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsMissing() bool { return v.typ == Undefined }
func (v Value) IsNull() bool    { return v.typ == Null }

func (v Value) AsBool() bool {
	switch v.typ {
	case Bool:
		return v.b
	case Number:
		return v.n != 0
	case String:
		return v.s != ""
	case Null, Undefined:
		return false
	default:
		return true
	}
}

// AsFloat coerces numeric-like values to float64, the "numeric-coercing"
// behaviour spec §4.6's math function table calls for.
func (v Value) AsFloat() (float64, bool) {
	switch v.typ {
	case Number:
		return v.n, true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) AsInt() (int64, bool) {
	if v.typ != Number {
		return 0, false
	}
	if v.isI {
		return v.i, true
	}
	return int64(v.n), true
}

func (v Value) AsString() (string, bool) {
	if v.typ != String {
		return "", false
	}
	return v.s, true
}

func (v Value) AsData() ([]byte, bool) {
	if v.typ != Data {
		return nil, false
	}
	return v.d, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.typ != Array {
		return nil, false
	}
	return v.arr, true
}

func (v Value) AsDict() (*Dict, bool) {
	if v.typ != DictType {
		return nil, false
	}
	return v.dct, true
}

// Count returns the element count for Array/Dict values, matching fl_count's
// semantics (spec §4.6); ok is false for any other type.
func (v Value) Count() (int, bool) {
	switch v.typ {
	case Array:
		return len(v.arr), true
	case DictType:
		return v.dct.Len(), true
	default:
		return 0, false
	}
}
