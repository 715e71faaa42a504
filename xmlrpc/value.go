package xmlrpc

import (
	"fmt"
	"time"
)

// ValueKind identifies the type of a Value: one kind per scalar type,
// plus array and struct, per spec C1.
type ValueKind byte

// Kinds a Value can take.
const (
	KindNil ValueKind = iota
	KindInt
	KindBoolean
	KindString
	KindDouble
	KindDateTime
	KindBase64
	KindArray
	KindStruct
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindDouble:
		return "double"
	case KindDateTime:
		return "dateTime.iso8601"
	case KindBase64:
		return "base64"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// KindMismatch is returned by ScalarValue when the value is not a scalar.
type KindMismatch struct {
	Have ValueKind
}

func (e KindMismatch) Error() string {
	return fmt.Sprintf("xmlrpc: value is of kind %s, not a scalar", e.Have)
}

// OutOfRange is returned by ArrayAt when the index is outside the array.
type OutOfRange struct {
	Index, Length int
}

func (e OutOfRange) Error() string {
	return fmt.Sprintf("xmlrpc: index %d out of range for array of length %d", e.Index, e.Length)
}

// Value is the tagged-variant representation of an XML-RPC value (spec
// C1). It wraps the wire-level rpcValue the codec already reads and
// writes, exposing the accessor surface the dispatch engine and
// application handlers use.
type Value struct {
	raw rpcValue
}

func valueOf(raw rpcValue) Value { return Value{raw: raw} }

// Kind reports the value's type: its scalar kind, KindArray or KindStruct.
func (v Value) Kind() ValueKind {
	switch v.raw.kind {
	case nilKind:
		return KindNil
	case intKind:
		return KindInt
	case booleanKind:
		return KindBoolean
	case stringKind:
		return KindString
	case doubleKind:
		return KindDouble
	case dateTimeKind:
		return KindDateTime
	case base64Kind:
		return KindBase64
	case arrayKind:
		return KindArray
	case structKind:
		return KindStruct
	default:
		return KindNil
	}
}

// IsScalar reports whether the value is neither an array nor a struct.
func (v Value) IsScalar() bool {
	k := v.Kind()
	return k != KindArray && k != KindStruct
}

// ScalarValue returns the native Go value for a scalar: int, bool,
// string, float64, time.Time (dateTime.iso8601) or []byte (base64). It
// fails with KindMismatch for array/struct values.
func (v Value) ScalarValue() (interface{}, error) {
	switch v.raw.kind {
	case nilKind:
		return nil, nil
	case arrayKind, structKind:
		return nil, KindMismatch{Have: v.Kind()}
	default:
		return v.raw.value, nil
	}
}

// ArrayLength returns the number of elements in an array value, or 0 for
// any other kind.
func (v Value) ArrayLength() int {
	arr, ok := v.raw.value.([]rpcValue)
	if !ok {
		return 0
	}
	return len(arr)
}

// ArrayAt returns the element at index i of an array value.
func (v Value) ArrayAt(i int) (Value, error) {
	arr, ok := v.raw.value.([]rpcValue)
	if !ok {
		return Value{}, KindMismatch{Have: v.Kind()}
	}
	if i < 0 || i >= len(arr) {
		return Value{}, OutOfRange{Index: i, Length: len(arr)}
	}
	return valueOf(arr[i]), nil
}

// Array returns all elements of an array value in order.
func (v Value) Array() []Value {
	arr, ok := v.raw.value.([]rpcValue)
	if !ok {
		return nil
	}
	out := make([]Value, len(arr))
	for i, e := range arr {
		out[i] = valueOf(e)
	}
	return out
}

// StructGet returns the member named name and whether it was present.
func (v Value) StructGet(name string) (Value, bool) {
	members, ok := v.raw.value.([]rpcEntry)
	if !ok {
		return Value{}, false
	}
	for _, m := range members {
		if m.Name == name {
			return valueOf(m.Value), true
		}
	}
	return Value{}, false
}

// StructKeys returns struct member names in insertion order.
func (v Value) StructKeys() []string {
	members, ok := v.raw.value.([]rpcEntry)
	if !ok {
		return nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Name
	}
	return keys
}

// typeTag returns the spec type tag for this value, for signature checking.
func (v Value) typeTag() TypeTag {
	switch v.raw.kind {
	case nilKind:
		return TagNil
	case intKind:
		return TagInt
	case booleanKind:
		return TagBoolean
	case stringKind:
		return TagString
	case doubleKind:
		return TagDouble
	case dateTimeKind:
		return TagDateTime
	case base64Kind:
		return TagBase64
	case arrayKind:
		return TagArray
	case structKind:
		return TagStruct
	default:
		return TagAny
	}
}

// NewInt constructs an int value.
func NewInt(val int) Value { return valueOf(rpcValue{value: val, kind: intKind}) }

// NewBool constructs a boolean value.
func NewBool(val bool) Value { return valueOf(rpcValue{value: val, kind: booleanKind}) }

// NewString constructs a string value.
func NewString(val string) Value { return valueOf(rpcValue{value: val, kind: stringKind}) }

// NewFloat64 constructs a double value.
func NewFloat64(val float64) Value { return valueOf(rpcValue{value: val, kind: doubleKind}) }

// NewDateTime constructs a dateTime.iso8601 value.
func NewDateTime(val time.Time) Value { return valueOf(rpcValue{value: val, kind: dateTimeKind}) }

// NewBase64 constructs a base64 value from decoded bytes.
func NewBase64(val []byte) Value { return valueOf(rpcValue{value: val, kind: base64Kind}) }

// NewNil constructs the nil/unit value (only valid on the wire when the
// NIL extension is enabled).
func NewNil() Value { return valueOf(rpcValue{kind: nilKind}) }

// NewArray constructs an array value from a sequence of Values.
func NewArray(values ...Value) Value {
	arr := make([]rpcValue, len(values))
	for i, v := range values {
		arr[i] = v.raw
	}
	return valueOf(rpcValue{value: arr, kind: arrayKind})
}

// StructField names a struct member in NewStruct.
type StructField struct {
	Name  string
	Value Value
}

// NewStruct constructs a struct value, preserving member order.
func NewStruct(fields ...StructField) Value {
	members := make([]rpcEntry, len(fields))
	for i, f := range fields {
		members[i] = rpcEntry{Name: f.Name, Value: f.Value.raw}
	}
	return valueOf(rpcValue{value: members, kind: structKind})
}

// NewValue converts a native Go value to a Value, the same supported
// types as the teacher's makeValue: bool, numeric, string, []byte,
// time.Time, slices/arrays and maps/structs.
func NewValue(in interface{}) Value {
	return valueOf(makeValue(in))
}
