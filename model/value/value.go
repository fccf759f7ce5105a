// Package value implements a closed tagged variant over JSON-like data. It
// is used to represent task outputs once they are parsed and the values
// computed by merge strategies, so that merge logic can switch on Kind
// instead of reflecting over interface{}.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind enumerates variant tags.
type Kind int

const (
	// KindAbsent is the zero Kind: the value is missing altogether.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "absent"
}

// Value is an immutable-by-convention variant. The zero Value is Absent.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string
	array  []Value
	object map[string]Value
}

// Absent is the sentinel returned when a strategy yields no value.
var Absent = Value{}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps b.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps n.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps s.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps items; the slice is owned by the returned Value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, array: items}
}

// Object wraps fields; the map is owned by the returned Value.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, object: fields}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsAbsent() bool   { return v.kind == KindAbsent }
func (v Value) IsObject() bool   { return v.kind == KindObject }
func (v Value) Bool() bool       { return v.b }
func (v Value) Number() float64  { return v.n }
func (v Value) Str() string      { return v.s }
func (v Value) Items() []Value   { return v.array }
func (v Value) Len() int         { return len(v.array) + len(v.object) }
func (v Value) Fields() []string { return sortedKeys(v.object) }

// Get returns the field named key of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Absent, false
	}
	ret, ok := v.object[key]
	return ret, ok
}

// Interface converts v back to plain Go values (nil, bool, float64, string,
// []interface{}, map[string]interface{}). Absent converts to nil as well.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		ret := make([]interface{}, len(v.array))
		for i, item := range v.array {
			ret[i] = item.Interface()
		}
		return ret
	case KindObject:
		ret := make(map[string]interface{}, len(v.object))
		for k, item := range v.object {
			ret[k] = item.Interface()
		}
		return ret
	}
	return nil
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.array) != len(o.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(o.array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.object) != len(o.object) {
			return false
		}
		for k, item := range v.object {
			other, ok := o.object[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return true
}

// MarshalJSON encodes Absent and Null both as null; object keys are sorted.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindAbsent, KindNull:
		return []byte("null"), nil
	case KindArray:
		buf := bytes.Buffer{}
		buf.WriteByte('[')
		for i, item := range v.array {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		buf := bytes.Buffer{}
		buf.WriteByte('{')
		for i, key := range sortedKeys(v.object) {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(key)
			buf.Write(name)
			buf.WriteByte(':')
			data, err := v.object[key].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String returns the compact JSON form, or the raw text of string values.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", v.kind)
	}
	return string(data)
}

// Parse decodes a JSON document.
func Parse(data []byte) (Value, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Absent, err
	}
	return FromAny(raw)
}

// FromAny converts plain Go data into a Value. Scalars of any numeric kind,
// slices, arrays, string-keyed maps and pointers are supported; anything else
// is round-tripped through encoding/json.
func FromAny(in interface{}) (Value, error) {
	switch actual := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return actual, nil
	case bool:
		return Bool(actual), nil
	case string:
		return String(actual), nil
	case float64:
		return Number(actual), nil
	case json.Number:
		n, err := actual.Float64()
		if err != nil {
			return Absent, err
		}
		return Number(n), nil
	case []interface{}:
		items := make([]Value, len(actual))
		for i, item := range actual {
			converted, err := FromAny(item)
			if err != nil {
				return Absent, err
			}
			items[i] = converted
		}
		return Array(items...), nil
	case []string:
		items := make([]Value, len(actual))
		for i, item := range actual {
			items[i] = String(item)
		}
		return Array(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(actual))
		for k, item := range actual {
			converted, err := FromAny(item)
			if err != nil {
				return Absent, err
			}
			fields[k] = converted
		}
		return Object(fields), nil
	}
	return fromReflect(reflect.ValueOf(in))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Absent, fmt.Errorf("unsupported number: %v", f)
		}
		return Number(f), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return fromReflect(rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			converted, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Absent, err
			}
			items[i] = converted
		}
		return Array(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			converted, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Absent, err
			}
			fields[iter.Key().String()] = converted
		}
		return Object(fields), nil
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return Absent, fmt.Errorf("unsupported value %T: %w", rv.Interface(), err)
	}
	return Parse(data)
}

func sortedKeys(m map[string]Value) []string {
	if len(m) == 0 {
		return nil
	}
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
