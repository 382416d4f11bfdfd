package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Value is a closed sum over the JSON scalar and collection types. Keeping
// the variants explicit makes substitution and comparison exhaustive instead
// of reflecting over interface{} payloads.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// Constructors.

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }
func IntValue(n int) Value        { return Value{kind: KindNumber, num: float64(n)} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}
func MapValue(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

// FromAny converts a decoded JSON value (string, float64, bool, []any,
// map[string]any, nil, or the integer types) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case uint64:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Value{kind: KindList, list: items}
	case []string:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = StringValue(it)
		}
		return Value{kind: KindList, list: items}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, mv := range t {
			m[k] = FromAny(mv)
		}
		return Value{kind: KindMap, m: m}
	default:
		return StringValue(fmt.Sprintf("%v", v))
	}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null/zero variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload ("" for non-strings).
func (v Value) Str() string { return v.str }

// Num returns the numeric payload (0 for non-numbers).
func (v Value) Num() float64 { return v.num }

// Bool returns the bool payload (false for non-bools).
func (v Value) Bool() bool { return v.b }

// List returns the list payload (nil for non-lists).
func (v Value) List() []Value { return v.list }

// Map returns the map payload (nil for non-maps).
func (v Value) Map() map[string]Value { return v.m }

// AsFloat coerces the value to a float64: numbers directly, numeric strings
// via parsing. The second return is false when the value is not numeric.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Truthy reports the boolean interpretation used by is_true/is_false:
// bools directly, "true"/"false" strings, non-zero numbers, non-empty
// collections.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.str == "true" || v.str == "1"
	case KindNumber:
		return v.num != 0
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	default:
		return false
	}
}

// Text returns the string form used by template substitution: strings
// verbatim, numbers without a trailing ".0" when integral, bools as
// true/false, collections as compact JSON, null as "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == float64(int64(v.num)) {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindMap:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Interface converts the value back to plain Go types (string, float64,
// bool, []any, map[string]any, nil) for expression engines and dispatch.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, it := range v.list {
			out[i] = it.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, mv := range v.m {
			out[k] = mv.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality between two values. Numbers and numeric
// strings compare numerically so that "5" == 5 holds, matching how values
// round-trip through template substitution.
func (v Value) Equal(o Value) bool {
	if lf, lok := v.AsFloat(); lok {
		if rf, rok := o.AsFloat(); rok {
			return lf == rf
		}
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := o.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	default: // both null
		return true
	}
}

// MarshalJSON encodes the underlying variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// UnmarshalYAML decodes any YAML node into the matching variant, so the
// same workflow documents load from .yaml and .json files.
func (v *Value) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*v = FromAny(normalizeYAML(raw))
	return nil
}

// MarshalYAML encodes the underlying variant.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

// normalizeYAML converts yaml.v3's map[string]any / map[any]any trees into
// the JSON-shaped types FromAny expects.
func normalizeYAML(raw any) any {
	switch t := raw.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalizeYAML(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return raw
	}
}
