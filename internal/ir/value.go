package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// Payload is a sealed interface over the JSON-shaped values stored in a
// connector configuration. Only Null, String, Number, Bool, Array and Table
// implement it.
//
// Payloads are the persisted, kind-agnostic form of configuration. The typed
// runtime form is Value (see typed.go); DecodeValue converts between them.
type Payload interface {
	payload() // Sealed
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) payload() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string payload.
type String string

func (String) payload() {}

// Number is a numeric payload. Unlike event identities, block configuration
// is float-valued (torque, speed, color channels), so numbers are float64.
// NaN and infinities are rejected at every serialization boundary.
type Number float64

func (Number) payload() {}

// Bool is a boolean payload.
type Bool bool

func (Bool) payload() {}

// Array is an ordered list of payloads.
type Array []Payload

func (Array) payload() {}

// Table is a string-keyed map of payloads. Use SortedKeys() for
// deterministic iteration.
type Table map[string]Payload

func (Table) payload() {}

// IsTable reports whether p is table-shaped.
// The resolver merges table-shaped defaults field by field and treats every
// other payload as a scalar.
func IsTable(p Payload) bool {
	_, ok := p.(Table)
	return ok
}

// IsNull reports whether p is absent or an explicit null.
func IsNull(p Payload) bool {
	if p == nil {
		return true
	}
	_, ok := p.(Null)
	return ok
}

// Clone returns a shallow copy of the table. Nested tables are shared.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Get returns the field value, or nil when absent.
func (t Table) Get(key string) Payload {
	if t == nil {
		return nil
	}
	return t[key]
}

// Num returns a numeric field, falling back to def when absent or not a number.
func (t Table) Num(key string, def float64) float64 {
	if n, ok := t.Get(key).(Number); ok {
		return float64(n)
	}
	return def
}

// Str returns a string field, falling back to def when absent or not a string.
func (t Table) Str(key, def string) string {
	if s, ok := t.Get(key).(String); ok {
		return string(s)
	}
	return def
}

// Flag returns a boolean field, falling back to def when absent or not a bool.
func (t Table) Flag(key string, def bool) bool {
	if b, ok := t.Get(key).(Bool); ok {
		return bool(b)
	}
	return def
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings orders by UTF-8 bytes, which differs for astral runes.
func (t Table) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required by
// RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports deep structural equality of two payloads.
// nil and Null compare equal.
func Equal(a, b Payload) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Table:
		bv, ok := b.(Table)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler for Table.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = make(Table, len(raw))
	for k, v := range raw {
		val, err := unmarshalPayload(v)
		if err != nil {
			return fmt.Errorf("table key %q: %w", k, err)
		}
		(*t)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalPayload(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// UnmarshalPayload decodes arbitrary JSON into a Payload.
func UnmarshalPayload(data []byte) (Payload, error) {
	return unmarshalPayload(bytes.TrimSpace(data))
}

func unmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return t, nil

	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return Number(f), nil
	}
}

// MarshalJSON implements json.Marshaler for Table with RFC 8785 key order.
// This is not canonical marshaling (HTML escaping applies); use
// MarshalCanonical for hashing.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range t.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalPayload(t[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalPayload(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalPayload marshals a Payload to JSON bytes. A nil payload encodes
// as null.
func MarshalPayload(p Payload) ([]byte, error) {
	switch val := p.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Number:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("non-finite number %v", float64(val))
		}
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return val.MarshalJSON()
	case Table:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown payload type: %T", p)
	}
}

// FromAny converts a decoded Go value (yaml, json, CUE) into a Payload.
func FromAny(v any) (Payload, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Payload:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case float64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", val, err)
		}
		return Number(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			p, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = p
		}
		return arr, nil
	case map[string]any:
		t := make(Table, len(val))
		for k, elem := range val {
			p, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			t[k] = p
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToAny converts a Payload into plain Go values (map[string]any, []any,
// float64, string, bool, nil). Used at library boundaries such as JSON
// Schema validation.
func ToAny(p Payload) any {
	switch val := p.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Table:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	}
	return nil
}
