package ir

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Value is the runtime tagged union carried by connector inputs and outputs.
// Exactly one concrete type exists per primitive kind; sentinels never
// appear as values.
type Value interface {
	Kind() Kind
	Payload() Payload
}

// NumberValue is a number-kind value.
type NumberValue float64

func (NumberValue) Kind() Kind         { return KindNumber }
func (v NumberValue) Payload() Payload { return Number(v) }

// BoolValue is a boolean-kind value.
type BoolValue bool

func (BoolValue) Kind() Kind         { return KindBool }
func (v BoolValue) Payload() Payload { return Bool(v) }

// ColorValue is an RGB color with channels in [0,1].
type ColorValue struct {
	R, G, B float64
}

func (ColorValue) Kind() Kind { return KindColor }
func (v ColorValue) Payload() Payload {
	return Table{"r": Number(v.R), "g": Number(v.G), "b": Number(v.B)}
}

// Vector3Value is a 3D vector.
type Vector3Value struct {
	X, Y, Z float64
}

func (Vector3Value) Kind() Kind { return KindVector3 }
func (v Vector3Value) Payload() Payload {
	return Table{"x": Number(v.X), "y": Number(v.Y), "z": Number(v.Z)}
}

// StringValue is a string-kind value.
type StringValue string

func (StringValue) Kind() Kind         { return KindString }
func (v StringValue) Payload() Payload { return String(v) }

// EnumValue is the selected member of an enumeration.
type EnumValue string

func (EnumValue) Kind() Kind         { return KindEnum }
func (v EnumValue) Payload() Payload { return String(v) }

// BytesValue is a byte array. Its payload is standard base64.
type BytesValue []byte

func (BytesValue) Kind() Kind { return KindBytes }
func (v BytesValue) Payload() Payload {
	return String(base64.StdEncoding.EncodeToString(v))
}

// SoundValue describes a sound to play.
type SoundValue struct {
	ID     string
	Volume float64
	Speed  float64
	Looped bool
}

func (SoundValue) Kind() Kind { return KindSound }
func (v SoundValue) Payload() Payload {
	return Table{
		"id":     String(v.ID),
		"volume": Number(v.Volume),
		"speed":  Number(v.Speed),
		"looped": Bool(v.Looped),
	}
}

// KeybindValue is a key binding and whether it is currently held.
type KeybindValue struct {
	Key  string
	Held bool
}

func (KeybindValue) Kind() Kind { return KindKeybind }
func (v KeybindValue) Payload() Payload {
	return Table{"key": String(v.Key), "held": Bool(v.Held)}
}

// codec is one row of the kind dispatch table.
type codec struct {
	decode func(Payload) (Value, error)
	zero   Value
}

// codecs maps every primitive kind to its decoder. Adding a kind means
// adding a row here and a constant in kind.go; nothing else dispatches on kind.
var codecs = map[Kind]codec{
	KindNumber:  {decode: decodeNumber, zero: NumberValue(0)},
	KindBool:    {decode: decodeBool, zero: BoolValue(false)},
	KindColor:   {decode: decodeColor, zero: ColorValue{}},
	KindVector3: {decode: decodeVector3, zero: Vector3Value{}},
	KindString:  {decode: decodeString, zero: StringValue("")},
	KindEnum:    {decode: decodeEnum, zero: EnumValue("")},
	KindBytes:   {decode: decodeBytes, zero: BytesValue(nil)},
	KindSound:   {decode: decodeSound, zero: SoundValue{Volume: 1, Speed: 1}},
	KindKeybind: {decode: decodeKeybind, zero: KeybindValue{}},
}

// DecodeValue converts a configuration payload into the typed value of kind k.
func DecodeValue(k Kind, p Payload) (Value, error) {
	c, ok := codecs[k]
	if !ok {
		return nil, fmt.Errorf("no value codec for kind %q", k)
	}
	if IsNull(p) {
		return nil, fmt.Errorf("%s: missing payload", k)
	}
	v, err := c.decode(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return v, nil
}

// ZeroValue returns the zero value of a primitive kind.
func ZeroValue(k Kind) (Value, bool) {
	c, ok := codecs[k]
	if !ok {
		return nil, false
	}
	return c.zero, true
}

// ValuesEqual reports whether two values have the same kind and payload.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && Equal(a.Payload(), b.Payload())
}

func finite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v", f)
	}
	return nil
}

func decodeNumber(p Payload) (Value, error) {
	n, ok := p.(Number)
	if !ok {
		return nil, fmt.Errorf("expected number, got %T", p)
	}
	if err := finite(float64(n)); err != nil {
		return nil, err
	}
	return NumberValue(n), nil
}

func decodeBool(p Payload) (Value, error) {
	b, ok := p.(Bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", p)
	}
	return BoolValue(b), nil
}

func decodeColor(p Payload) (Value, error) {
	t, ok := p.(Table)
	if !ok {
		return nil, fmt.Errorf("expected table, got %T", p)
	}
	c := ColorValue{R: t.Num("r", 0), G: t.Num("g", 0), B: t.Num("b", 0)}
	for _, ch := range []float64{c.R, c.G, c.B} {
		if err := finite(ch); err != nil {
			return nil, err
		}
		if ch < 0 || ch > 1 {
			return nil, fmt.Errorf("channel %v outside [0,1]", ch)
		}
	}
	return c, nil
}

func decodeVector3(p Payload) (Value, error) {
	t, ok := p.(Table)
	if !ok {
		return nil, fmt.Errorf("expected table, got %T", p)
	}
	v := Vector3Value{X: t.Num("x", 0), Y: t.Num("y", 0), Z: t.Num("z", 0)}
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if err := finite(c); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func decodeString(p Payload) (Value, error) {
	s, ok := p.(String)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", p)
	}
	return StringValue(s), nil
}

func decodeEnum(p Payload) (Value, error) {
	s, ok := p.(String)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", p)
	}
	return EnumValue(s), nil
}

func decodeBytes(p Payload) (Value, error) {
	s, ok := p.(String)
	if !ok {
		return nil, fmt.Errorf("expected base64 string, got %T", p)
	}
	b, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return BytesValue(b), nil
}

func decodeSound(p Payload) (Value, error) {
	t, ok := p.(Table)
	if !ok {
		return nil, fmt.Errorf("expected table, got %T", p)
	}
	s := SoundValue{
		ID:     t.Str("id", ""),
		Volume: t.Num("volume", 1),
		Speed:  t.Num("speed", 1),
		Looped: t.Flag("looped", false),
	}
	if err := finite(s.Volume); err != nil {
		return nil, err
	}
	if err := finite(s.Speed); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeKeybind(p Payload) (Value, error) {
	switch v := p.(type) {
	case String:
		return KeybindValue{Key: string(v)}, nil
	case Table:
		return KeybindValue{Key: v.Str("key", ""), Held: v.Flag("held", false)}, nil
	}
	return nil, fmt.Errorf("expected key name or table, got %T", p)
}
