package ir

import "fmt"

// Kind tags a connector value. The set is closed: nine primitive kinds and
// two sentinels.
type Kind string

const (
	KindNumber  Kind = "number"
	KindBool    Kind = "boolean"
	KindColor   Kind = "color"
	KindVector3 Kind = "vector3"
	KindString  Kind = "string"
	KindEnum    Kind = "enum"
	KindBytes   Kind = "bytes"
	KindSound   Kind = "sound"
	KindKeybind Kind = "keybind"

	// KindUnset marks a connector with no concrete value configured yet.
	KindUnset Kind = "unset"

	// KindWire marks a connector fed by another block's output. Its config
	// payload is a WireRef.
	KindWire Kind = "wire"
)

// primitiveKinds is the registry order. Anything that needs a stable order
// over kinds (fallback selection, listings) iterates this slice.
var primitiveKinds = []Kind{
	KindNumber,
	KindBool,
	KindColor,
	KindVector3,
	KindString,
	KindEnum,
	KindBytes,
	KindSound,
	KindKeybind,
}

// PrimitiveKinds returns the primitive kinds in registry order.
func PrimitiveKinds() []Kind {
	out := make([]Kind, len(primitiveKinds))
	copy(out, primitiveKinds)
	return out
}

// IsPrimitive reports whether k is one of the nine value kinds.
func (k Kind) IsPrimitive() bool {
	for _, p := range primitiveKinds {
		if p == k {
			return true
		}
	}
	return false
}

// IsSentinel reports whether k is unset or wire.
func (k Kind) IsSentinel() bool {
	return k == KindUnset || k == KindWire
}

// Valid reports whether k is a registered kind, primitive or sentinel.
func (k Kind) Valid() bool {
	return k.IsPrimitive() || k.IsSentinel()
}

// ParseKind maps a name to a registered Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// registryIndex returns the position of k in registry order, or -1.
func registryIndex(k Kind) int {
	for i, p := range primitiveKinds {
		if p == k {
			return i
		}
	}
	return -1
}
