package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalPayloadShapes(t *testing.T) {
	p, err := UnmarshalPayload([]byte(` {"a": 1.5, "b": [true, null, "x"], "c": {"d": -2}} `))
	require.NoError(t, err)

	want := Table{
		"a": Number(1.5),
		"b": Array{Bool(true), Null{}, String("x")},
		"c": Table{"d": Number(-2)},
	}
	assert.True(t, Equal(want, p), "got %#v", p)
}

func TestUnmarshalPayloadEmpty(t *testing.T) {
	_, err := UnmarshalPayload([]byte("   "))
	assert.Error(t, err)
}

func TestMarshalPayloadSortsKeys(t *testing.T) {
	b, err := MarshalPayload(Table{"b": Number(2), "a": String("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2}`, string(b))
}

func TestMarshalPayloadNilIsNull(t *testing.T) {
	b, err := MarshalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestMarshalPayloadRejectsNaN(t *testing.T) {
	_, err := MarshalPayload(Array{Number(math.NaN())})
	assert.Error(t, err)
}

func TestTableInsideStruct(t *testing.T) {
	var holder struct {
		T Table `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":{"x":1}}`), &holder))
	assert.Equal(t, 1.0, holder.T.Num("x", 0))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(Table{"a": Array{Number(1)}}, Table{"a": Array{Number(1)}}))
	assert.False(t, Equal(Table{"a": Number(1)}, Table{"a": Number(2)}))
	assert.False(t, Equal(Table{"a": Number(1)}, Table{"b": Number(1)}))
	assert.False(t, Equal(String("1"), Number(1)))
	assert.False(t, Equal(Array{Number(1)}, Array{Number(1), Number(2)}))
}

func TestTableAccessors(t *testing.T) {
	tbl := Table{"n": Number(3), "s": String("x"), "f": Bool(true)}

	assert.Equal(t, 3.0, tbl.Num("n", 0))
	assert.Equal(t, 9.0, tbl.Num("s", 9))
	assert.Equal(t, "x", tbl.Str("s", ""))
	assert.Equal(t, "d", tbl.Str("missing", "d"))
	assert.True(t, tbl.Flag("f", false))

	var empty Table
	assert.Nil(t, empty.Get("anything"))
	assert.Nil(t, empty.Clone())
}

func TestTableCloneIsShallowCopy(t *testing.T) {
	orig := Table{"a": Number(1)}
	cp := orig.Clone()
	cp["a"] = Number(2)
	assert.Equal(t, Number(1), orig["a"])
}

func TestFromAnyToAny(t *testing.T) {
	in := map[string]any{
		"i":   7,
		"f":   2.5,
		"s":   "x",
		"b":   true,
		"nil": nil,
		"arr": []any{int64(1), json.Number("2")},
	}

	p, err := FromAny(in)
	require.NoError(t, err)

	want := Table{
		"i":   Number(7),
		"f":   Number(2.5),
		"s":   String("x"),
		"b":   Bool(true),
		"nil": Null{},
		"arr": Array{Number(1), Number(2)},
	}
	assert.True(t, Equal(want, p))

	back := ToAny(p).(map[string]any)
	assert.Equal(t, 7.0, back["i"])
	assert.Nil(t, back["nil"])
	assert.Equal(t, []any{1.0, 2.0}, back["arr"])
}

func TestFromAnyUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}
