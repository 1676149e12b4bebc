package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
)

func nopCtor(*Builder) error { return nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ir.BlockDef{Name: "b"}, nopCtor))
	require.NoError(t, r.Register(&ir.BlockDef{Name: "a"}, nopCtor))

	assert.Error(t, r.Register(&ir.BlockDef{Name: "a"}, nopCtor), "duplicate")
	assert.Error(t, r.Register(&ir.BlockDef{}, nopCtor), "nameless")
	assert.Error(t, r.Register(&ir.BlockDef{Name: "c"}, nil), "nil constructor")

	assert.Equal(t, []string{"a", "b"}, r.Types())
	def, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", def.Name)
	_, ok = r.Lookup("zzz")
	assert.False(t, ok)
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&ir.BlockDef{Name: "a"}, nopCtor)
	assert.Panics(t, func() { r.MustRegister(&ir.BlockDef{Name: "a"}, nopCtor) })
}

func TestRegistry_IsCatalog(t *testing.T) {
	var _ resolver.Catalog = NewRegistry()
}

func TestNodeError(t *testing.T) {
	cause := errors.New("bad wiring")
	err := &NodeError{Code: ErrCodeConstruct, Block: "b1", BlockType: "pid", Message: "constructor failed", Cause: cause}

	assert.Equal(t, "CONSTRUCT_FAILED: constructor failed (block=b1, type=pid): bad wiring", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrBurned))

	burned := &NodeError{Code: ErrCodeCallbackPanic, Block: "b2"}
	assert.True(t, IsBurnError(burned))
	assert.Equal(t, "CALLBACK_PANIC:  (block=b2)", burned.Error())
}
