package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
)

func compileBlock(t *testing.T, src, path string) (*ir.BlockDef, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileBlock(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileBlockBasic(t *testing.T) {
	def, err := compileBlock(t, `
		block: motor: {
			input: {
				torque: {
					displayName: "Torque"
					types: number: {
						config: 200
						clamp: {min: 0, max: 1000}
					}
				}
				enabled: {
					displayName: "Enabled"
					types: boolean: config: true
				}
			}
			output: rpm: {
				displayName: "RPM"
				types: number: {}
			}
			maxPerMachine: 4
		}
	`, "block.motor")
	require.NoError(t, err)

	assert.Equal(t, "motor", def.Name)
	assert.Equal(t, []string{"torque", "enabled"}, def.InputNames(), "declaration order is kept")
	assert.Equal(t, []string{"rpm"}, def.OutputNames())
	assert.Equal(t, 4, def.MaxPerMachine)
	assert.False(t, def.SpeedControl)

	torque := def.Inputs["torque"]
	assert.Equal(t, "Torque", torque.DisplayName)
	td := torque.Types[ir.KindNumber]
	assert.Equal(t, ir.Number(200), td.Default)
	require.NotNil(t, td.Clamp)
	assert.Equal(t, ir.Clamp{Min: 0, Max: 1000}, *td.Clamp)
	assert.Equal(t, ir.Bool(true), def.Inputs["enabled"].Types[ir.KindBool].Default)
}

func TestCompileBlockExplicitOrderAndFlags(t *testing.T) {
	def, err := compileBlock(t, `
		block: "overclock": {
			input: {
				a: types: number: {}
				b: {
					connectorHidden: true
					configHidden: true
					enumValues: ["speedup", "slowdown"]
					types: enum: config: "speedup"
				}
			}
			inputOrder: ["b", "a"]
			speedControl: true
		}
	`, `block."overclock"`)
	require.NoError(t, err)

	assert.Equal(t, "overclock", def.Name)
	assert.Equal(t, []string{"b", "a"}, def.InputNames())
	assert.True(t, def.SpeedControl)
	b := def.Inputs["b"]
	assert.True(t, b.ConnectorHidden)
	assert.True(t, b.ConfigHidden)
	assert.Equal(t, []string{"speedup", "slowdown"}, b.EnumValues)
	assert.Empty(t, def.Outputs)
}

func TestCompileBlockTableDefaultsAndControl(t *testing.T) {
	def, err := compileBlock(t, `
		block: button: input: key: types: keybind: {
			config: {key: "space", held: false}
			control: config: {mode: "hold", smoothing: 0.5}
		}
	`, "block.button")
	require.NoError(t, err)

	td := def.Inputs["key"].Types[ir.KindKeybind]
	assert.True(t, ir.Equal(ir.Table{"key": ir.String("space"), "held": ir.Bool(false)}, td.Default))
	require.NotNil(t, td.Control)
	assert.True(t, ir.Equal(ir.Table{"mode": ir.String("hold"), "smoothing": ir.Number(0.5)}, td.Control.Default))
}

func TestCompileBlockWireOnlyInput(t *testing.T) {
	def, err := compileBlock(t, `block: tap: input: signal: displayName: "Signal"`, "block.tap")
	require.NoError(t, err)
	assert.Empty(t, def.Inputs["signal"].Types)
}

func TestCompileBlockRejectsUnknownKind(t *testing.T) {
	_, err := compileBlock(t, `block: bad: input: x: types: quaternion: {}`, "block.bad")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "input.x.types.quaternion", ce.Field)
	assert.Contains(t, ce.Error(), "unknown value kind")
}

func TestCompileBlockRejectsSentinelKind(t *testing.T) {
	_, err := compileBlock(t, `block: bad: input: x: types: wire: {}`, "block.bad")
	assert.Error(t, err)
}

func TestCompileBlockRejectsNonConcreteDefault(t *testing.T) {
	// A bare "number" here would resolve to the enclosing types.number
	// field, not the builtin, so each default avoids sibling labels.
	tests := []struct {
		name   string
		config string
	}{
		{"type", "int"},
		{"bound", ">=0 & <=10"},
		{"nested", "{id: string}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileBlock(t, `block: bad: input: x: types: number: config: `+tt.config, "block.bad")
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Message, "concrete")
		})
	}
}

func TestCompileCatalog(t *testing.T) {
	v := cuecontext.New().CompileString(`
		block: {
			a: output: out: types: number: {}
			b: input: in: types: number: config: 1
		}
	`)
	defs, err := CompileCatalog(v)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "b", defs[1].Name)
}

func TestCompileCatalogCollectsErrors(t *testing.T) {
	v := cuecontext.New().CompileString(`
		block: {
			a: input: x: types: bogus: {}
			b: input: y: types: other: {}
		}
	`)
	_, err := CompileCatalog(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block a")
	assert.Contains(t, err.Error(), "block b")
}

func TestCompileCatalogRequiresBlocks(t *testing.T) {
	_, err := CompileCatalog(cuecontext.New().CompileString(`other: 1`))
	assert.Error(t, err)
}

func TestCompileSource(t *testing.T) {
	cat, err := CompileSource("lamp.cue", []byte(`
		block: lamp: {
			input: on: types: boolean: config: false
			output: lit: types: boolean: {}
		}
	`))
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp"}, cat.Names())
	def, ok := cat.Lookup("lamp")
	require.True(t, ok)
	assert.Equal(t, "lamp", def.Name)
	_, ok = cat.Lookup("motor")
	assert.False(t, ok)
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, err := CompileSource("broken.cue", []byte(`block: {`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}
