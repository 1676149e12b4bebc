package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
)

const minimalScenario = `
name: minimal
description: "one constant"
blocks:
  - id: k
    type: constant
    config:
      value: {type: number, config: 3}
steps:
  - ticks: 1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario), "")
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Blocks, 1)
	p, err := s.Blocks[0].toPlacement()
	require.NoError(t, err)
	assert.Equal(t, ir.BlockID("k"), p.ID)
	assert.Equal(t, ir.KindNumber, p.Config["value"].Type)
	assert.Equal(t, ir.Number(3), p.Config["value"].Config)
}

func TestLoadScenario_Testdata(t *testing.T) {
	for _, name := range []string{"lamp_button", "overclock_timer", "divider_burn"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, s.Name)
			assert.NotEmpty(t, s.Description)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario+"assertion: []\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ResolvesCatalogRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.cue"), []byte("block: {}\n"), 0o644))

	s, err := ParseScenario([]byte(minimalScenario+"catalog: blocks.cue\n"), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "blocks.cue"), s.Catalog)

	_, err = ParseScenario([]byte(minimalScenario+"catalog: missing.cue\n"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog file not found")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no blocks",
			yaml:    "name: n\ndescription: d\nsteps: [{ticks: 1}]\n",
			wantErr: "blocks list is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "block without type",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a}]\nsteps: [{ticks: 1}]\n",
			wantErr: "blocks[0]: type is required",
		},
		{
			name:    "connector without type",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant, config: {value: {config: 1}}}]\nsteps: [{ticks: 1}]\n",
			wantErr: "one of wire, unset or type is required",
		},
		{
			name:    "wire with config",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant, config: {value: {wire: b.out, config: 1}}}]\nsteps: [{ticks: 1}]\n",
			wantErr: "wire excludes",
		},
		{
			name:    "sentinel as type",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant, config: {value: {type: wire}}}]\nsteps: [{ticks: 1}]\n",
			wantErr: "use wire or unset",
		},
		{
			name:    "malformed watch",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nwatch: [aout]\nsteps: [{ticks: 1}]\n",
			wantErr: "watch[0]",
		},
		{
			name:    "empty step",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{}]\n",
			wantErr: "no ticks and no actions",
		},
		{
			name:    "bad injection kind",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{inject: [{block: a, connector: value, kind: unset, value: 1}]}]\n",
			wantErr: "cannot inject kind",
		},
		{
			name:    "injection payload mismatch",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{inject: [{block: a, connector: value, kind: number, value: hi}]}]\n",
			wantErr: "steps[0].inject[0]",
		},
		{
			name:    "error without place",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1, expect: {error: boom}}]\n",
			wantErr: "error requires a place action",
		},
		{
			name:    "invalid speed",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1, expect: {speed: {type: warp, multiplier: 2}}}]\n",
			wantErr: "expect.speed",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1}]\nassertions: [{type: cosmic}]\n",
			wantErr: `unknown assertion type "cosmic"`,
		},
		{
			name:    "event_count without target",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1}]\nassertions: [{type: event_count, channel: sound}]\n",
			wantErr: "channel and target are required",
		},
		{
			name:    "final_output without connector",
			yaml:    "name: n\ndescription: d\nblocks: [{id: a, type: constant}]\nsteps: [{ticks: 1}]\nassertions: [{type: final_output, block: a}]\n",
			wantErr: "block and connector are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitRef(t *testing.T) {
	block, conn, err := splitRef("floor.2.lamp.on")
	require.NoError(t, err)
	assert.Equal(t, ir.BlockID("floor.2.lamp"), block)
	assert.Equal(t, "on", conn)

	for _, bad := range []string{"", "lamp", ".on", "lamp."} {
		_, _, err := splitRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestConnectorSpec_ToConfig(t *testing.T) {
	cfg, err := ConnectorSpec{Unset: true}.toConfig()
	require.NoError(t, err)
	assert.Equal(t, ir.KindUnset, cfg.Type)

	cfg, err = ConnectorSpec{Wire: "btn.pressed"}.toConfig()
	require.NoError(t, err)
	assert.Equal(t, ir.Wire("btn", "pressed"), cfg)

	cfg, err = ConnectorSpec{
		Type:    "keybind",
		Config:  map[string]any{"key": "e", "held": false},
		Control: map[string]any{"mode": "toggle"},
	}.toConfig()
	require.NoError(t, err)
	assert.Equal(t, ir.KindKeybind, cfg.Type)
	assert.Equal(t, ir.Table{"mode": ir.String("toggle")}, cfg.ControlConfig)
}
