package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLayout() []ir.Placement {
	return []ir.Placement{
		{ID: "src", Type: "constant", Config: ir.PlacedConfig{
			"value": {Type: ir.KindNumber, Config: ir.Number(4.5)},
		}},
		{ID: "spk", Type: "speaker", Config: ir.PlacedConfig{
			"playing": {Type: ir.KindUnset},
			"volume":  ir.Wire("src", "out"),
			"sound": {
				Type:   ir.KindSound,
				Config: ir.Table{"id": ir.String("caf\u00e9"), "volume": ir.Number(1), "speed": ir.Number(1), "looped": ir.Bool(true)},
			},
		}},
		{ID: "btn", Type: "button", Config: ir.PlacedConfig{
			"key": {
				Type:          ir.KindKeybind,
				Config:        ir.Table{"key": ir.String("e"), "held": ir.Bool(false)},
				ControlConfig: ir.Table{"mode": ir.String("toggle")},
			},
		}},
	}
}

func soundEvent(seq, tick int64, target string, playing bool) synchronizer.Event {
	return synchronizer.Event{
		Channel: synchronizer.ChannelSound,
		Target:  target,
		Tick:    tick,
		Seq:     seq,
		Source:  ir.BlockID(target),
		Payload: ir.Table{"id": ir.String("beep"), "playing": ir.Bool(playing)},
	}
}
