package store

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
)

func TestSlotFileRoundTrip(t *testing.T) {
	layout := ir.Layout{Slot: "factory", Placements: testLayout()}

	var buf bytes.Buffer
	require.NoError(t, WriteSlotFile(&buf, layout))

	got, header, err := ReadSlotFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, SlotFileFormat, header.Format)
	assert.Equal(t, "factory", header.Slot)
	assert.Equal(t, 3, header.Placements)

	assert.Equal(t, layout.Slot, got.Slot)
	require.Len(t, got.Placements, len(layout.Placements))
	for i, p := range layout.Placements {
		assert.Equal(t, p.ID, got.Placements[i].ID)
		assert.True(t, p.Config.Equal(got.Placements[i].Config), "block %s", p.ID)
	}
}

func TestSlotFileIsCompressed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSlotFile(&buf, ir.Layout{Slot: "x"}))
	// zstd frame magic number
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, buf.Bytes()[:4])
}

func TestReadSlotFileRejectsForeignData(t *testing.T) {
	t.Run("not zstd", func(t *testing.T) {
		_, _, err := ReadSlotFile(bytes.NewReader([]byte(`{"slot":"x"}`)))
		assert.Error(t, err)
	})

	t.Run("wrong header", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		enc.Write([]byte("{\"format\":\"something-else\"}\n{}\n"))
		require.NoError(t, enc.Close())

		_, _, err = ReadSlotFile(&buf)
		assert.ErrorIs(t, err, ErrNotSlotFile)
	})

	t.Run("future config version", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		enc.Write([]byte("{\"format\":\"circuit-slot\",\"config_version\":\"99\"}\n{}\n"))
		require.NoError(t, enc.Close())

		_, _, err = ReadSlotFile(&buf)
		assert.ErrorIs(t, err, ErrNotSlotFile)
	})
}
