package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/circuit/internal/ir"
)

// SlotFileFormat identifies slot files in their header line.
const SlotFileFormat = "circuit-slot"

// ErrNotSlotFile is returned when a file's header does not identify a slot
// file this build can read.
var ErrNotSlotFile = errors.New("not a circuit slot file")

// SlotFileHeader is the first line of a slot file, readable without
// decoding the layout.
type SlotFileHeader struct {
	Format        string `json:"format"`
	ConfigVersion string `json:"config_version"`
	EngineVersion string `json:"engine_version"`
	Slot          string `json:"slot"`
	Placements    int    `json:"placements"`
}

// WriteSlotFile writes a layout as zstd-compressed JSON: one header line
// followed by the layout document.
func WriteSlotFile(w io.Writer, layout ir.Layout) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(enc)
	hb, err := json.Marshal(SlotFileHeader{
		Format:        SlotFileFormat,
		ConfigVersion: ir.ConfigVersion,
		EngineVersion: ir.EngineVersion,
		Slot:          layout.Slot,
		Placements:    len(layout.Placements),
	})
	if err != nil {
		enc.Close()
		return err
	}
	bw.Write(hb)
	bw.WriteByte('\n')

	if err := json.NewEncoder(bw).Encode(layout); err != nil {
		enc.Close()
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSlotFile reads a layout written by WriteSlotFile.
func ReadSlotFile(r io.Reader) (ir.Layout, SlotFileHeader, error) {
	var (
		layout ir.Layout
		header SlotFileHeader
	)
	dec, err := zstd.NewReader(r)
	if err != nil {
		return layout, header, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return layout, header, fmt.Errorf("%w: read header: %v", ErrNotSlotFile, err)
	}
	if err := json.Unmarshal(line, &header); err != nil || header.Format != SlotFileFormat {
		return layout, header, ErrNotSlotFile
	}
	if header.ConfigVersion != ir.ConfigVersion {
		return layout, header, fmt.Errorf("%w: config version %q, want %q", ErrNotSlotFile, header.ConfigVersion, ir.ConfigVersion)
	}

	if err := json.NewDecoder(br).Decode(&layout); err != nil {
		return layout, header, fmt.Errorf("decode layout: %w", err)
	}
	return layout, header, nil
}
