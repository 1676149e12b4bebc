package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/circuit/internal/ir"
)

// ErrSlotNotFound is returned when a slot has never been saved.
var ErrSlotNotFound = errors.New("slot not found")

// ErrConfigHashMismatch is returned when a stored configuration no longer
// matches the hash recorded with it.
var ErrConfigHashMismatch = errors.New("config hash mismatch")

// SlotInfo summarizes a saved slot.
type SlotInfo struct {
	Name          string  `json:"name"`
	Placements    int     `json:"placements"`
	Events        int     `json:"events"`
	Tick          int64   `json:"tick"`
	Elapsed       float64 `json:"elapsed"`
	ConfigVersion string  `json:"config_version"`
	EngineVersion string  `json:"engine_version"`
}

// SavePlacements replaces the layout of a slot in one transaction,
// creating the slot when needed. The slot's event log and progress are
// kept.
func (s *Store) SavePlacements(ctx context.Context, slot string, placements []ir.Placement) error {
	if slot == "" {
		return fmt.Errorf("save placements: slot name is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save placements: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO slots (name, config_version, engine_version)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			config_version = excluded.config_version,
			engine_version = excluded.engine_version
	`, slot, ir.ConfigVersion, ir.EngineVersion); err != nil {
		return fmt.Errorf("save placements: upsert slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM placements WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("save placements: clear layout: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO placements (slot, position, block_id, block_type, config, config_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save placements: %w", err)
	}
	defer stmt.Close()

	for i, p := range placements {
		cfgJSON, hash, err := marshalConfig(p.Config)
		if err != nil {
			return fmt.Errorf("save placements: block %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, slot, i, string(p.ID), p.Type, cfgJSON, hash); err != nil {
			return fmt.Errorf("save placements: block %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// LoadPlacements returns a slot's layout in creation order.
func (s *Store) LoadPlacements(ctx context.Context, slot string) ([]ir.Placement, error) {
	if _, err := s.slot(ctx, slot); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, block_type, config, config_hash
		FROM placements
		WHERE slot = ?
		ORDER BY position ASC
	`, slot)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	placements := []ir.Placement{}
	for rows.Next() {
		var id, blockType, cfgJSON, hash string
		if err := rows.Scan(&id, &blockType, &cfgJSON, &hash); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		cfg, err := unmarshalConfig(cfgJSON)
		if err != nil {
			return nil, fmt.Errorf("placement %s: %w", id, err)
		}
		if got, err := ir.ConfigHash(cfg); err != nil || got != hash {
			return nil, fmt.Errorf("placement %s: %w", id, ErrConfigHashMismatch)
		}
		placements = append(placements, ir.Placement{ID: ir.BlockID(id), Type: blockType, Config: cfg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placements: %w", err)
	}
	return placements, nil
}

// SaveProgress records the machine clock of a slot so a later run resumes
// from it.
func (s *Store) SaveProgress(ctx context.Context, slot string, tick int64, elapsed float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE slots SET tick = ?, elapsed = ? WHERE name = ?`, tick, elapsed, slot)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save progress %s: %w", slot, ErrSlotNotFound)
	}
	return nil
}

// Slot returns the summary of one slot.
func (s *Store) Slot(ctx context.Context, slot string) (SlotInfo, error) {
	return s.slot(ctx, slot)
}

func (s *Store) slot(ctx context.Context, slot string) (SlotInfo, error) {
	row := s.db.QueryRowContext(ctx, slotQuery+` WHERE s.name = ?`, slot)
	info, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotInfo{}, fmt.Errorf("slot %s: %w", slot, ErrSlotNotFound)
	}
	return info, err
}

// ListSlots returns every saved slot ordered by name.
func (s *Store) ListSlots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx, slotQuery+` ORDER BY s.name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	slots := []SlotInfo{}
	for rows.Next() {
		info, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot with its layout and event log.
func (s *Store) DeleteSlot(ctx context.Context, slot string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slot)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete slot %s: %w", slot, ErrSlotNotFound)
	}
	return nil
}

const slotQuery = `
	SELECT s.name, s.config_version, s.engine_version, s.tick, s.elapsed,
		(SELECT COUNT(*) FROM placements p WHERE p.slot = s.name),
		(SELECT COUNT(*) FROM sync_events e WHERE e.slot = s.name)
	FROM slots s`

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (SlotInfo, error) {
	var info SlotInfo
	err := row.Scan(&info.Name, &info.ConfigVersion, &info.EngineVersion, &info.Tick, &info.Elapsed,
		&info.Placements, &info.Events)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SlotInfo{}, err
		}
		return SlotInfo{}, fmt.Errorf("scan slot: %w", err)
	}
	return info, nil
}
