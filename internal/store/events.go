package store

import (
	"context"
	"fmt"

	"github.com/roach88/circuit/internal/synchronizer"
)

// AppendEvents adds flushed synchronizer events to a slot's log.
// Uses ON CONFLICT(slot, seq) DO NOTHING so re-appending the same flush is
// a no-op. The slot must exist.
func (s *Store) AppendEvents(ctx context.Context, slot string, events []synchronizer.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_events (slot, seq, tick, channel, target, source, payload, cleared)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := marshalEventPayload(ev.Payload)
		if err != nil {
			return fmt.Errorf("append events: seq %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			slot, ev.Seq, ev.Tick, ev.Channel, ev.Target, string(ev.Source), payload, ev.Cleared,
		); err != nil {
			return fmt.Errorf("append events: seq %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// ReadEvents returns a slot's events with seq greater than afterSeq, in
// seq order. Pass 0 for the whole log.
func (s *Store) ReadEvents(ctx context.Context, slot string, afterSeq int64) ([]synchronizer.Event, error) {
	return s.QueryEvents(ctx, slot, EventQuery{AfterSeq: afterSeq})
}

// LastSeq returns the highest event seq logged for a slot, or 0.
func (s *Store) LastSeq(ctx context.Context, slot string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM sync_events WHERE slot = ?`, slot).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// RestoreSync replays a slot's log into sync so late joiners see the state
// the slot was saved with and new events continue the seq.
func (s *Store) RestoreSync(ctx context.Context, slot string, sync *synchronizer.Synchronizer) error {
	events, err := s.ReadEvents(ctx, slot, 0)
	if err != nil {
		return err
	}
	if err := sync.Restore(events); err != nil {
		return fmt.Errorf("restore slot %s: %w", slot, err)
	}
	return nil
}

// Compact drops events superseded by a later event for the same channel
// and target, keeping the log bounded for long-running slots. Replaying
// the compacted log rebuilds the same cache.
func (s *Store) Compact(ctx context.Context, slot string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_events
		WHERE slot = ? AND seq < (
			SELECT MAX(e.seq) FROM sync_events e
			WHERE e.slot = sync_events.slot
			  AND e.channel = sync_events.channel
			  AND e.target = sync_events.target
		)
	`, slot)
	if err != nil {
		return 0, fmt.Errorf("compact slot %s: %w", slot, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
