package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// EventQuery filters a slot's event log. Zero fields do not filter.
type EventQuery struct {
	Channel  string
	Target   string
	Source   ir.BlockID
	AfterSeq int64
	FromTick int64 // inclusive
	ToTick   int64 // inclusive
	Limit    int
}

// compileEventQuery builds the SELECT for q against slot.
//
// All values are bound as parameters, never interpolated. Every query is
// ordered by seq so results are deterministic.
func compileEventQuery(slot string, q EventQuery) (string, []any, error) {
	if q.Limit < 0 {
		return "", nil, fmt.Errorf("limit must be >= 0, got %d", q.Limit)
	}
	if q.FromTick > 0 && q.ToTick > 0 && q.FromTick > q.ToTick {
		return "", nil, fmt.Errorf("tick range %d..%d is empty", q.FromTick, q.ToTick)
	}

	where := []string{"slot = ?"}
	args := []any{slot}
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if q.Channel != "" {
		add("channel = ?", q.Channel)
	}
	if q.Target != "" {
		add("target = ?", q.Target)
	}
	if q.Source != "" {
		add("source = ?", string(q.Source))
	}
	if q.AfterSeq > 0 {
		add("seq > ?", q.AfterSeq)
	}
	if q.FromTick > 0 {
		add("tick >= ?", q.FromTick)
	}
	if q.ToTick > 0 {
		add("tick <= ?", q.ToTick)
	}

	var sb strings.Builder
	sb.WriteString("SELECT seq, tick, channel, target, source, payload, cleared FROM sync_events WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	sb.WriteString(" ORDER BY seq ASC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

// QueryEvents returns the events of slot matching q in seq order.
func (s *Store) QueryEvents(ctx context.Context, slot string, q EventQuery) ([]synchronizer.Event, error) {
	query, args, err := compileEventQuery(slot, q)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []synchronizer.Event{}
	for rows.Next() {
		var (
			ev      synchronizer.Event
			source  string
			payload string
		)
		if err := rows.Scan(&ev.Seq, &ev.Tick, &ev.Channel, &ev.Target, &source, &payload, &ev.Cleared); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Source = ir.BlockID(source)
		if !ev.Cleared {
			if ev.Payload, err = unmarshalEventPayload(payload); err != nil {
				return nil, fmt.Errorf("event seq %d: %w", ev.Seq, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
