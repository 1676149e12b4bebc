package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

func TestCompileEventQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    EventQuery
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "whole log",
			query:    EventQuery{},
			wantSQL:  "SELECT seq, tick, channel, target, source, payload, cleared FROM sync_events WHERE slot = ? ORDER BY seq ASC",
			wantArgs: []any{"a"},
		},
		{
			name:     "all filters",
			query:    EventQuery{Channel: "sound", Target: "spk", Source: "spk", AfterSeq: 4, FromTick: 2, ToTick: 9, Limit: 10},
			wantSQL:  "SELECT seq, tick, channel, target, source, payload, cleared FROM sync_events WHERE slot = ? AND channel = ? AND target = ? AND source = ? AND seq > ? AND tick >= ? AND tick <= ? ORDER BY seq ASC LIMIT ?",
			wantArgs: []any{"a", "sound", "spk", "spk", int64(4), int64(2), int64(9), 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := compileEventQuery("a", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCompileEventQueryNeverInterpolates(t *testing.T) {
	sql, args, err := compileEventQuery("a", EventQuery{Target: "x' OR '1'='1"})
	require.NoError(t, err)
	assert.NotContains(t, sql, "OR '1'")
	assert.Contains(t, args, "x' OR '1'='1")
}

func TestCompileEventQueryRejects(t *testing.T) {
	_, _, err := compileEventQuery("a", EventQuery{Limit: -1})
	assert.ErrorContains(t, err, "limit must be >= 0")

	_, _, err = compileEventQuery("a", EventQuery{FromTick: 5, ToTick: 2})
	assert.ErrorContains(t, err, "tick range 5..2 is empty")
}

func TestQueryEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSlot(t, s, "a")

	require.NoError(t, s.AppendEvents(ctx, "a", []synchronizer.Event{
		soundEvent(1, 1, "spk", true),
		soundEvent(2, 2, "btn", true),
		{Channel: synchronizer.ChannelVisual, Target: "lamp", Tick: 3, Seq: 3, Source: "lamp", Payload: ir.Table{"on": ir.Bool(true)}},
		soundEvent(4, 5, "spk", false),
	}))

	seqs := func(events []synchronizer.Event) []int64 {
		out := make([]int64, len(events))
		for i, ev := range events {
			out[i] = ev.Seq
		}
		return out
	}

	got, err := s.QueryEvents(ctx, "a", EventQuery{Channel: synchronizer.ChannelSound})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, seqs(got))

	got, err = s.QueryEvents(ctx, "a", EventQuery{Target: "spk"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, seqs(got))

	got, err = s.QueryEvents(ctx, "a", EventQuery{Source: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, seqs(got))

	got, err = s.QueryEvents(ctx, "a", EventQuery{FromTick: 2, ToTick: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seqs(got))

	got, err = s.QueryEvents(ctx, "a", EventQuery{AfterSeq: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seqs(got))

	got, err = s.QueryEvents(ctx, "a", EventQuery{Channel: synchronizer.ChannelParticle})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
