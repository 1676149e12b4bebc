package metrics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

func TestTickCompleted(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.TickCompleted(engine.TickReport{
		Speed:    ir.Speed{Type: ir.SlowDown, Multiplier: 4},
		Events:   make([]synchronizer.Event, 3),
		Rejected: []error{engine.ErrInvalidInput},
	}, 2*time.Millisecond)
	c.TickCompleted(engine.TickReport{Speed: ir.NormalSpeed}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.events))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejectedInputs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.speed))
	assert.Equal(t, 1, testutil.CollectAndCount(c.tickDuration))
}

func TestNodeCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.NodeBurned("arithmetic")
	c.NodeBurned("arithmetic")
	c.NodeBurned("memory")
	c.NodesChanged(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.burned.WithLabelValues("arithmetic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.burned.WithLabelValues("memory")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.nodes))
}

func TestTransportCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserversChanged(2)
	c.MessageSent()
	c.InputDropped("rate_limit")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.observers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.wsMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inputDropped.WithLabelValues("rate_limit")))
}

func TestRegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration on the same registry")

	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestMachineReportsThroughCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	def := &ir.BlockDef{
		Name:    "src",
		Outputs: map[string]ir.ConnectorDef{"out": {Types: map[ir.Kind]ir.TypeDef{ir.KindNumber: {}}}},
	}
	r := engine.NewRegistry()
	require.NoError(t, r.Register(def, func(b *engine.Builder) error {
		b.Always(func(ctx *engine.Context) error {
			return ctx.SetOutput("out", ir.NumberValue(1))
		})
		return nil
	}))

	m := engine.NewMachine("m", r, nil,
		engine.WithMetrics(c),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, m.Place("a", "src", nil))
	m.RunTicks(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodes))

	n, err := testutil.GatherAndCount(reg, "circuit_ticks_total", "circuit_nodes_live")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
