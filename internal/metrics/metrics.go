// Package metrics exposes machine and transport counters to Prometheus.
// Label sets are bounded: block types come from the registry, never from
// block ids or client input.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/circuit/internal/engine"
)

// Collector implements engine.Metrics and the transport hooks.
type Collector struct {
	tickDuration   prometheus.Histogram
	ticks          prometheus.Counter
	events         prometheus.Counter
	rejectedInputs prometheus.Counter
	burned         *prometheus.CounterVec
	nodes          prometheus.Gauge
	speed          prometheus.Gauge
	observers      prometheus.Gauge
	wsMessages     prometheus.Counter
	inputDropped   *prometheus.CounterVec
}

// New registers the circuit collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests so repeated construction does not
// collide.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "circuit_tick_duration_seconds",
			Help:    "Wall time spent evaluating one machine tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "circuit_ticks_total",
			Help: "Machine ticks evaluated",
		}),
		events: f.NewCounter(prometheus.CounterOpts{
			Name: "circuit_sync_events_total",
			Help: "Synchronizer events flushed to observers",
		}),
		rejectedInputs: f.NewCounter(prometheus.CounterOpts{
			Name: "circuit_injections_rejected_total",
			Help: "Queued injections rejected at tick start",
		}),
		burned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_nodes_burned_total",
			Help: "Nodes burned by a domain error or panic",
		}, []string{"block_type"}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_nodes_live",
			Help: "Placed nodes that are not destroyed",
		}),
		speed: f.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_speed_factor",
			Help: "Effective time scale of the machine (dt / base dt)",
		}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_observers_active",
			Help: "Connected websocket observers",
		}),
		wsMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "circuit_websocket_messages_total",
			Help: "Messages written to websocket observers",
		}),
		inputDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_inputs_dropped_total",
			Help: "Inbound input messages refused by the transport",
		}, []string{"reason"}), // Bounded: "rate_limit", "invalid", "rejected"
	}
}

// TickCompleted records one tick.
func (c *Collector) TickCompleted(r engine.TickReport, took time.Duration) {
	c.tickDuration.Observe(took.Seconds())
	c.ticks.Inc()
	c.events.Add(float64(len(r.Events)))
	c.rejectedInputs.Add(float64(len(r.Rejected)))
	c.speed.Set(engine.EffectiveDT(1, r.Speed))
}

// NodeBurned counts a burn by block type.
func (c *Collector) NodeBurned(blockType string) {
	c.burned.WithLabelValues(blockType).Inc()
}

// NodesChanged sets the live node gauge.
func (c *Collector) NodesChanged(n int) {
	c.nodes.Set(float64(n))
}

// ObserversChanged sets the connected observer gauge.
func (c *Collector) ObserversChanged(n int) {
	c.observers.Set(float64(n))
}

// MessageSent counts one websocket write.
func (c *Collector) MessageSent() {
	c.wsMessages.Inc()
}

// InputDropped counts an inbound input refused for reason.
func (c *Collector) InputDropped(reason string) {
	c.inputDropped.WithLabelValues(reason).Inc()
}

var _ engine.Metrics = (*Collector)(nil)
