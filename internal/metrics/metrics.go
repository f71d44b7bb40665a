// Package metrics exposes Prometheus collectors for the gateway, ledger and
// mission cache. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	relayed         *prometheus.CounterVec
	dropped         prometheus.Counter
	publishFailures *prometheus.CounterVec
	resubscribes    prometheus.Counter
	ledgerOps       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "clubimpact", Subsystem: "gateway", Name: "connections",
			Help: "Live websocket connections held by this instance.",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "clubimpact", Subsystem: "gateway", Name: "rooms",
			Help: "Club rooms with at least one local connection.",
		}),
		relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "gateway", Name: "messages_total",
			Help: "Chat messages relayed, by direction.",
		}, []string{"direction"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "gateway", Name: "dropped_frames_total",
			Help: "Frames dropped because a client's send buffer was full.",
		}),
		publishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "bus", Name: "publish_failures_total",
			Help: "Publishes that failed after the write committed.",
		}, []string{"topic"}),
		resubscribes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "bus", Name: "resubscribes_total",
			Help: "Subscriptions re-established after the bus dropped them.",
		}),
		ledgerOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "ledger", Name: "operations_total",
			Help: "Ledger operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubimpact", Subsystem: "mission_cache", Name: "lookups_total",
			Help: "Current-mission cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

// MessageRelayed counts "inbound" (client to store) or "outbound" (bus to
// socket) relays.
func (m *Metrics) MessageRelayed(direction string) {
	if m != nil {
		m.relayed.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// PublishFailed takes a topic family ("chat", "user:gems", ...) rather than
// a full topic to keep label cardinality bounded.
func (m *Metrics) PublishFailed(topicFamily string) {
	if m != nil {
		m.publishFailures.WithLabelValues(topicFamily).Inc()
	}
}

func (m *Metrics) Resubscribed() {
	if m != nil {
		m.resubscribes.Inc()
	}
}

func (m *Metrics) LedgerOp(operation, outcome string) {
	if m != nil {
		m.ledgerOps.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
