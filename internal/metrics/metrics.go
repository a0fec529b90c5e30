// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dashsync"

// Relay policies used as the "policy" label
const (
	PolicyOthers = "others"
	PolicyAll    = "all"
)

// Hub holds the collectors updated by the broadcast hub.
// A nil *Hub is valid and records nothing.
type Hub struct {
	connections prometheus.Gauge
	relayed     *prometheus.CounterVec
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	bytes       prometheus.Histogram
}

// NewHub creates the hub collectors and registers them with reg
func NewHub(reg prometheus.Registerer) (*Hub, error) {
	h := &Hub{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of open connections.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "relayed_total",
			Help:      "Frames accepted for relay, by policy.",
		}, []string{"policy"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "delivered_total",
			Help:      "Frames handed to a connection's send buffer.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Frames skipped because a recipient could not take them.",
		}),
		bytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frame_bytes",
			Help:      "Size of relayed frames.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 6),
		}),
	}

	for _, c := range []prometheus.Collector{h.connections, h.relayed, h.delivered, h.dropped, h.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// SetConnections records the number of open connections
func (h *Hub) SetConnections(n int) {
	if h == nil {
		return
	}
	h.connections.Set(float64(n))
}

// Relayed records one frame accepted for relay
func (h *Hub) Relayed(policy string, size int) {
	if h == nil {
		return
	}
	h.relayed.WithLabelValues(policy).Inc()
	h.bytes.Observe(float64(size))
}

// Delivered records successful hand-offs to recipients
func (h *Hub) Delivered(n int) {
	if h == nil {
		return
	}
	h.delivered.Add(float64(n))
}

// Dropped records skipped recipients
func (h *Hub) Dropped(n int) {
	if h == nil {
		return
	}
	h.dropped.Add(float64(n))
}
