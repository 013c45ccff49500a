package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pairing outcomes.
const (
	outcomePaired    = "paired"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
	outcomeRejected  = "rejected"
)

// Metrics are the relay's Prometheus instruments.
type Metrics struct {
	connections  prometheus.Gauge
	sessions     prometheus.Gauge
	pairings     *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
}

// NewMetrics registers the relay instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ttyrelay",
			Name:      "device_connections",
			Help:      "Devices currently paired.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ttyrelay",
			Name:      "shell_sessions",
			Help:      "Shell sessions currently relayed.",
		}),
		pairings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ttyrelay",
			Name:      "pairings_total",
			Help:      "Pairing attempts by outcome.",
		}, []string{"outcome"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ttyrelay",
			Name:      "decode_errors_total",
			Help:      "Undecodable device packets by error kind.",
		}, []string{"kind"}),
	}
}

// The methods below accept a nil receiver so tests can run without a
// registry.

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) pairing(outcome string) {
	if m != nil {
		m.pairings.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) decodeError(kind string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(kind).Inc()
	}
}
