package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Discard reasons used as the "reason" label of EnvelopesDiscarded
const (
	DiscardMismatch     = "mismatch"
	DiscardDecodeError  = "decode_error"
	DiscardIntermediate = "intermediate"
	DiscardFlushed      = "flushed"
)

// Metrics contains the client-level metrics shared by every request path
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestsInFlight   prometheus.Gauge
	EnvelopesDiscarded *prometheus.CounterVec
	TransportConnected *prometheus.GaugeVec
	TransportErrors    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "iqrfgw",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Requests completed, by command and outcome",
			},
			[]string{"command", "outcome"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "iqrfgw",
				Subsystem: "request",
				Name:      "duration_seconds",
				Help:      "Time from send to terminal outcome",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"command", "outcome"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "iqrfgw",
				Subsystem: "requests",
				Name:      "in_flight",
				Help:      "Requests currently waiting for a correlated response",
			},
		),

		EnvelopesDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "iqrfgw",
				Subsystem: "envelopes",
				Name:      "discarded_total",
				Help:      "Inbound envelopes discarded while waiting, by reason",
			},
			[]string{"reason"},
		),

		TransportConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "iqrfgw",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection state (1=connected, 0=disconnected)",
			},
			[]string{"transport"},
		),

		TransportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "iqrfgw",
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Transport send/receive errors",
			},
			[]string{"transport", "op"},
		),
	}
}

// RecordRequest records a finished request
func (m *Metrics) RecordRequest(command, outcome string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(command, outcome).Inc()
	m.RequestDuration.WithLabelValues(command, outcome).Observe(elapsed.Seconds())
}

// RecordDiscard counts a discarded inbound envelope
func (m *Metrics) RecordDiscard(reason string) {
	m.EnvelopesDiscarded.WithLabelValues(reason).Inc()
}

// SetTransportConnected records the connection state of a transport
func (m *Metrics) SetTransportConnected(transport string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	m.TransportConnected.WithLabelValues(transport).Set(v)
}

// Transport error operations. Send and receive failures are counted by the client that
// observed them; transports count only faults no request sees directly.
const (
	OpSend       = "send"
	OpReceive    = "receive"
	OpConnect    = "connect"
	OpSubscribe  = "subscribe"
	OpConnection = "connection"
	OpWrite      = "write"
)

// RecordTransportError counts one transport fault under op
func (m *Metrics) RecordTransportError(transport, op string) {
	m.TransportErrors.WithLabelValues(transport, op).Inc()
}
