// Package metrics provides Prometheus metrics for the tunnel agent.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secure_tunnel"

// Metrics contains all Prometheus metrics exported by the agent.
type Metrics struct {
	// Session lifecycle
	SessionsActive      prometheus.Gauge
	SessionsEstablished prometheus.Counter
	SessionsClosed      *prometheus.CounterVec

	// Handshake and auth
	HandshakeLatency prometheus.Histogram
	HandshakeErrors  *prometheus.CounterVec
	AuthAttempts     prometheus.Counter
	AuthFailures     prometheus.Counter

	// Data flow
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	FramesSent      *prometheus.CounterVec
	FramesReceived  *prometheus.CounterVec
	DecryptFailures prometheus.Counter
	HeartbeatsSent  prometheus.Counter
	HeartbeatsRecv  prometheus.Counter

	// Worker pool
	WorkerPoolInUse    prometheus.Gauge
	WorkerPoolRejected prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide default metrics instance, registered
// against the global Prometheus registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against a
// caller-supplied registry, used in tests to avoid global state.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently established sessions",
		}),
		SessionsEstablished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_established_total",
			Help:      "Total number of sessions that reached the Established phase",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions closed, by reason",
		}, []string{"reason"}),

		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Time from HELLO to derived session keys",
			Buckets:   prometheus.DefBuckets,
		}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake failures, by cause",
		}, []string{"reason"}),
		AuthAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total AUTH frames received by the server",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total AUTH attempts rejected",
		}),

		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total plaintext bytes sent through established sessions",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total plaintext bytes received through established sessions",
		}),
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total frames sent, by frame type",
		}, []string{"type"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total frames received, by frame type",
		}, []string{"type"}),
		DecryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Total ENCRYPTED_DATA frames that failed envelope authentication",
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Total HEARTBEAT frames sent",
		}),
		HeartbeatsRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_received_total",
			Help:      "Total HEARTBEAT frames received",
		}),

		WorkerPoolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_in_use",
			Help:      "Number of worker pool slots currently occupied by a session",
		}),
		WorkerPoolRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_pool_rejected_total",
			Help:      "Total connections rejected because the worker pool and queue were both full",
		}),
	}
}

// RecordSessionEstablished records a session reaching the Established phase.
func (m *Metrics) RecordSessionEstablished() {
	m.SessionsActive.Inc()
	m.SessionsEstablished.Inc()
}

// RecordSessionClosed records a session ending, classified by reason
// ("close", "protocol_error", "transport_error", "auth_rejected").
func (m *Metrics) RecordSessionClosed(reason string) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// RecordHandshakeError records a handshake failure, classified by reason.
func (m *Metrics) RecordHandshakeError(reason string) {
	m.HandshakeErrors.WithLabelValues(reason).Inc()
}

// RecordFrameSent records a frame write, labeled by frame type name.
func (m *Metrics) RecordFrameSent(frameType string) {
	m.FramesSent.WithLabelValues(frameType).Inc()
}

// RecordFrameReceived records a frame read, labeled by frame type name.
func (m *Metrics) RecordFrameReceived(frameType string) {
	m.FramesReceived.WithLabelValues(frameType).Inc()
}
