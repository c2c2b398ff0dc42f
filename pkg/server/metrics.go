package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the collaboration server.
// All metrics live under the "collab" namespace.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge

	commandsTotal *prometheus.CounterVec

	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter

	messagesTotal    *prometheus.CounterVec
	annotationsTotal prometheus.Counter
	broadcastDrops   prometheus.Counter
}

// NewMetrics registers the server's metrics with reg and returns them.
// Pass a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of websocket connections accepted",
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of open websocket connections",
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Total commands processed, by command type and outcome",
		}, []string{"command", "status"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "active_sessions",
			Help:      "Number of live collaborative sessions",
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "sessions_total",
			Help:      "Total sessions created",
		}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "messages_total",
			Help:      "Total session messages appended, by kind",
		}, []string{"kind"}),

		annotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "annotations_total",
			Help:      "Total annotations appended",
		}),

		broadcastDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "server",
			Name:      "broadcast_drops_total",
			Help:      "Broadcast writes skipped because the recipient connection was dead",
		}),
	}
}

// RecordConnect records an accepted websocket connection.
func (m *Metrics) RecordConnect() {
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

// RecordDisconnect records a closed websocket connection.
func (m *Metrics) RecordDisconnect() {
	m.activeConnections.Dec()
}

// RecordCommand records one processed command and its outcome.
func (m *Metrics) RecordCommand(command, status string) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
}

// RecordSessionCreate records a session entering the registry.
func (m *Metrics) RecordSessionCreate() {
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

// RecordSessionClose records a session leaving the registry.
func (m *Metrics) RecordSessionClose() {
	m.activeSessions.Dec()
}

// RecordMessage records an appended session message.
func (m *Metrics) RecordMessage(kind string) {
	m.messagesTotal.WithLabelValues(kind).Inc()
}

// RecordAnnotation records an appended annotation.
func (m *Metrics) RecordAnnotation() {
	m.annotationsTotal.Inc()
}

// RecordBroadcastDrop records a skipped broadcast write.
func (m *Metrics) RecordBroadcastDrop() {
	m.broadcastDrops.Inc()
}
