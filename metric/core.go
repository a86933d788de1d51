package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the library-level metrics shared by all protocols
type Metrics struct {
	// Delivery metrics
	PacketsWritten *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec
	WriteErrors    *prometheus.CounterVec
	Reconnects     *prometheus.CounterVec

	// Scheduler metrics
	QueueBytes    *prometheus.GaugeVec
	QueueCommands *prometheus.GaugeVec

	// Protocol state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)
	ConnectionStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all library metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PacketsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracekit",
				Subsystem: "protocol",
				Name:      "packets_written_total",
				Help:      "Total number of packets written to a protocol sink",
			},
			[]string{"protocol"},
		),

		PacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracekit",
				Subsystem: "protocol",
				Name:      "packets_dropped_total",
				Help:      "Total number of packets discarded by overflow policies",
			},
			[]string{"protocol"},
		),

		WriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracekit",
				Subsystem: "protocol",
				Name:      "write_errors_total",
				Help:      "Total number of failed packet writes",
			},
			[]string{"protocol"},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracekit",
				Subsystem: "protocol",
				Name:      "reconnects_total",
				Help:      "Total number of reconnect attempts",
			},
			[]string{"protocol"},
		),

		QueueBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tracekit",
				Subsystem: "scheduler",
				Name:      "queue_bytes",
				Help:      "Current scheduler queue size in bytes",
			},
			[]string{"protocol"},
		),

		QueueCommands: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tracekit",
				Subsystem: "scheduler",
				Name:      "queue_commands",
				Help:      "Current number of commands in the scheduler queue",
			},
			[]string{"protocol"},
		),

		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tracekit",
				Subsystem: "protocol",
				Name:      "connection_status",
				Help:      "Protocol state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
			},
			[]string{"protocol"},
		),
	}
}
