package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tracekit/metric"
)

// ringMetrics holds Prometheus metrics for ring operations.
type ringMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	bytes       prometheus.Gauge
	count       prometheus.Gauge
	utilization prometheus.Gauge
}

// newRingMetrics creates and registers ring metrics with the provided registry.
func newRingMetrics(registry *metric.MetricsRegistry, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "writes_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of ring push operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "reads_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of ring pop operations",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "overflows_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of byte-budget overflow events",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of packets evicted from the ring",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "bytes",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current retained packet bytes",
		}),
		count: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "packets",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of retained packets",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tracekit",
			Subsystem:   "ring",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Ring byte-budget utilization (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "ring_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_overflows", m.overflows); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_bytes", m.bytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_packets", m.count); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) recordWrite(bytes, maxBytes int64, count int) {
	m.writes.Inc()
	m.updateSize(bytes, maxBytes, count)
}

func (m *ringMetrics) recordRead(bytes, maxBytes int64, count int) {
	m.reads.Inc()
	m.updateSize(bytes, maxBytes, count)
}

func (m *ringMetrics) recordOverflow() {
	m.overflows.Inc()
}

func (m *ringMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *ringMetrics) updateSize(bytes, maxBytes int64, count int) {
	m.bytes.Set(float64(bytes))
	m.count.Set(float64(count))
	if maxBytes > 0 {
		m.utilization.Set(float64(bytes) / float64(maxBytes))
	}
}
