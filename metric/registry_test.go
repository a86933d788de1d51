package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoreMetricsRegistered(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())

	registry.Metrics.PacketsWritten.WithLabelValues("file").Inc()
	registry.Metrics.QueueBytes.WithLabelValues("file").Set(128)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tracekit_protocol_packets_written_total"])
	assert.True(t, names["tracekit_scheduler_queue_bytes"])
}

func TestRegistryComponentMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_total",
		Help: "custom counter",
	})
	require.NoError(t, registry.RegisterCounter("comp", "custom", counter))

	// Same component/name pair conflicts.
	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom2_total",
		Help: "another counter",
	})
	err := registry.RegisterCounter("comp", "custom", other)
	require.Error(t, err)

	assert.True(t, registry.Unregister("comp", "custom"))
	assert.False(t, registry.Unregister("comp", "custom"))
}

func TestRegistryGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "depth",
		Help: "a gauge",
	})
	require.NoError(t, registry.RegisterGauge("comp", "depth", gauge))
	gauge.Set(42)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "depth" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, float64(42), f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}
