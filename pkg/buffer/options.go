package buffer

import (
	"github.com/c360/tracekit/metric"
)

// Option configures ring behavior using the functional options pattern.
type Option func(*ringOptions)

// ringOptions holds internal configuration for ring instances.
// Stats are always collected; metrics are optional via WithMetrics().
type ringOptions struct {
	dropCallback DropCallback

	// metricsReg is optional - if provided, ring stats are also exposed
	// as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for ring statistics.
// If registry is nil, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(opts *ringOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked for every evicted packet.
func WithDropCallback(callback DropCallback) Option {
	return func(opts *ringOptions) {
		opts.dropCallback = callback
	}
}

func applyOptions(options ...Option) *ringOptions {
	opts := &ringOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
