// Package metric provides Prometheus-based metrics collection for tracekit
// delivery pipelines.
//
// The package offers a centralized metrics registry managing both core
// library metrics (packets written, queue depth, reconnects, protocol
// state) and custom component metrics. Metrics are entirely optional: a
// tracer without a registry attached records nothing.
//
// Core metrics are labeled by protocol caption so multiple configured
// transports remain distinguishable. Component-specific metrics (for
// example the packet ring in pkg/buffer) register through the Registrar
// interface with a component prefix.
package metric
