// Package tracekit is a structured diagnostics and tracing library. It
// captures categorized records from an application - log entries,
// watches, process-flow markers, control commands - serializes them into
// a compact binary packet format and delivers them asynchronously to one
// or more transports: a TCP viewer, a local pipe, rotating and
// optionally encrypted log files, a bounded in-memory ring, plain text
// files, or a NATS subject.
//
// # Quick start
//
//	tracekit.Default().SetConnections(`file(filename="app.sil")`)
//	tracekit.Default().SetEnabled(true)
//	defer tracekit.Shutdown()
//
//	log := tracekit.Main()
//	log.LogMessage("started")
//	defer log.TrackMethod("work")()
//
// # Architecture
//
// A Session produces typed packets and hands them to its Tracer, the
// root dispatcher. The tracer fans each packet out to every configured
// protocol in connections-string order. A protocol configured with
// async.enabled queues the packet for its background worker; otherwise
// the packet is written synchronously under the protocol lock. Either
// way the binary formatter (package packet) serializes it into the
// transport's sink.
//
// Protocols are configured through a connections string, for example:
//
//	tcp(host=localhost, port=4228), file(filename="log.sil", rotate=daily, maxparts=7)
//
// See package protocol for the recognized options, package config for
// the configuration file format and hot reload, and package metric for
// optional Prometheus instrumentation.
package tracekit
