package tracekit

import (
	"sync"

	"github.com/c360/tracekit/session"
)

// Process-wide tracer and main session, created on first access. Most
// applications use these instead of wiring their own Tracer; libraries
// that need isolation construct one with New.
var (
	defaultOnce    sync.Once
	defaultTracer  *Tracer
	defaultSession *session.Session
)

func initDefault() {
	defaultOnce.Do(func() {
		defaultTracer = New("Auto")
		defaultSession = defaultTracer.AddSession("Main", true)
	})
}

// Default returns the process-wide tracer, creating it on first access.
func Default() *Tracer {
	initDefault()
	return defaultTracer
}

// Main returns the process-wide default session, named "Main".
func Main() *session.Session {
	initDefault()
	return defaultSession
}

// Shutdown disconnects the process-wide tracer, joining all protocol
// workers and flushing what a clean shutdown can flush. Safe to call
// even when the default tracer was never used.
func Shutdown() error {
	if defaultTracer == nil {
		return nil
	}
	return defaultTracer.Close()
}
