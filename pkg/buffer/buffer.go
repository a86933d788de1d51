// Package buffer provides a thread-safe, byte-budgeted packet ring.
//
// The ring retains packets in FIFO order under a byte budget: pushing a
// packet that would exceed the budget evicts the oldest retained packets
// until it fits. Statistics are always collected; Prometheus metrics can
// be optionally enabled via WithMetrics().
//
// Two tracekit features are built on the ring: the backlog option of the
// protocol base (packets held until a trigger level arrives) and the
// memory protocol (packets kept in RAM until flushed).
package buffer

import (
	"github.com/c360/tracekit/packet"
)

// DropCallback is invoked for every packet evicted from the ring.
type DropCallback func(packet.Packet)
