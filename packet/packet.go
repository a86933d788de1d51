// Package packet defines the typed records emitted by tracekit and their
// compact binary encoding.
//
// Every record is a Packet: a small fixed header identifying the packet
// kind plus kind-specific fields. Packets are immutable once handed to a
// dispatcher; the binary formatter borrows them read-only during
// serialization.
package packet

import (
	"bytes"
	"math"
	"os"
	"runtime"
	"strconv"
)

// Kind identifies the packet type on the wire. The numeric values are part
// of the log file format and must not change.
type Kind uint16

// Wire packet kinds
const (
	KindControlCommand Kind = 1
	KindLogEntry       Kind = 4
	KindWatch          Kind = 5
	KindProcessFlow    Kind = 6
	KindLogHeader      Kind = 7
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindControlCommand:
		return "controlcommand"
	case KindLogEntry:
		return "logentry"
	case KindWatch:
		return "watch"
	case KindProcessFlow:
		return "processflow"
	case KindLogHeader:
		return "logheader"
	default:
		return "unknown"
	}
}

// prefixSize is the length of the kind tag plus the size field that
// precedes every encoded packet.
const prefixSize = 6

// Packet is the interface satisfied by all record types.
//
// Size reports the total encoded size in bytes, including the 6-byte
// kind/size prefix. The scheduler uses it for queue accounting and the
// formatter writes it verbatim into the size field.
type Packet interface {
	Kind() Kind
	Level() Level
	Size() int
}

// Header carries the fields common to every packet kind.
type Header struct {
	PacketLevel Level
	ThreadID    uint32
	ProcessID   uint32
}

// Level returns the level this packet was emitted at.
func (h *Header) Level() Level { return h.PacketLevel }

// CurrentProcessID returns the calling process id, saturated to 32 bits.
func CurrentProcessID() uint32 {
	return saturateUint32(os.Getpid())
}

// CurrentThreadID returns the current goroutine id, saturated to 32 bits.
// The id is parsed from the runtime stack header; goroutine ids are the
// closest analogue to thread ids the viewer understands.
func CurrentThreadID() uint32 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	// First line reads "goroutine N [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	if id > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(id)
}

func saturateUint32(v int) uint32 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func newHeader(level Level) Header {
	return Header{
		PacketLevel: level,
		ThreadID:    CurrentThreadID(),
		ProcessID:   CurrentProcessID(),
	}
}
