package protocol

import (
	"io"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
	"github.com/c360/tracekit/pkg/buffer"
)

const defaultMemoryBytes = 2 << 20

func init() {
	Register("mem", newMemoryTransport)
}

// FlushOnDisconnect is a Dispatch payload for the memory transport: it
// registers a writer that receives the retained packets when the
// protocol disconnects. Used for "capture everything, forward on error"
// setups.
type FlushOnDisconnect struct {
	Target PacketWriter
}

// memoryTransport keeps the most recent packets in a byte-budgeted ring
// in RAM. Nothing leaves the process until a flush is requested through
// Dispatch or a flush-on-disconnect target is registered.
type memoryTransport struct {
	env Environment

	maxBytes int64
	asText   bool
	pattern  string

	ring        *buffer.Ring
	flushTarget PacketWriter
}

func newMemoryTransport(env Environment) Transport {
	return &memoryTransport{env: env}
}

// Name returns "mem".
func (t *memoryTransport) Name() string { return "mem" }

// ValidOption reports the options recognized by the memory protocol.
func (t *memoryTransport) ValidOption(name string) bool {
	switch name {
	case "maxsize", "astext", "pattern":
		return true
	default:
		return false
	}
}

// LoadOptions reads the memory options.
func (t *memoryTransport) LoadOptions(opts *Options) error {
	t.maxBytes = opts.GetSize("maxsize", defaultMemoryBytes)
	t.asText = opts.GetBool("astext", false)
	t.pattern = opts.GetString("pattern", defaultTextPattern)
	return nil
}

// Open allocates the ring.
func (t *memoryTransport) Open() error {
	ring, err := buffer.NewRing(t.maxBytes)
	if err != nil {
		return err
	}
	t.ring = ring
	return nil
}

// Write retains the packet, evicting the oldest retained packets when
// the byte budget is exceeded.
func (t *memoryTransport) Write(p packet.Packet) error {
	if t.ring == nil {
		return errors.ErrNotConnected
	}
	t.ring.Push(p)
	return nil
}

// Close re-emits the retained packets into the flush-on-disconnect
// target, if one was registered, then discards the ring.
func (t *memoryTransport) Close() error {
	if t.ring == nil {
		return nil
	}

	var err error
	if t.flushTarget != nil {
		err = t.ring.Drain(t.flushTarget.WritePacket)
	}

	t.ring.Clear()
	t.ring = nil
	return err
}

// Dispatch handles flush requests:
//
//   - A PacketWriter payload receives the retained packets immediately.
//   - An io.Writer payload receives a rendered dump: the binary log
//     format, or pattern-formatted lines when astext is set.
//   - A FlushOnDisconnect payload registers the disconnect target.
func (t *memoryTransport) Dispatch(payload any) error {
	if t.ring == nil {
		return errors.ErrNotConnected
	}

	switch v := payload.(type) {
	case FlushOnDisconnect:
		t.flushTarget = v.Target
		return nil
	case PacketWriter:
		return t.ring.Drain(v.WritePacket)
	case io.Writer:
		return t.flushStream(v)
	default:
		return errors.WrapInvalid(errors.ErrArgumentOutOfRange,
			"memoryTransport", "Dispatch", "unsupported payload type")
	}
}

// flushStream renders the retained packets into w without consuming
// them.
func (t *memoryTransport) flushStream(w io.Writer) error {
	if t.asText {
		if _, err := w.Write(textBOM); err != nil {
			return err
		}
		line := &textTransport{
			fileTransport: &fileTransport{env: t.env},
			pattern:       t.pattern,
		}
		for _, p := range t.ring.Snapshot() {
			if _, err := line.writeLine(w, p); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	for _, p := range t.ring.Snapshot() {
		if _, err := packet.Write(w, p); err != nil {
			return err
		}
	}
	return nil
}
