package packet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/c360/tracekit/errors"
)

// absentLength marks a variable field that is absent, as opposed to
// present but empty.
const absentLength = 0xFFFFFFFF

// maxPacketSize bounds the size field accepted by Decode. Anything larger
// is treated as a corrupt stream rather than an allocation request.
const maxPacketSize = 64 << 20

// Encode serializes p into its on-wire form: a 2-byte little-endian kind
// tag, a 4-byte little-endian total size (including this 6-byte prefix),
// the kind-specific fixed header, then the variable fields.
func Encode(p Packet) []byte {
	size := p.Size()
	e := encoder{buf: make([]byte, 0, size)}
	e.u16(uint16(p.Kind()))
	e.u32(uint32(size))

	switch v := p.(type) {
	case *LogEntry:
		e.u32(uint32(v.EntryType))
		e.u32(uint32(v.ViewerID))
		e.u32(v.Color)
		e.u64(TicksFromTime(v.Timestamp))
		e.u32(v.ProcessID)
		e.u32(v.ThreadID)
		e.u32(uint32(len(v.Title)))
		e.u32(uint32(len(v.SessionName)))
		e.u32(uint32(len(v.AppName)))
		e.u32(uint32(len(v.HostName)))
		e.blobLen(v.Data)
		e.str(v.Title)
		e.str(v.SessionName)
		e.str(v.AppName)
		e.str(v.HostName)
		e.blob(v.Data)
	case *Watch:
		e.u32(uint32(v.WatchType))
		e.u64(TicksFromTime(v.Timestamp))
		e.u32(uint32(len(v.Name)))
		e.u32(uint32(len(v.Value)))
		e.str(v.Name)
		e.str(v.Value)
	case *ControlCommand:
		e.u32(uint32(v.CommandType))
		e.blobLen(v.Data)
		e.blob(v.Data)
	case *ProcessFlow:
		e.u32(uint32(v.FlowType))
		e.u64(TicksFromTime(v.Timestamp))
		e.u32(v.ProcessID)
		e.u32(v.ThreadID)
		e.u32(uint32(len(v.Title)))
		e.u32(uint32(len(v.HostName)))
		e.str(v.Title)
		e.str(v.HostName)
	case *LogHeader:
		e.u32(uint32(len(v.Content)))
		e.str(v.Content)
	}

	return e.buf
}

// Write encodes p and writes it to w in a single call.
func Write(w io.Writer, p Packet) (int, error) {
	return w.Write(Encode(p))
}

// Decode reads exactly one packet from r. It accepts any well-formed
// packet; unknown viewer ids and entry types are preserved opaquely.
// Decoding partitions a stream using only the in-band size field.
func Decode(r io.Reader) (Packet, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.WrapInvalid(err, "packet", "Decode", "read prefix")
	}

	kind := Kind(binary.LittleEndian.Uint16(prefix[0:2]))
	size := binary.LittleEndian.Uint32(prefix[2:6])
	if size < prefixSize || size > maxPacketSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("size field %d out of range", size),
			"packet", "Decode", "validate size")
	}

	body := make([]byte, size-prefixSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.WrapInvalid(err, "packet", "Decode", "read body")
	}

	d := decoder{buf: body}
	switch kind {
	case KindLogEntry:
		return d.logEntry()
	case KindWatch:
		return d.watch()
	case KindControlCommand:
		return d.controlCommand()
	case KindProcessFlow:
		return d.processFlow()
	case KindLogHeader:
		return d.logHeader()
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown packet kind %d", kind),
			"packet", "Decode", "dispatch kind")
	}
}

type encoder struct {
	buf []byte
}

func (e *encoder) u16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) str(s string) {
	e.buf = append(e.buf, s...)
}

// blobLen writes the length of an optional payload, distinguishing nil
// (absent) from empty.
func (e *encoder) blobLen(b []byte) {
	if b == nil {
		e.u32(absentLength)
		return
	}
	e.u32(uint32(len(b)))
}

func (e *encoder) blob(b []byte) {
	e.buf = append(e.buf, b...)
}

type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = errors.WrapInvalid(
			fmt.Errorf("truncated %s at offset %d", what, d.pos),
			"packet", "Decode", "read field")
	}
}

func (d *decoder) u32(what string) uint32 {
	if d.err != nil || d.pos+4 > len(d.buf) {
		d.fail(what)
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) u64(what string) uint64 {
	if d.err != nil || d.pos+8 > len(d.buf) {
		d.fail(what)
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) str(length uint32, what string) string {
	if length == absentLength || length == 0 {
		return ""
	}
	if d.err != nil || length > math.MaxInt32 || d.pos+int(length) > len(d.buf) {
		d.fail(what)
		return ""
	}
	v := string(d.buf[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return v
}

// bytes returns nil for an absent payload and an allocated copy otherwise.
func (d *decoder) bytes(length uint32, what string) []byte {
	if length == absentLength {
		return nil
	}
	if d.err != nil || length > math.MaxInt32 || d.pos+int(length) > len(d.buf) {
		d.fail(what)
		return nil
	}
	v := make([]byte, length)
	copy(v, d.buf[d.pos:d.pos+int(length)])
	d.pos += int(length)
	return v
}

func (d *decoder) logEntry() (*LogEntry, error) {
	e := &LogEntry{}
	e.EntryType = LogEntryType(d.u32("log entry type"))
	e.ViewerID = ViewerID(d.u32("viewer id"))
	e.Color = d.u32("color")
	e.Timestamp = TimeFromTicks(d.u64("timestamp"))
	e.ProcessID = d.u32("process id")
	e.ThreadID = d.u32("thread id")
	titleLen := d.u32("title length")
	sessionLen := d.u32("session length")
	appLen := d.u32("app name length")
	hostLen := d.u32("host name length")
	dataLen := d.u32("data length")
	e.Title = d.str(titleLen, "title")
	e.SessionName = d.str(sessionLen, "session name")
	e.AppName = d.str(appLen, "app name")
	e.HostName = d.str(hostLen, "host name")
	e.Data = d.bytes(dataLen, "data")
	return e, d.err
}

func (d *decoder) watch() (*Watch, error) {
	w := &Watch{}
	w.WatchType = WatchType(d.u32("watch type"))
	w.Timestamp = TimeFromTicks(d.u64("timestamp"))
	nameLen := d.u32("name length")
	valueLen := d.u32("value length")
	w.Name = d.str(nameLen, "name")
	w.Value = d.str(valueLen, "value")
	return w, d.err
}

func (d *decoder) controlCommand() (*ControlCommand, error) {
	c := &ControlCommand{Header: Header{PacketLevel: LevelControl}}
	c.CommandType = ControlCommandType(d.u32("command type"))
	dataLen := d.u32("data length")
	c.Data = d.bytes(dataLen, "data")
	return c, d.err
}

func (d *decoder) processFlow() (*ProcessFlow, error) {
	f := &ProcessFlow{}
	f.FlowType = ProcessFlowType(d.u32("flow type"))
	f.Timestamp = TimeFromTicks(d.u64("timestamp"))
	f.ProcessID = d.u32("process id")
	f.ThreadID = d.u32("thread id")
	titleLen := d.u32("title length")
	hostLen := d.u32("host name length")
	f.Title = d.str(titleLen, "title")
	f.HostName = d.str(hostLen, "host name")
	return f, d.err
}

func (d *decoder) logHeader() (*LogHeader, error) {
	h := &LogHeader{}
	contentLen := d.u32("content length")
	h.Content = d.str(contentLen, "content")
	return h, d.err
}
