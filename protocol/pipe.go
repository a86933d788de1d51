package protocol

import (
	"fmt"
	"net"
	"time"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

const defaultPipeTimeout = 30 * time.Second

func init() {
	Register("pipe", newPipeTransport)
}

// pipeTransport carries the tcp wire semantics over a local duplex byte
// stream: a unix domain socket addressed by the pipename option. The
// banner handshake and packet framing are identical to the tcp
// transport's.
type pipeTransport struct {
	env Environment

	pipeName string
	timeout  time.Duration

	conn net.Conn
}

func newPipeTransport(env Environment) Transport {
	return &pipeTransport{env: env}
}

// Name returns "pipe".
func (t *pipeTransport) Name() string { return "pipe" }

// ValidOption reports the options recognized by the pipe protocol.
func (t *pipeTransport) ValidOption(name string) bool {
	switch name {
	case "pipename", "timeout":
		return true
	default:
		return false
	}
}

// LoadOptions reads the pipe options. The pipename is a filesystem path
// to the local socket.
func (t *pipeTransport) LoadOptions(opts *Options) error {
	t.pipeName = opts.GetString("pipename", "tracekit.sock")
	t.timeout = opts.GetDuration("timeout", defaultPipeTimeout)
	return nil
}

// Open connects to the local viewer socket and performs the banner
// handshake.
func (t *pipeTransport) Open() error {
	conn, err := net.DialTimeout("unix", t.pipeName, t.timeout)
	if err != nil {
		return errors.WrapTransient(err, "pipeTransport", "Open", "dial pipe")
	}

	banner, err := readBanner(conn, t.timeout)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrHandshakeFailed),
			"pipeTransport", "Open", "read banner")
	}

	t.conn = conn
	t.env.info(banner)
	return nil
}

// Write sends one packet, bounded by the configured timeout.
func (t *pipeTransport) Write(p packet.Packet) error {
	if t.conn == nil {
		return errors.ErrNotConnected
	}
	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return err
		}
	}
	_, err := packet.Write(t.conn, p)
	return err
}

// Close shuts the socket down.
func (t *pipeTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
