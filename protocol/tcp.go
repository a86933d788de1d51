package protocol

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

// Defaults for the tcp transport.
const (
	defaultTCPPort    = 4228
	defaultTCPTimeout = 30 * time.Second
)

func init() {
	Register("tcp", newTCPTransport)
}

// tcpTransport streams packets to a remote viewer. After the socket is
// open the viewer identifies itself with a banner line terminated by
// '\n'; the banner is surfaced through the info event. Packets are then
// sent in their plain binary encoding with no extra framing: the viewer
// partitions the stream using the in-band size field.
type tcpTransport struct {
	env Environment

	host    string
	port    int
	timeout time.Duration

	conn net.Conn
}

func newTCPTransport(env Environment) Transport {
	return &tcpTransport{env: env}
}

// Name returns "tcp".
func (t *tcpTransport) Name() string { return "tcp" }

// ValidOption reports the options recognized by the tcp protocol.
func (t *tcpTransport) ValidOption(name string) bool {
	switch name {
	case "host", "port", "timeout":
		return true
	default:
		return false
	}
}

// LoadOptions reads the tcp options.
func (t *tcpTransport) LoadOptions(opts *Options) error {
	t.host = opts.GetString("host", "127.0.0.1")
	t.port = opts.GetInt("port", defaultTCPPort)
	t.timeout = opts.GetDuration("timeout", defaultTCPTimeout)
	return nil
}

// Open dials the viewer and performs the banner handshake.
func (t *tcpTransport) Open() error {
	addr := net.JoinHostPort(t.host, fmt.Sprintf("%d", t.port))
	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		return errors.WrapTransient(err, "tcpTransport", "Open", "dial viewer")
	}

	banner, err := readBanner(conn, t.timeout)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrHandshakeFailed),
			"tcpTransport", "Open", "read banner")
	}

	t.conn = conn
	t.env.info(banner)
	return nil
}

// Write sends one packet, bounded by the configured timeout.
func (t *tcpTransport) Write(p packet.Packet) error {
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
func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// readBanner reads the server's identification line. The trailing line
// ending is stripped.
func readBanner(conn net.Conn, timeout time.Duration) (string, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", err
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	banner, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(banner, "\r\n"), nil
}
