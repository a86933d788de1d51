package protocol

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
	"github.com/c360/tracekit/pkg/retry"
)

// Defaults for the nats transport.
const (
	defaultNATSSubject = "tracekit.packets"
	defaultNATSTimeout = 5 * time.Second
)

func init() {
	Register("nats", newNATSTransport)
}

// natsTransport publishes encoded packets to a NATS subject, one message
// per packet. Subscribers decode messages with packet.Decode; the framing
// is carried by the message boundary, so the in-band size field is
// redundant but kept identical to the other transports.
//
// Connection-level reconnection is left to the protocol base; the NATS
// client's own reconnect machinery is disabled so ordering semantics
// match the other transports.
type natsTransport struct {
	env Environment

	url     string
	subject string
	timeout time.Duration

	conn *nats.Conn
}

func newNATSTransport(env Environment) Transport {
	return &natsTransport{env: env}
}

// Name returns "nats".
func (t *natsTransport) Name() string { return "nats" }

// ValidOption reports the options recognized by the nats protocol.
func (t *natsTransport) ValidOption(name string) bool {
	switch name {
	case "url", "subject", "timeout":
		return true
	default:
		return false
	}
}

// LoadOptions reads the nats options.
func (t *natsTransport) LoadOptions(opts *Options) error {
	t.url = opts.GetString("url", nats.DefaultURL)
	t.subject = opts.GetString("subject", defaultNATSSubject)
	t.timeout = opts.GetDuration("timeout", defaultNATSTimeout)
	return nil
}

// Open connects to the NATS server, retrying briefly to ride out server
// startup races.
func (t *natsTransport) Open() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var conn *nats.Conn
	err := retry.Do(ctx, retry.Quick(), func() error {
		var dialErr error
		conn, dialErr = nats.Connect(t.url,
			nats.Name("tracekit "+t.env.AppName),
			nats.Timeout(t.timeout),
			nats.NoReconnect(),
		)
		return dialErr
	})
	if err != nil {
		return errors.WrapTransient(err, "natsTransport", "Open", "connect to server")
	}

	t.conn = conn
	t.env.info("connected to " + conn.ConnectedUrl())
	return nil
}

// Write publishes one encoded packet.
func (t *natsTransport) Write(p packet.Packet) error {
	if t.conn == nil {
		return errors.ErrNotConnected
	}
	return t.conn.Publish(t.subject, packet.Encode(p))
}

// Close flushes pending publishes and closes the connection.
func (t *natsTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.FlushTimeout(t.timeout)
	t.conn.Close()
	t.conn = nil
	return err
}
