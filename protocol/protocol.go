// Package protocol implements the tracekit delivery pipeline: parsing of
// connections strings into typed option maps, the protocol lifecycle
// (connect, write, disconnect, reconnect), the asynchronous scheduler and
// the built-in transports (file, text, tcp, pipe, mem, nats).
package protocol

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/metric"
	"github.com/c360/tracekit/packet"
	"github.com/c360/tracekit/pkg/buffer"
)

// State represents the connection state of a protocol instance
type State int32

// Protocol states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// PacketWriter receives packets one at a time. Protocol implements it, as
// does the flush target of the memory transport.
type PacketWriter interface {
	WritePacket(p packet.Packet) error
}

// Transport is the per-sink implementation driven by a Protocol. A
// transport owns exactly one resource (file, socket, pipe, ring or NATS
// connection); the owning Protocol serializes all calls into it.
type Transport interface {
	// Name returns the protocol name used in connections strings.
	Name() string

	// ValidOption reports whether the transport recognizes the named
	// option. Base options are validated by the Protocol itself.
	ValidOption(name string) bool

	// LoadOptions reads and validates transport-specific options.
	LoadOptions(opts *Options) error

	// Open establishes the underlying resource.
	Open() error

	// Write serializes one packet into the open resource.
	Write(p packet.Packet) error

	// Close releases the underlying resource.
	Close() error
}

// TransportDispatcher is implemented by transports that accept Dispatch
// payloads, such as the memory transport's flush requests.
type TransportDispatcher interface {
	Dispatch(payload any) error
}

// Environment carries the identity, logging, metrics and event hooks a
// transport may need. It is supplied by the owning tracer.
type Environment struct {
	AppName  string
	HostName string
	Logger   *slog.Logger
	Metrics  *metric.MetricsRegistry

	// OnError surfaces asynchronous failures; OnInfo carries non-error
	// notices such as server banners. Both may be nil.
	OnError func(error)
	OnInfo  func(string)
}

func (e Environment) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Environment) info(msg string) {
	if e.OnInfo != nil {
		e.OnInfo(msg)
	}
}

// Factory creates a transport bound to an environment.
type Factory func(env Environment) Transport

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a transport factory available under the given protocol
// name. Built-in transports register themselves during init.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Known reports whether a protocol name has a registered factory.
func Known(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Base options recognized by every protocol.
var baseOptions = map[string]bool{
	"level":                  true,
	"caption":                true,
	"reconnect":              true,
	"reconnect.interval":     true,
	"async.enabled":          true,
	"async.queue":            true,
	"async.throttle":         true,
	"async.clearondisconnect": true,
	"backlog.enabled":        true,
	"backlog.queue":          true,
	"backlog.flushon":        true,
	"backlog.keepopen":       true,
}

// Default option values shared by all protocols.
const (
	defaultQueueBytes        = 2 << 20 // 2 MiB
	defaultReconnectInterval = 10 * time.Second
)

// Protocol pairs a transport with the shared delivery machinery: option
// handling, the connect/disconnect state machine, rate-limited
// reconnection, the backlog ring and the asynchronous scheduler.
//
// In synchronous mode a mutex serializes writers; in asynchronous mode a
// single worker goroutine owns the transport and producers only touch the
// scheduler queue.
type Protocol struct {
	transport Transport
	env       Environment
	desc      Descriptor

	caption           string
	level             packet.Level
	reconnect         bool
	reconnectInterval time.Duration

	asyncEnabled           bool
	asyncThrottle          bool
	asyncClearOnDisconnect bool

	backlogEnabled bool
	backlogFlushOn packet.Level

	// keepOpen is false only when the backlog is enabled without
	// backlog.keepopen: the connection then lives only for the duration
	// of a flush.
	keepOpen bool

	backlog *buffer.Ring
	sched   *scheduler

	mu            sync.Mutex
	state         State
	lastReconnect time.Time
}

// New builds a protocol instance from a parsed descriptor. Unknown
// protocol names and unrecognized options are rejected here, never during
// logging.
func New(desc Descriptor, env Environment) (*Protocol, error) {
	factoriesMu.RLock()
	factory, ok := factories[desc.Name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown protocol %q: %w", desc.Name, errors.ErrInvalidConnections),
			"protocol", "New", "resolve protocol name")
	}

	t := factory(env)
	for _, key := range desc.Options.Keys() {
		if !baseOptions[key] && !t.ValidOption(key) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("option %q not available for protocol %q: %w",
					key, desc.Name, errors.ErrInvalidOption),
				"protocol", "New", "validate options")
		}
	}

	opts := desc.Options
	p := &Protocol{
		transport: t,
		env:       env,
		desc:      desc,

		caption:           opts.GetString("caption", desc.Name),
		level:             opts.GetLevel("level", packet.LevelDebug),
		reconnect:         opts.GetBool("reconnect", false),
		reconnectInterval: opts.GetDuration("reconnect.interval", defaultReconnectInterval),

		asyncEnabled:           opts.GetBool("async.enabled", false),
		asyncThrottle:          opts.GetBool("async.throttle", true),
		asyncClearOnDisconnect: opts.GetBool("async.clearondisconnect", false),

		backlogEnabled: opts.GetBool("backlog.enabled", false),
		backlogFlushOn: opts.GetLevel("backlog.flushon", packet.LevelError),
	}
	p.keepOpen = !p.backlogEnabled || opts.GetBool("backlog.keepopen", false)

	if err := t.LoadOptions(opts); err != nil {
		return nil, err
	}

	if p.backlogEnabled {
		ring, err := buffer.NewRing(opts.GetSize("backlog.queue", defaultQueueBytes))
		if err != nil {
			return nil, err
		}
		p.backlog = ring
	}

	if p.asyncEnabled {
		p.sched = newScheduler(p, opts.GetSize("async.queue", defaultQueueBytes), p.asyncThrottle)
	}

	return p, nil
}

// Name returns the transport's protocol name.
func (p *Protocol) Name() string { return p.transport.Name() }

// Caption returns the protocol's identity, used in metrics labels and for
// Dispatch routing. Defaults to the protocol name.
func (p *Protocol) Caption() string { return p.caption }

// Descriptor returns the descriptor this protocol was built from.
func (p *Protocol) Descriptor() Descriptor { return p.desc }

// State returns the current connection state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Asynchronous reports whether writes are handed to a background worker.
func (p *Protocol) Asynchronous() bool { return p.asyncEnabled }

// Connect establishes the transport's resource. In asynchronous mode the
// operation is enqueued and errors surface through the error event.
func (p *Protocol) Connect() error {
	if p.sched != nil {
		return p.sched.schedule(command{act: actConnect})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.implConnect()
}

// WritePacket delivers one packet, subject to the protocol level floor
// and the backlog policy. In asynchronous mode the packet is enqueued;
// otherwise it is written under the protocol lock.
func (p *Protocol) WritePacket(pkt packet.Packet) error {
	if pkt == nil {
		return errors.WrapInvalid(errors.ErrArgumentNil, "Protocol", "WritePacket", "nil packet")
	}
	if pkt.Level() < p.level {
		return nil
	}

	if p.backlogEnabled {
		if pkt.Level() < p.backlogFlushOn {
			p.backlog.Push(pkt)
			return nil
		}
		// Flush the retained ring ahead of the trigger packet.
		if err := p.backlog.Drain(p.forward); err != nil {
			return err
		}
	}

	return p.forward(pkt)
}

// Dispatch routes a custom payload to the transport, if it supports
// dispatching. The memory transport uses this for flush requests.
func (p *Protocol) Dispatch(payload any) error {
	if p.sched != nil {
		return p.sched.schedule(command{act: actDispatch, payload: payload})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.implDispatch(payload)
}

// Disconnect tears the protocol down. In asynchronous mode the stop flag
// is raised, a sentinel disconnect is enqueued, and the call blocks until
// the worker has drained and exited. Safe to call from any state.
func (p *Protocol) Disconnect() error {
	if p.sched != nil {
		p.sched.stop(p.asyncClearOnDisconnect)
		p.sched.join()
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.implDisconnect()
}

// Join blocks until the asynchronous worker has exited. It is a no-op
// for synchronous protocols.
func (p *Protocol) Join() {
	if p.sched != nil {
		p.sched.join()
	}
}

// forward hands a packet past the backlog stage: to the scheduler when
// asynchronous, to the transport otherwise.
func (p *Protocol) forward(pkt packet.Packet) error {
	if p.sched != nil {
		return p.sched.schedule(command{act: actWrite, pkt: pkt})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncWrite(pkt)
}

// execute runs one scheduler command on the worker goroutine. Failures
// are surfaced through the error event instead of propagating.
func (p *Protocol) execute(cmd command) {
	var err error
	p.mu.Lock()
	switch cmd.act {
	case actConnect:
		err = p.implConnect()
	case actWrite:
		err = p.syncWrite(cmd.pkt)
	case actDisconnect:
		err = p.implDisconnect()
	case actDispatch:
		err = p.implDispatch(cmd.payload)
	}
	p.mu.Unlock()

	if err != nil {
		p.surface(err)
	}
}

// implConnect drives Disconnected -> Connecting -> Connected. The caller
// holds p.mu.
func (p *Protocol) implConnect() error {
	if p.state == StateConnected {
		return nil
	}
	if !p.keepOpen {
		// The connection is established per flush instead.
		return nil
	}

	p.setState(StateConnecting)
	if err := p.transport.Open(); err != nil {
		p.setState(StateDisconnected)
		return p.protoErr("connect", err)
	}
	p.setState(StateConnected)
	return nil
}

// syncWrite writes one packet through the transport, reconnecting first
// when allowed. The caller holds p.mu.
func (p *Protocol) syncWrite(pkt packet.Packet) error {
	if !p.keepOpen {
		return p.shortLivedWrite(pkt)
	}

	if p.state != StateConnected {
		if p.reconnect {
			p.tryReconnect()
		}
		if p.state != StateConnected {
			return p.protoErr("write", errors.ErrNotConnected)
		}
	}

	if err := p.transport.Write(pkt); err != nil {
		_ = p.transport.Close()
		p.setState(StateDisconnected)
		p.countError()
		return p.protoErr("write", err)
	}

	p.countWritten()
	return nil
}

// shortLivedWrite opens the transport, writes one packet and closes again.
// Used when the backlog is configured without backlog.keepopen.
func (p *Protocol) shortLivedWrite(pkt packet.Packet) error {
	if err := p.transport.Open(); err != nil {
		p.countError()
		return p.protoErr("write", err)
	}
	werr := p.transport.Write(pkt)
	cerr := p.transport.Close()
	if werr != nil {
		p.countError()
		return p.protoErr("write", werr)
	}
	if cerr != nil {
		return p.protoErr("write", cerr)
	}
	p.countWritten()
	return nil
}

// tryReconnect attempts one reconnect, rate-limited by the configured
// interval. The caller holds p.mu.
func (p *Protocol) tryReconnect() {
	now := time.Now()
	if !p.lastReconnect.IsZero() && now.Sub(p.lastReconnect) < p.reconnectInterval {
		return
	}
	p.lastReconnect = now

	p.setState(StateReconnecting)
	if m := p.coreMetrics(); m != nil {
		m.Reconnects.WithLabelValues(p.caption).Inc()
	}

	if err := p.transport.Open(); err != nil {
		p.setState(StateDisconnected)
		p.env.logger().Debug("reconnect attempt failed",
			"protocol", p.caption, "error", err)
		return
	}
	p.setState(StateConnected)
}

// implDisconnect drives any state to Disconnected. The caller holds p.mu.
func (p *Protocol) implDisconnect() error {
	if p.backlog != nil {
		p.backlog.Clear()
	}
	if p.state == StateDisconnected {
		return nil
	}

	err := p.transport.Close()
	p.setState(StateDisconnected)
	if err != nil {
		return p.protoErr("disconnect", err)
	}
	return nil
}

func (p *Protocol) implDispatch(payload any) error {
	d, ok := p.transport.(TransportDispatcher)
	if !ok {
		return nil
	}
	if err := d.Dispatch(payload); err != nil {
		return p.protoErr("dispatch", err)
	}
	return nil
}

func (p *Protocol) setState(s State) {
	p.state = s
	if m := p.coreMetrics(); m != nil {
		m.ConnectionStatus.WithLabelValues(p.caption).Set(float64(s))
	}
}

// surface reports an asynchronous failure through the error event. The
// logging hot path never sees it.
func (p *Protocol) surface(err error) {
	p.env.logger().Warn("asynchronous protocol operation failed",
		"protocol", p.caption, "error", err)
	if p.env.OnError != nil {
		p.env.OnError(err)
	}
}

func (p *Protocol) protoErr(op string, err error) error {
	return errors.WrapTransient(
		fmt.Errorf("%s %s: %v: %w", p.caption, op, err, errors.ErrProtocol),
		"Protocol", op, "transport operation")
}

func (p *Protocol) coreMetrics() *metric.Metrics {
	if p.env.Metrics == nil {
		return nil
	}
	return p.env.Metrics.CoreMetrics()
}

func (p *Protocol) countWritten() {
	if m := p.coreMetrics(); m != nil {
		m.PacketsWritten.WithLabelValues(p.caption).Inc()
	}
}

func (p *Protocol) countError() {
	if m := p.coreMetrics(); m != nil {
		m.WriteErrors.WithLabelValues(p.caption).Inc()
	}
}
