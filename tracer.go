package tracekit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/tracekit/config"
	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/metric"
	"github.com/c360/tracekit/packet"
	"github.com/c360/tracekit/pkg/retry"
	"github.com/c360/tracekit/protocol"
	"github.com/c360/tracekit/session"
)

// Filter inspects a packet before fan-out; returning true suppresses it.
type Filter func(p packet.Packet) bool

// Tracer is the root object: it owns the session manager, the protocol
// set and the connection variables, and fans every packet out to all
// configured protocols in connections-string order.
//
// The enabled flag and the two levels are read lock-free on the logging
// hot path; the protocol set is an atomic snapshot replaced under the
// tracer lock, so readers observe either the old or the new set, never a
// tear.
type Tracer struct {
	hostName   string
	instanceID string
	logger     *slog.Logger
	metrics    *metric.MetricsRegistry

	enabled      atomic.Bool
	level        atomic.Int32
	defaultLevel atomic.Int32
	appName      atomic.Value // string

	protos atomic.Value // []*protocol.Protocol

	mu          sync.Mutex // serializes configuration changes
	connections string

	sessions  *session.Manager
	variables *protocol.Variables

	eventMu    sync.RWMutex
	errorEvent func(error)
	infoEvent  func(string)
	filter     Filter

	watcher *config.Watcher
}

// Option configures a Tracer at construction.
type Option func(*Tracer)

// WithLogger sets the slog logger used for the library's own
// diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics attaches a metrics registry; protocols and schedulers then
// record delivery and queue metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(t *Tracer) { t.metrics = registry }
}

// New creates a tracer for the given application name. The tracer starts
// disabled with no connections.
func New(appName string, opts ...Option) *Tracer {
	hostName, err := os.Hostname()
	if err != nil {
		hostName = ""
	}

	t := &Tracer{
		hostName:   hostName,
		instanceID: uuid.NewString(),
		logger:     slog.Default(),
		sessions:   session.NewManager(),
		variables:  protocol.NewVariables(),
	}
	t.appName.Store(appName)
	t.level.Store(int32(packet.LevelDebug))
	t.defaultLevel.Store(int32(packet.LevelMessage))
	t.protos.Store([]*protocol.Protocol{})

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AppName returns the application name stamped on outgoing packets.
func (t *Tracer) AppName() string {
	name, _ := t.appName.Load().(string)
	return name
}

// SetAppName changes the application name.
func (t *Tracer) SetAppName(name string) { t.appName.Store(name) }

// HostName returns the local host name stamped on outgoing packets.
func (t *Tracer) HostName() string { return t.hostName }

// InstanceID returns this tracer's unique id, carried in the log header.
func (t *Tracer) InstanceID() string { return t.instanceID }

// Enabled reports whether logging is on.
func (t *Tracer) Enabled() bool { return t.enabled.Load() }

// Level returns the root level floor.
func (t *Tracer) Level() packet.Level { return packet.Level(t.level.Load()) }

// SetLevel sets the root level floor.
func (t *Tracer) SetLevel(level packet.Level) { t.level.Store(int32(level)) }

// DefaultLevel returns the level used by convenience methods without an
// explicit level.
func (t *Tracer) DefaultLevel() packet.Level { return packet.Level(t.defaultLevel.Load()) }

// SetDefaultLevel sets the default level.
func (t *Tracer) SetDefaultLevel(level packet.Level) { t.defaultLevel.Store(int32(level)) }

// SetEnabled turns logging on or off. Enabling connects all configured
// protocols and sends the log header; disabling disconnects them and
// joins their workers.
func (t *Tracer) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyEnabled(enabled)
}

// applyEnabled flips the enabled flag. The caller holds t.mu.
func (t *Tracer) applyEnabled(enabled bool) {
	if t.enabled.Load() == enabled {
		return
	}

	if enabled {
		t.enabled.Store(true)
		t.connectAll(t.protocols())
		return
	}

	t.enabled.Store(false)
	t.disconnectAll(t.protocols())
}

func (t *Tracer) connectAll(protos []*protocol.Protocol) {
	for _, p := range protos {
		if err := p.Connect(); err != nil {
			t.fireError(err)
		}
	}
	t.sendLogHeader(protos)
}

func (t *Tracer) disconnectAll(protos []*protocol.Protocol) {
	for _, p := range protos {
		if err := p.Disconnect(); err != nil {
			t.fireError(err)
		}
	}
}

// sendLogHeader announces the producer identity on each protocol.
func (t *Tracer) sendLogHeader(protos []*protocol.Protocol) {
	header := packet.NewLogHeader(t.AppName(), t.hostName, t.instanceID)
	for _, p := range protos {
		if err := p.WritePacket(header); err != nil {
			t.fireError(err)
		}
	}
}

// Connections returns the current connections string.
func (t *Tracer) Connections() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connections
}

// SetConnections replaces the protocol set from a connections string.
// Connection variables are expanded before parsing. Existing protocols
// whose normalized descriptor is unchanged are kept as they are; the
// others are disconnected. New protocols connect when the tracer is
// enabled.
func (t *Tracer) SetConnections(connections string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applyConnections(connections)
}

// applyConnections rebuilds the protocol set, preserving instances whose
// normalized descriptor is unchanged. The caller holds t.mu.
func (t *Tracer) applyConnections(connections string) error {
	expanded := t.variables.Expand(connections)

	descs, err := protocol.ParseConnections(expanded)
	if err != nil {
		return err
	}

	old := t.protocols()
	unmatched := make(map[string]*protocol.Protocol, len(old))
	for _, p := range old {
		unmatched[p.Descriptor().Normalized()] = p
	}

	env := protocol.Environment{
		AppName:  t.AppName(),
		HostName: t.hostName,
		Logger:   t.logger,
		Metrics:  t.metrics,
		OnError:  t.fireError,
		OnInfo:   t.fireInfo,
	}

	fresh := make([]*protocol.Protocol, 0, len(descs))
	var created []*protocol.Protocol
	for _, desc := range descs {
		key := desc.Normalized()
		if existing, ok := unmatched[key]; ok {
			delete(unmatched, key)
			fresh = append(fresh, existing)
			continue
		}
		p, err := protocol.New(desc, env)
		if err != nil {
			// Roll back protocols created so far; the old set stays.
			for _, c := range created {
				_ = c.Disconnect()
			}
			return err
		}
		fresh = append(fresh, p)
		created = append(created, p)
	}

	for _, p := range unmatched {
		if err := p.Disconnect(); err != nil {
			t.fireError(err)
		}
	}

	t.connections = connections
	t.protos.Store(fresh)

	if t.enabled.Load() {
		t.connectAll(created)
	}
	return nil
}

func (t *Tracer) protocols() []*protocol.Protocol {
	protos, _ := t.protos.Load().([]*protocol.Protocol)
	return protos
}

// SetVariable adds or updates a connection variable.
func (t *Tracer) SetVariable(key, value string) {
	t.variables.Put(key, value)
}

// GetVariable returns a connection variable's value, or "" when unset.
func (t *Tracer) GetVariable(key string) string {
	value, _ := t.variables.Get(key)
	return value
}

// UnsetVariable removes a connection variable.
func (t *Tracer) UnsetVariable(key string) {
	t.variables.Remove(key)
}

// SetErrorEvent registers the callback invoked for delivery failures.
// Asynchronous protocols surface all their errors here.
func (t *Tracer) SetErrorEvent(fn func(error)) {
	t.eventMu.Lock()
	t.errorEvent = fn
	t.eventMu.Unlock()
}

// SetInfoEvent registers the callback for non-error notices: server
// banners and reload confirmations.
func (t *Tracer) SetInfoEvent(fn func(string)) {
	t.eventMu.Lock()
	t.infoEvent = fn
	t.eventMu.Unlock()
}

// SetFilter registers a packet filter; returning true drops the packet
// before fan-out.
func (t *Tracer) SetFilter(fn Filter) {
	t.eventMu.Lock()
	t.filter = fn
	t.eventMu.Unlock()
}

func (t *Tracer) fireError(err error) {
	t.logger.Warn("tracekit delivery error", "error", err)
	t.eventMu.RLock()
	fn := t.errorEvent
	t.eventMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (t *Tracer) fireInfo(msg string) {
	t.logger.Debug("tracekit notice", "message", msg)
	t.eventMu.RLock()
	fn := t.infoEvent
	t.eventMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (t *Tracer) filtered(p packet.Packet) bool {
	t.eventMu.RLock()
	fn := t.filter
	t.eventMu.RUnlock()
	return fn != nil && fn(p)
}

// dispatchPacket fans one packet out to every protocol in
// connections-string order. Failures never propagate to the caller.
func (t *Tracer) dispatchPacket(p packet.Packet) {
	if !t.enabled.Load() || t.filtered(p) {
		return
	}
	for _, proto := range t.protocols() {
		if err := proto.WritePacket(p); err != nil {
			t.fireError(err)
		}
	}
}

// SendLogEntry fans a log entry out to all protocols.
func (t *Tracer) SendLogEntry(e *packet.LogEntry) { t.dispatchPacket(e) }

// SendWatch fans a watch out to all protocols.
func (t *Tracer) SendWatch(w *packet.Watch) { t.dispatchPacket(w) }

// SendProcessFlow fans a process flow record out to all protocols.
func (t *Tracer) SendProcessFlow(f *packet.ProcessFlow) { t.dispatchPacket(f) }

// SendControlCommand fans a control command out to all protocols.
func (t *Tracer) SendControlCommand(c *packet.ControlCommand) { t.dispatchPacket(c) }

// Dispatch routes a custom payload to the protocol with the given
// caption, such as a flush request for a memory protocol.
func (t *Tracer) Dispatch(caption string, payload any) error {
	for _, proto := range t.protocols() {
		if proto.Caption() == caption {
			return proto.Dispatch(payload)
		}
	}
	return errors.WrapInvalid(
		fmt.Errorf("no protocol with caption %q: %w", caption, errors.ErrArgumentOutOfRange),
		"Tracer", "Dispatch", "resolve caption")
}

// AddSession creates (or returns) a named session. With store=true the
// session is registered and retrievable via GetSession.
func (t *Tracer) AddSession(name string, store bool) *session.Session {
	return t.sessions.Add(t, name, store)
}

// GetSession looks a registered session up by name, case-insensitively.
func (t *Tracer) GetSession(name string) *session.Session {
	return t.sessions.Get(name)
}

// Sessions exposes the session manager.
func (t *Tracer) Sessions() *session.Manager {
	return t.sessions
}

// LoadConfiguration reads a configuration file and atomically applies
// it: enabled flag, levels, application name, session defaults and
// properties, and the connections string. Protocol instances whose
// descriptor is unchanged survive the reload.
func (t *Tracer) LoadConfiguration(path string) error {
	var cfg *config.Configuration
	err := retry.Do(context.Background(), retry.Quick(), func() error {
		var loadErr error
		cfg, loadErr = config.Load(path)
		return loadErr
	})
	if err != nil {
		t.selfLog("configuration load failed: " + err.Error())
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.SetLevel(cfg.ReadLevel("level", t.Level()))
	t.SetDefaultLevel(cfg.ReadLevel("defaultlevel", t.DefaultLevel()))
	if cfg.Contains("appname") {
		t.SetAppName(cfg.ReadString("appname", t.AppName()))
	}

	t.loadSessionSettings(cfg)

	if cfg.Contains("connections") {
		if err := t.applyConnections(cfg.ReadString("connections", "")); err != nil {
			wrapped := errors.WrapInvalid(
				fmt.Errorf("%v: %w", err, errors.ErrLoadConnections),
				"Tracer", "LoadConfiguration", "apply connections")
			t.selfLog(wrapped.Error())
			return wrapped
		}
	}

	t.applyEnabled(cfg.ReadBool("enabled", t.enabled.Load()))

	t.fireInfo("configuration loaded: " + path)
	return nil
}

// loadSessionSettings routes sessiondefaults.* to the manager's defaults
// block and session.<name>.<attr> keys to per-session properties.
func (t *Tracer) loadSessionSettings(cfg *config.Configuration) {
	defaults := t.sessions.Defaults()
	defaults.Active = cfg.ReadBool("sessiondefaults.active", defaults.Active)
	defaults.Level = cfg.ReadLevel("sessiondefaults.level", defaults.Level)
	defaults.Color = cfg.ReadColor("sessiondefaults.color", defaults.Color)
	t.sessions.LoadDefaults(defaults)

	props := make(map[string]session.Properties)
	for _, key := range cfg.Keys() {
		rest, ok := strings.CutPrefix(key, "session.")
		if !ok {
			continue
		}
		name, attr, ok := strings.Cut(rest, ".")
		if !ok || name == "" {
			continue
		}

		p := props[name]
		switch attr {
		case "active":
			v := cfg.ReadBool(key, true)
			p.Active = &v
		case "level":
			v := cfg.ReadLevel(key, packet.LevelDebug)
			p.Level = &v
		case "color":
			v := cfg.ReadColor(key, packet.DefaultColor)
			p.Color = &v
		}
		props[name] = p
	}
	if len(props) > 0 {
		t.sessions.LoadConfiguration(props)
	}
}

// WatchConfiguration loads the configuration file and then monitors it,
// reloading on every change. Deleting the file disables the tracer.
func (t *Tracer) WatchConfiguration(path string) error {
	if err := t.LoadConfiguration(path); err != nil {
		return err
	}

	watcher, err := config.NewWatcher(path,
		func() {
			if err := t.LoadConfiguration(path); err != nil {
				t.fireError(err)
			}
		},
		func() {
			t.SetEnabled(false)
		},
		t.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}

	t.mu.Lock()
	previous := t.watcher
	t.watcher = watcher
	t.mu.Unlock()

	// Close outside the lock: the old watcher's goroutine may be blocked
	// in a reload that needs it.
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// selfLog records an internal failure as a distinguished InternalError
// log entry, in addition to the structured log.
func (t *Tracer) selfLog(msg string) {
	t.logger.Warn("tracekit internal error", "message", msg)
	if !t.enabled.Load() {
		return
	}
	e := packet.NewLogEntry(packet.LevelError, packet.EntryInternalError, packet.ViewerTitle)
	e.Title = msg
	e.SessionName = "tracekit"
	e.AppName = t.AppName()
	e.HostName = t.hostName
	t.dispatchPacket(e)
}

// Close disables the tracer, joining every protocol worker, and stops
// the configuration watcher. The tracer can be re-enabled afterwards
// only by configuring new connections.
func (t *Tracer) Close() error {
	t.mu.Lock()
	watcher := t.watcher
	t.watcher = nil
	t.mu.Unlock()

	// Close the watcher outside the lock: its goroutine may be blocked
	// in a reload that needs it.
	if watcher != nil {
		_ = watcher.Close()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled.Store(false)
	t.disconnectAll(t.protocols())
	t.protos.Store([]*protocol.Protocol{})
	t.connections = ""
	return nil
}
