package session

import (
	"strings"
	"sync"

	"github.com/c360/tracekit/packet"
)

// Defaults is the attribute block copied onto a session at creation
// time. Changing defaults never retroactively affects existing sessions.
type Defaults struct {
	Active bool
	Level  packet.Level
	Color  uint32
}

// NewDefaults returns the built-in defaults: active, debug level,
// transparent color.
func NewDefaults() Defaults {
	return Defaults{
		Active: true,
		Level:  packet.LevelDebug,
		Color:  packet.DefaultColor,
	}
}

// apply copies the defaults onto a session.
func (d Defaults) apply(s *Session) {
	s.SetActive(d.Active)
	s.SetLevel(d.Level)
	s.SetColor(d.Color)
}

// Properties is a partial attribute update for a named session. Nil
// fields are left untouched.
type Properties struct {
	Active *bool
	Level  *packet.Level
	Color  *uint32
}

// apply copies the non-nil properties onto a session.
func (p Properties) apply(s *Session) {
	if p.Active != nil {
		s.SetActive(*p.Active)
	}
	if p.Level != nil {
		s.SetLevel(*p.Level)
	}
	if p.Color != nil {
		s.SetColor(*p.Color)
	}
}

// Manager indexes sessions by name, case-insensitively, and holds the
// defaults block plus deferred per-session properties. A single lock
// serializes all access; holders must not invoke logging while inside a
// manager operation.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]Properties
	defaults Defaults
}

// NewManager returns an empty manager with built-in defaults.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		pending:  make(map[string]Properties),
		defaults: NewDefaults(),
	}
}

func sessionKey(name string) string {
	return strings.ToLower(name)
}

// Add creates a session bound to parent with attributes copied from the
// defaults block. When store is true the session is registered under its
// name and visible via Get; a duplicate name returns the already
// registered session unchanged. When store is false the session is
// configured but stays unregistered.
func (m *Manager) Add(parent Dispatcher, name string, store bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(name)
	if store {
		if existing, ok := m.sessions[key]; ok {
			return existing
		}
	}

	s := New(parent, name)
	m.defaults.apply(s)
	if props, ok := m.pending[key]; ok {
		props.apply(s)
	}

	if store {
		m.sessions[key] = s
	}
	return s
}

// Get returns the registered session with the given name, or nil when
// unknown. Lookup is case-insensitive.
func (m *Manager) Get(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionKey(name)]
}

// Delete removes the session from the name index. The session object
// itself remains usable; only lookup is affected.
func (m *Manager) Delete(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(s.Name())
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
}

// Update renames a registered session atomically. When the new name is
// already taken by another session, the first registrant keeps it and
// the renamed session simply drops out of the index under its old name.
func (m *Manager) Update(s *Session, toName, fromName string) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := sessionKey(fromName)
	toKey := sessionKey(toName)

	if m.sessions[fromKey] == s {
		delete(m.sessions, fromKey)
	}
	s.setName(toName)
	if _, taken := m.sessions[toKey]; !taken {
		m.sessions[toKey] = s
	}
}

// LoadDefaults replaces the defaults block. Existing sessions keep their
// current attributes.
func (m *Manager) LoadDefaults(d Defaults) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = d
}

// Defaults returns the current defaults block.
func (m *Manager) Defaults() Defaults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults
}

// LoadProperties applies the property block to the named session when it
// exists; otherwise the block is queued and applied if a session with
// that name is added later.
func (m *Manager) LoadProperties(name string, props Properties) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(name)
	if s, ok := m.sessions[key]; ok {
		props.apply(s)
		return
	}
	m.pending[key] = props
}

// LoadConfiguration replaces all deferred property blocks and applies
// the new blocks to any matching registered sessions. Used by the hot
// reload path.
func (m *Manager) LoadConfiguration(all map[string]Properties) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = make(map[string]Properties, len(all))
	for name, props := range all {
		key := sessionKey(name)
		m.pending[key] = props
		if s, ok := m.sessions[key]; ok {
			props.apply(s)
		}
	}
}

// Clear drops every registered session and all deferred properties.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
	m.pending = make(map[string]Properties)
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
