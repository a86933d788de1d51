// Package session provides named emission contexts and their manager.
//
// A Session is the caller-facing handle for producing packets: it gates
// emission on its own active flag and level floor, stamps packets with
// its name and color, and hands them to the dispatcher (the root tracer).
// The Manager indexes sessions case-insensitively by name and applies
// defaults and deferred per-session properties.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/tracekit/packet"
)

// Dispatcher is the session's view of the root tracer: identity values
// for stamping packets and the fan-out entry points. All methods must be
// safe for concurrent use.
type Dispatcher interface {
	Enabled() bool
	Level() packet.Level
	DefaultLevel() packet.Level
	AppName() string
	HostName() string

	SendLogEntry(e *packet.LogEntry)
	SendWatch(w *packet.Watch)
	SendProcessFlow(f *packet.ProcessFlow)
	SendControlCommand(c *packet.ControlCommand)
}

// Session is a named emission context. Field mutations are individually
// atomic; there is no cross-field invariant, so readers may observe any
// interleaving of updates.
type Session struct {
	parent Dispatcher

	mu   sync.RWMutex
	name string

	active atomic.Bool
	level  atomic.Int32
	color  atomic.Uint32
}

// New creates a session bound to parent. Sessions are normally obtained
// through a Manager so that defaults apply; New is the low-level
// constructor.
func New(parent Dispatcher, name string) *Session {
	s := &Session{parent: parent, name: name}
	s.active.Store(true)
	s.level.Store(int32(packet.LevelDebug))
	s.color.Store(packet.DefaultColor)
	return s
}

// Name returns the session name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Active reports whether the session emits packets.
func (s *Session) Active() bool { return s.active.Load() }

// SetActive gates or ungates emission.
func (s *Session) SetActive(active bool) { s.active.Store(active) }

// Level returns the session's level floor.
func (s *Session) Level() packet.Level { return packet.Level(s.level.Load()) }

// SetLevel sets the session's level floor.
func (s *Session) SetLevel(level packet.Level) { s.level.Store(int32(level)) }

// Color returns the ARGB background color stamped on log entries.
func (s *Session) Color() uint32 { return s.color.Load() }

// SetColor sets the ARGB background color.
func (s *Session) SetColor(color uint32) { s.color.Store(color) }

// ResetColor restores the transparent default color.
func (s *Session) ResetColor() { s.color.Store(packet.DefaultColor) }

// IsOn reports whether a packet at the given level would currently be
// emitted. The check reads the root's enabled flag and level without a
// lock; a reload racing with it may mis-gate a packet, which is
// acceptable for instrumentation.
func (s *Session) IsOn(level packet.Level) bool {
	return s.active.Load() &&
		s.parent.Enabled() &&
		level >= s.Level() &&
		level >= s.parent.Level()
}

// LogEntry emits a fully specified log entry. Most callers use the
// convenience wrappers below.
func (s *Session) LogEntry(level packet.Level, entryType packet.LogEntryType,
	viewerID packet.ViewerID, title string, data []byte) {
	if !s.IsOn(level) {
		return
	}
	e := packet.NewLogEntry(level, entryType, viewerID)
	e.Title = title
	e.SessionName = s.Name()
	e.AppName = s.parent.AppName()
	e.HostName = s.parent.HostName()
	e.Color = s.Color()
	e.Data = data
	s.parent.SendLogEntry(e)
}

// LogMessage logs a message-level entry.
func (s *Session) LogMessage(title string) {
	s.LogEntry(packet.LevelMessage, packet.EntryMessage, packet.ViewerTitle, title, nil)
}

// LogMessagef logs a formatted message-level entry.
func (s *Session) LogMessagef(format string, args ...any) {
	s.LogMessage(fmt.Sprintf(format, args...))
}

// LogDebug logs a debug-level entry.
func (s *Session) LogDebug(title string) {
	s.LogEntry(packet.LevelDebug, packet.EntryDebug, packet.ViewerTitle, title, nil)
}

// LogVerbose logs a verbose-level entry.
func (s *Session) LogVerbose(title string) {
	s.LogEntry(packet.LevelVerbose, packet.EntryVerbose, packet.ViewerTitle, title, nil)
}

// LogWarning logs a warning-level entry.
func (s *Session) LogWarning(title string) {
	s.LogEntry(packet.LevelWarning, packet.EntryWarning, packet.ViewerTitle, title, nil)
}

// LogError logs an error-level entry.
func (s *Session) LogError(title string) {
	s.LogEntry(packet.LevelError, packet.EntryError, packet.ViewerTitle, title, nil)
}

// LogFatal logs a fatal-level entry.
func (s *Session) LogFatal(title string) {
	s.LogEntry(packet.LevelFatal, packet.EntryFatal, packet.ViewerTitle, title, nil)
}

// LogInternalError records a failure inside the logging pipeline itself.
func (s *Session) LogInternalError(title string) {
	s.LogEntry(packet.LevelError, packet.EntryInternalError, packet.ViewerTitle, title, nil)
}

// LogText logs a text document displayed in the viewer's text viewer.
func (s *Session) LogText(level packet.Level, title, text string) {
	s.LogEntry(level, packet.EntryText, packet.ViewerData, title, []byte(text))
}

// LogBinary logs a binary dump displayed as a hex view.
func (s *Session) LogBinary(level packet.Level, title string, data []byte) {
	s.LogEntry(level, packet.EntryBinary, packet.ViewerBinary, title, data)
}

// LogSource logs source code with syntax highlighting selected by
// viewerID (one of the source viewer ids).
func (s *Session) LogSource(level packet.Level, title, source string, viewerID packet.ViewerID) {
	s.LogEntry(level, packet.EntrySource, viewerID, title, []byte(source))
}

// Watch emits a watch packet at the root's default level.
func (s *Session) Watch(name, value string, watchType packet.WatchType) {
	s.WatchAt(s.parent.DefaultLevel(), name, value, watchType)
}

// WatchAt emits a watch packet at an explicit level.
func (s *Session) WatchAt(level packet.Level, name, value string, watchType packet.WatchType) {
	if !s.IsOn(level) {
		return
	}
	s.parent.SendWatch(packet.NewWatch(level, name, value, watchType))
}

// WatchString watches a string variable.
func (s *Session) WatchString(name, value string) {
	s.Watch(name, value, packet.WatchString)
}

// WatchInt watches an integer variable.
func (s *Session) WatchInt(name string, value int64) {
	s.Watch(name, fmt.Sprintf("%d", value), packet.WatchInteger)
}

// WatchFloat watches a floating point variable.
func (s *Session) WatchFloat(name string, value float64) {
	s.Watch(name, fmt.Sprintf("%g", value), packet.WatchFloat)
}

// WatchBool watches a boolean variable.
func (s *Session) WatchBool(name string, value bool) {
	s.Watch(name, fmt.Sprintf("%t", value), packet.WatchBoolean)
}

// EnterMethod marks entry into the named method: a process-flow enter
// packet plus an enter-method log entry.
func (s *Session) EnterMethod(name string) {
	level := s.parent.DefaultLevel()
	s.LogEntry(level, packet.EntryEnterMethod, packet.ViewerTitle, name, nil)
	s.processFlow(level, packet.FlowEnterMethod, name)
}

// LeaveMethod marks exit from the named method.
func (s *Session) LeaveMethod(name string) {
	level := s.parent.DefaultLevel()
	s.LogEntry(level, packet.EntryLeaveMethod, packet.ViewerTitle, name, nil)
	s.processFlow(level, packet.FlowLeaveMethod, name)
}

// TrackMethod emits the enter packets and returns the matching leave.
// Defer the returned function so every exit path emits the leave:
//
//	defer session.TrackMethod("handleRequest")()
func (s *Session) TrackMethod(name string) func() {
	s.EnterMethod(name)
	return func() { s.LeaveMethod(name) }
}

// EnterThread marks entry into a named thread of execution.
func (s *Session) EnterThread(name string) {
	s.processFlow(s.parent.DefaultLevel(), packet.FlowEnterThread, name)
}

// LeaveThread marks exit from a named thread of execution.
func (s *Session) LeaveThread(name string) {
	s.processFlow(s.parent.DefaultLevel(), packet.FlowLeaveThread, name)
}

// EnterProcess marks entry into the named process.
func (s *Session) EnterProcess(name string) {
	s.processFlow(s.parent.DefaultLevel(), packet.FlowEnterProcess, name)
}

// LeaveProcess marks exit from the named process.
func (s *Session) LeaveProcess(name string) {
	s.processFlow(s.parent.DefaultLevel(), packet.FlowLeaveProcess, name)
}

func (s *Session) processFlow(level packet.Level, flowType packet.ProcessFlowType, title string) {
	if !s.IsOn(level) {
		return
	}
	f := packet.NewProcessFlow(level, flowType, title)
	f.HostName = s.parent.HostName()
	s.parent.SendProcessFlow(f)
}

// ClearLog asks the viewer to clear all log entries.
func (s *Session) ClearLog() {
	s.controlCommand(packet.ControlClearLog)
}

// ClearWatches asks the viewer to clear all watches.
func (s *Session) ClearWatches() {
	s.controlCommand(packet.ControlClearWatches)
}

// ClearProcessFlow asks the viewer to clear the process flow display.
func (s *Session) ClearProcessFlow() {
	s.controlCommand(packet.ControlClearProcessFlow)
}

// ClearAll asks the viewer to clear everything.
func (s *Session) ClearAll() {
	s.controlCommand(packet.ControlClearAll)
}

func (s *Session) controlCommand(commandType packet.ControlCommandType) {
	if !s.IsOn(packet.LevelControl) {
		return
	}
	s.parent.SendControlCommand(packet.NewControlCommand(commandType))
}

