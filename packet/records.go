package packet

import "time"

// Fixed header sizes per kind, including the length fields of the
// variable section but not the 6-byte kind/size prefix.
const (
	logEntryHeaderSize       = 48
	watchHeaderSize          = 20
	controlCommandHeaderSize = 8
	processFlowHeaderSize    = 28
	logHeaderHeaderSize      = 4
)

// LogEntry is the record behind nearly all logging calls. It carries the
// creation context (timestamp, process and thread ids, host and
// application names) along with the title and an opaque data payload whose
// interpretation is selected by ViewerID.
type LogEntry struct {
	Header
	EntryType   LogEntryType
	ViewerID    ViewerID
	Color       uint32
	Timestamp   time.Time
	Title       string
	SessionName string
	AppName     string
	HostName    string

	// Data is the optional viewer payload. A nil slice means absent and
	// is encoded distinctly from an empty payload.
	Data []byte
}

// NewLogEntry returns a log entry stamped with the current process and
// goroutine ids and the current UTC time.
func NewLogEntry(level Level, entryType LogEntryType, viewerID ViewerID) *LogEntry {
	return &LogEntry{
		Header:    newHeader(level),
		EntryType: entryType,
		ViewerID:  viewerID,
		Color:     DefaultColor,
		Timestamp: time.Now().UTC(),
	}
}

// Kind returns KindLogEntry.
func (e *LogEntry) Kind() Kind { return KindLogEntry }

// Size returns the total encoded size including the 6-byte prefix.
func (e *LogEntry) Size() int {
	return prefixSize + logEntryHeaderSize +
		len(e.Title) + len(e.SessionName) + len(e.AppName) + len(e.HostName) + len(e.Data)
}

// Watch records a named value at a point in time.
type Watch struct {
	Header
	Name      string
	Value     string
	WatchType WatchType
	Timestamp time.Time
}

// NewWatch returns a watch stamped with the current UTC time.
func NewWatch(level Level, name, value string, watchType WatchType) *Watch {
	return &Watch{
		Header:    newHeader(level),
		Name:      name,
		Value:     value,
		WatchType: watchType,
		Timestamp: time.Now().UTC(),
	}
}

// Kind returns KindWatch.
func (w *Watch) Kind() Kind { return KindWatch }

// Size returns the total encoded size including the 6-byte prefix.
func (w *Watch) Size() int {
	return prefixSize + watchHeaderSize + len(w.Name) + len(w.Value)
}

// ControlCommand instructs the viewer to perform an action, such as
// clearing all displayed entries. Control commands always carry the
// Control level.
type ControlCommand struct {
	Header
	CommandType ControlCommandType

	// Data is an optional command payload; nil means absent.
	Data []byte
}

// NewControlCommand returns a control command of the given type.
func NewControlCommand(commandType ControlCommandType) *ControlCommand {
	return &ControlCommand{
		Header:      newHeader(LevelControl),
		CommandType: commandType,
	}
}

// Kind returns KindControlCommand.
func (c *ControlCommand) Kind() Kind { return KindControlCommand }

// Size returns the total encoded size including the 6-byte prefix.
func (c *ControlCommand) Size() int {
	return prefixSize + controlCommandHeaderSize + len(c.Data)
}

// ProcessFlow marks a transition in the application's control flow:
// entering or leaving a method, thread or process.
type ProcessFlow struct {
	Header
	FlowType  ProcessFlowType
	Title     string
	HostName  string
	Timestamp time.Time
}

// NewProcessFlow returns a process flow record stamped with the current
// process and goroutine ids and the current UTC time.
func NewProcessFlow(level Level, flowType ProcessFlowType, title string) *ProcessFlow {
	return &ProcessFlow{
		Header:    newHeader(level),
		FlowType:  flowType,
		Title:     title,
		Timestamp: time.Now().UTC(),
	}
}

// Kind returns KindProcessFlow.
func (f *ProcessFlow) Kind() Kind { return KindProcessFlow }

// Size returns the total encoded size including the 6-byte prefix.
func (f *ProcessFlow) Size() int {
	return prefixSize + processFlowHeaderSize + len(f.Title) + len(f.HostName)
}

// LogHeader describes the producer of a packet stream. It is the first
// packet sent after a connection is established and carries a key=value
// block with the application name, host name and tracer instance id.
type LogHeader struct {
	Header
	Content string
}

// NewLogHeader builds a log header from producer identity values.
func NewLogHeader(appName, hostName, instanceID string) *LogHeader {
	content := "hostname=" + hostName + "\r\n" +
		"appname=" + appName + "\r\n" +
		"instanceid=" + instanceID + "\r\n"
	return &LogHeader{
		Header:  newHeader(LevelMessage),
		Content: content,
	}
}

// Kind returns KindLogHeader.
func (h *LogHeader) Kind() Kind { return KindLogHeader }

// Size returns the total encoded size including the 6-byte prefix.
func (h *LogHeader) Size() int {
	return prefixSize + logHeaderHeaderSize + len(h.Content)
}
