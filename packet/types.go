package packet

// LogEntryType describes the way the viewer interprets a log entry. The
// numeric values are part of the wire format.
type LogEntryType int32

// Log entry types
const (
	EntrySeparator       LogEntryType = 0
	EntryEnterMethod     LogEntryType = 1
	EntryLeaveMethod     LogEntryType = 2
	EntryResetCallstack  LogEntryType = 3
	EntryMessage         LogEntryType = 100
	EntryWarning         LogEntryType = 101
	EntryError           LogEntryType = 102
	EntryInternalError   LogEntryType = 103
	EntryComment         LogEntryType = 104
	EntryVariableValue   LogEntryType = 105
	EntryCheckpoint      LogEntryType = 106
	EntryDebug           LogEntryType = 107
	EntryVerbose         LogEntryType = 108
	EntryFatal           LogEntryType = 109
	EntryConditional     LogEntryType = 110
	EntryAssert          LogEntryType = 111
	EntryText            LogEntryType = 200
	EntryBinary          LogEntryType = 201
	EntryGraphic         LogEntryType = 202
	EntrySource          LogEntryType = 203
	EntryObject          LogEntryType = 204
	EntryWebContent      LogEntryType = 205
	EntrySystem          LogEntryType = 206
	EntryMemoryStatistic LogEntryType = 207
	EntryDatabaseResult  LogEntryType = 208
	EntryDatabaseStruct  LogEntryType = 209
)

// ViewerID selects the viewer used to display a log entry's data. Values
// are preserved opaquely when decoding packets produced by newer writers.
type ViewerID int32

// Viewer ids
const (
	ViewerNone             ViewerID = -1
	ViewerTitle            ViewerID = 0
	ViewerData             ViewerID = 1
	ViewerList             ViewerID = 2
	ViewerValueList        ViewerID = 3
	ViewerInspector        ViewerID = 4
	ViewerTable            ViewerID = 5
	ViewerWeb              ViewerID = 100
	ViewerBinary           ViewerID = 200
	ViewerHTMLSource       ViewerID = 300
	ViewerJavaScriptSource ViewerID = 301
	ViewerVBScriptSource   ViewerID = 302
	ViewerPerlSource       ViewerID = 303
	ViewerSQLSource        ViewerID = 304
	ViewerINISource        ViewerID = 305
	ViewerPythonSource     ViewerID = 306
	ViewerXMLSource        ViewerID = 307
	ViewerBitmap           ViewerID = 400
	ViewerJPEG             ViewerID = 401
	ViewerIcon             ViewerID = 402
	ViewerMetafile         ViewerID = 403
	ViewerPNG              ViewerID = 404
)

// WatchType specifies how the viewer renders a watch value.
type WatchType int32

// Watch types
const (
	WatchChar WatchType = iota
	WatchString
	WatchInteger
	WatchFloat
	WatchBoolean
	WatchAddress
	WatchTimestamp
	WatchObject
)

// ProcessFlowType specifies the process-flow transition a packet records.
type ProcessFlowType int32

// Process flow types
const (
	FlowEnterMethod ProcessFlowType = iota
	FlowLeaveMethod
	FlowEnterThread
	FlowLeaveThread
	FlowEnterProcess
	FlowLeaveProcess
)

// ControlCommandType identifies the action a control command requests
// from the viewer.
type ControlCommandType int32

// Control command types
const (
	ControlClearLog ControlCommandType = iota
	ControlClearWatches
	ControlClearAutoViews
	ControlClearAll
	ControlClearProcessFlow
)

// DefaultColor is the transparent ARGB value used when a session has no
// explicit background color.
const DefaultColor uint32 = 0x00FFFFFF
