package packet

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLogEntry() *LogEntry {
	return &LogEntry{
		Header:      Header{PacketLevel: LevelMessage, ThreadID: 2, ProcessID: 1},
		EntryType:   EntryMessage,
		ViewerID:    ViewerTitle,
		Color:       0x00FFFFFF,
		Timestamp:   time.Date(2023, 5, 22, 12, 30, 45, 500*1000*100, time.UTC),
		Title:       "hi",
		SessionName: "Main",
		AppName:     "App",
		HostName:    "H",
		Data:        []byte{},
	}
}

func TestEncodeLogEntryPrefix(t *testing.T) {
	entry := sampleLogEntry()
	encoded := Encode(entry)

	// Kind tag for log entries is 4, little-endian.
	require.GreaterOrEqual(t, len(encoded), 6)
	assert.Equal(t, []byte{0x04, 0x00}, encoded[0:2])

	// Size field covers the whole encoding including the 6-byte prefix.
	size := binary.LittleEndian.Uint32(encoded[2:6])
	assert.Equal(t, uint32(len(encoded)), size)
	assert.Equal(t, entry.Size(), len(encoded))

	// Encoding is deterministic.
	assert.Equal(t, encoded, Encode(entry))
}

func TestLogEntryRoundTrip(t *testing.T) {
	entry := sampleLogEntry()
	encoded := Encode(entry)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := decoded.(*LogEntry)
	require.True(t, ok, "expected a log entry, got %T", decoded)

	assert.Equal(t, entry.EntryType, got.EntryType)
	assert.Equal(t, entry.ViewerID, got.ViewerID)
	assert.Equal(t, entry.Color, got.Color)
	assert.Equal(t, entry.Timestamp, got.Timestamp)
	assert.Equal(t, entry.ProcessID, got.ProcessID)
	assert.Equal(t, entry.ThreadID, got.ThreadID)
	assert.Equal(t, entry.Title, got.Title)
	assert.Equal(t, entry.SessionName, got.SessionName)
	assert.Equal(t, entry.AppName, got.AppName)
	assert.Equal(t, entry.HostName, got.HostName)
	assert.Equal(t, entry.Data, got.Data)

	// Re-encoding the decoded packet reproduces the bytes exactly.
	assert.Equal(t, encoded, Encode(got))
}

func TestAbsentDataDistinctFromEmpty(t *testing.T) {
	withData := sampleLogEntry()
	withData.Data = []byte{}
	absent := sampleLogEntry()
	absent.Data = nil

	encodedEmpty := Encode(withData)
	encodedAbsent := Encode(absent)
	assert.NotEqual(t, encodedEmpty, encodedAbsent)

	decodedAbsent, err := Decode(bytes.NewReader(encodedAbsent))
	require.NoError(t, err)
	assert.Nil(t, decodedAbsent.(*LogEntry).Data)
	assert.Equal(t, encodedAbsent, Encode(decodedAbsent), "re-encode must preserve absence")

	decodedEmpty, err := Decode(bytes.NewReader(encodedEmpty))
	require.NoError(t, err)
	assert.NotNil(t, decodedEmpty.(*LogEntry).Data)
	assert.Equal(t, encodedEmpty, Encode(decodedEmpty), "re-encode must preserve emptiness")
}

func TestWatchRoundTrip(t *testing.T) {
	w := &Watch{
		Header:    Header{PacketLevel: LevelDebug},
		Name:      "counter",
		Value:     "42",
		WatchType: WatchInteger,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	encoded := Encode(w)
	assert.Equal(t, w.Size(), len(encoded))

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := decoded.(*Watch)
	require.True(t, ok)
	assert.Equal(t, w.Name, got.Name)
	assert.Equal(t, w.Value, got.Value)
	assert.Equal(t, w.WatchType, got.WatchType)
	assert.Equal(t, w.Timestamp, got.Timestamp)
	assert.Equal(t, encoded, Encode(got))
}

func TestControlCommandRoundTrip(t *testing.T) {
	c := NewControlCommand(ControlClearAll)
	c.Data = []byte("payload")

	encoded := Encode(c)
	assert.Equal(t, c.Size(), len(encoded))

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := decoded.(*ControlCommand)
	require.True(t, ok)
	assert.Equal(t, ControlClearAll, got.CommandType)
	assert.Equal(t, []byte("payload"), got.Data)
	assert.Equal(t, LevelControl, got.Level())
	assert.Equal(t, encoded, Encode(got))
}

func TestProcessFlowRoundTrip(t *testing.T) {
	f := &ProcessFlow{
		Header:    Header{PacketLevel: LevelMessage, ThreadID: 7, ProcessID: 8},
		FlowType:  FlowEnterMethod,
		Title:     "handleRequest",
		HostName:  "worker-1",
		Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	encoded := Encode(f)
	assert.Equal(t, f.Size(), len(encoded))

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := decoded.(*ProcessFlow)
	require.True(t, ok)
	assert.Equal(t, f.FlowType, got.FlowType)
	assert.Equal(t, f.Title, got.Title)
	assert.Equal(t, f.HostName, got.HostName)
	assert.Equal(t, f.ThreadID, got.ThreadID)
	assert.Equal(t, f.ProcessID, got.ProcessID)
	assert.Equal(t, encoded, Encode(got))
}

func TestLogHeaderRoundTrip(t *testing.T) {
	h := NewLogHeader("App", "host", "instance-1")

	encoded := Encode(h)
	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := decoded.(*LogHeader)
	require.True(t, ok)
	assert.Contains(t, got.Content, "appname=App")
	assert.Contains(t, got.Content, "hostname=host")
	assert.Contains(t, got.Content, "instanceid=instance-1")
	assert.Equal(t, encoded, Encode(got))
}

// TestStreamFraming verifies a receiver can partition a stream of
// packets using only the in-band size field.
func TestStreamFraming(t *testing.T) {
	var stream bytes.Buffer
	const count = 100

	for i := 0; i < count; i++ {
		entry := sampleLogEntry()
		entry.Title = string(rune('a' + i%26))
		_, err := Write(&stream, entry)
		require.NoError(t, err)
	}

	r := bytes.NewReader(stream.Bytes())
	decoded := 0
	for {
		_, err := Decode(r)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		decoded++
	}
	assert.Equal(t, count, decoded)
}

func TestDecodeRejectsBadSize(t *testing.T) {
	// Size smaller than the prefix itself.
	bad := []byte{0x04, 0x00, 0x02, 0x00, 0x00, 0x00}
	_, err := Decode(bytes.NewReader(bad))
	assert.Error(t, err)

	// Unknown kind.
	unknown := []byte{0x63, 0x00, 0x06, 0x00, 0x00, 0x00}
	_, err = Decode(bytes.NewReader(unknown))
	assert.Error(t, err)
}

func TestTicksEpoch(t *testing.T) {
	// The Unix epoch is a fixed number of 100ns ticks from 0001-01-01.
	epoch := time.Unix(0, 0).UTC()
	assert.Equal(t, uint64(621355968000000000), TicksFromTime(epoch))

	// Conversions are inverse of each other at tick granularity.
	now := time.Date(2023, 5, 22, 12, 0, 0, 123456700, time.UTC)
	assert.Equal(t, now, TimeFromTicks(TicksFromTime(now)))

	assert.True(t, TimeFromTicks(0).IsZero())
	assert.Equal(t, uint64(0), TicksFromTime(time.Time{}))
}

func TestLevelParse(t *testing.T) {
	assert.Equal(t, LevelWarning, ParseLevel("Warning", LevelDebug))
	assert.Equal(t, LevelError, ParseLevel("  ERROR ", LevelDebug))
	assert.Equal(t, LevelDebug, ParseLevel("bogus", LevelDebug))
	assert.Equal(t, "message", LevelMessage.String())
}
