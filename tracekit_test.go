package tracekit

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracekit/packet"
	"github.com/c360/tracekit/protocol"
)

func readLogPackets(t *testing.T, path string) []packet.Packet {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 4)
	require.Equal(t, "SILF", string(data[:4]))

	r := bytes.NewReader(data[4:])
	var out []packet.Packet
	for {
		pk, err := packet.Decode(r)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, pk)
	}
}

func entryTitles(packets []packet.Packet) []string {
	var out []string
	for _, pk := range packets {
		if e, ok := pk.(*packet.LogEntry); ok {
			out = append(out, e.Title)
		}
	}
	return out
}

func TestTracerEndToEndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sil")

	tracer := New("TestApp")
	require.NoError(t, tracer.SetConnections(fmt.Sprintf("file(filename=%q)", path)))
	tracer.SetEnabled(true)

	s := tracer.AddSession("Main", true)
	s.LogMessage("one")
	s.LogWarning("two")
	require.NoError(t, tracer.Close())

	packets := readLogPackets(t, path)
	require.NotEmpty(t, packets)

	// The first packet announces the producer.
	header, ok := packets[0].(*packet.LogHeader)
	require.True(t, ok, "a log header must precede the entries")
	assert.Contains(t, header.Content, "appname=TestApp")
	assert.Contains(t, header.Content, "instanceid="+tracer.InstanceID())

	assert.Equal(t, []string{"one", "two"}, entryTitles(packets))
}

func TestTracerFanOutOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.sil")
	second := filepath.Join(dir, "second.sil")

	tracer := New("App")
	require.NoError(t, tracer.SetConnections(
		fmt.Sprintf("file(filename=%q), file(filename=%q, caption=backup)", first, second)))
	tracer.SetEnabled(true)

	tracer.AddSession("Main", true).LogMessage("both")
	require.NoError(t, tracer.Close())

	assert.Equal(t, []string{"both"}, entryTitles(readLogPackets(t, first)))
	assert.Equal(t, []string{"both"}, entryTitles(readLogPackets(t, second)))
}

func TestTracerDisabledEmitsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sil")

	tracer := New("App")
	require.NoError(t, tracer.SetConnections(fmt.Sprintf("file(filename=%q)", path)))

	tracer.AddSession("Main", true).LogMessage("dropped")
	require.NoError(t, tracer.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "a disabled tracer never opens its sinks")
}

func TestTracerVariablesExpandInConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var.sil")

	tracer := New("App")
	tracer.SetVariable("logfile", path)
	require.NoError(t, tracer.SetConnections(`file(filename="$logfile$")`))
	tracer.SetEnabled(true)

	tracer.AddSession("Main", true).LogMessage("hi")
	require.NoError(t, tracer.Close())

	assert.Equal(t, []string{"hi"}, entryTitles(readLogPackets(t, path)))
	assert.Equal(t, path, tracer.GetVariable("logfile"))
}

func TestTracerInvalidConnectionsRejected(t *testing.T) {
	tracer := New("App")
	err := tracer.SetConnections("file(filename=")
	require.Error(t, err)
	assert.Empty(t, tracer.protocols())
}

func TestTracerDispatchByCaption(t *testing.T) {
	tracer := New("App")
	require.NoError(t, tracer.SetConnections("mem(caption=capture)"))
	tracer.SetEnabled(true)

	tracer.AddSession("Main", true).LogMessage("kept")

	var buf bytes.Buffer
	require.NoError(t, tracer.Dispatch("capture", io.Writer(&buf)))
	assert.Contains(t, buf.String(), "kept")

	err := tracer.Dispatch("nosuch", io.Writer(&buf))
	require.Error(t, err)
	require.NoError(t, tracer.Close())
}

func TestTracerFilterSuppressesPackets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sil")

	tracer := New("App")
	require.NoError(t, tracer.SetConnections(fmt.Sprintf("file(filename=%q)", path)))
	tracer.SetEnabled(true)

	tracer.SetFilter(func(p packet.Packet) bool {
		e, ok := p.(*packet.LogEntry)
		return ok && e.Title == "secret"
	})

	s := tracer.AddSession("Main", true)
	s.LogMessage("public")
	s.LogMessage("secret")
	require.NoError(t, tracer.Close())

	assert.Equal(t, []string{"public"}, entryTitles(readLogPackets(t, path)))
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTracerConfigurationReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "app.cfg")
	firstLog := filepath.Join(dir, "first.sil")
	secondLog := filepath.Join(dir, "second.sil")

	writeConfig(t, cfgPath, fmt.Sprintf(
		"enabled = true\nlevel = message\nconnections = file(filename=%q)\n", firstLog))

	tracer := New("App")
	require.NoError(t, tracer.LoadConfiguration(cfgPath))
	assert.True(t, tracer.Enabled())
	assert.Equal(t, packet.LevelMessage, tracer.Level())

	s := tracer.AddSession("Main", true)
	s.LogMessage("before-reload")

	// Rewrite: raise the level and point at a different file.
	writeConfig(t, cfgPath, fmt.Sprintf(
		"enabled = true\nlevel = error\nconnections = file(filename=%q)\n", secondLog))
	require.NoError(t, tracer.LoadConfiguration(cfgPath))

	s.LogMessage("suppressed-after-reload")
	s.LogError("error-after-reload")
	require.NoError(t, tracer.Close())

	assert.Equal(t, []string{"before-reload"}, entryTitles(readLogPackets(t, firstLog)))
	assert.Equal(t, []string{"error-after-reload"}, entryTitles(readLogPackets(t, secondLog)))
}

func TestTracerReloadPreservesUnchangedProtocols(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "app.cfg")
	logPath := filepath.Join(dir, "app.sil")

	connections := fmt.Sprintf("file(filename=%q, append=true)", logPath)
	writeConfig(t, cfgPath, "enabled = true\nconnections = "+connections+"\n")

	tracer := New("App")
	require.NoError(t, tracer.LoadConfiguration(cfgPath))
	before := tracer.protocols()
	require.Len(t, before, 1)

	// Reload a changed file that carries the same connections string.
	writeConfig(t, cfgPath, "enabled = true\nlevel = debug\nconnections = "+connections+"\n")
	require.NoError(t, tracer.LoadConfiguration(cfgPath))

	after := tracer.protocols()
	require.Len(t, after, 1)
	assert.Same(t, before[0], after[0], "an unchanged descriptor keeps its protocol instance")
	require.NoError(t, tracer.Close())
}

func TestTracerReloadAppliesSessionSettings(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "app.cfg")

	writeConfig(t, cfgPath,
		"enabled = false\n"+
			"sessiondefaults.level = warning\n"+
			"session.worker.active = false\n")

	tracer := New("App")
	require.NoError(t, tracer.LoadConfiguration(cfgPath))

	fresh := tracer.AddSession("fresh", true)
	assert.Equal(t, packet.LevelWarning, fresh.Level(), "defaults apply to new sessions")

	worker := tracer.AddSession("Worker", true)
	assert.False(t, worker.Active(), "deferred properties apply on creation")
	require.NoError(t, tracer.Close())
}

func TestTracerReloadFiresInfoEvent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "app.cfg")
	writeConfig(t, cfgPath, "enabled = false\n")

	var notices []string
	tracer := New("App")
	tracer.SetInfoEvent(func(msg string) { notices = append(notices, msg) })

	require.NoError(t, tracer.LoadConfiguration(cfgPath))
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[0], "configuration loaded")
	require.NoError(t, tracer.Close())
}

func TestTracerWatchConfiguration(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "app.cfg")
	logPath := filepath.Join(dir, "watched.sil")

	writeConfig(t, cfgPath, "enabled = true\nlevel = message\nconnections = mem()\n")

	tracer := New("App")
	require.NoError(t, tracer.WatchConfiguration(cfgPath))
	require.True(t, tracer.Enabled())

	// Change the config on disk; the watcher reloads it.
	writeConfig(t, cfgPath, fmt.Sprintf(
		"enabled = true\nlevel = error\nconnections = file(filename=%q)\n", logPath))

	require.Eventually(t, func() bool {
		return tracer.Level() == packet.LevelError
	}, 5*time.Second, 10*time.Millisecond, "the watcher must apply the new level")

	// Deleting the file disables logging.
	require.NoError(t, os.Remove(cfgPath))
	require.Eventually(t, func() bool {
		return !tracer.Enabled()
	}, 5*time.Second, 10*time.Millisecond, "deleting the config disables the tracer")

	require.NoError(t, tracer.Close())
}

func TestTracerErrorEventOnAsyncFailure(t *testing.T) {
	errCh := make(chan error, 16)

	tracer := New("App")
	tracer.SetErrorEvent(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	// An unreachable pipe endpoint with async delivery: every failure is
	// surfaced through the event, never to the producer.
	sock := filepath.Join(t.TempDir(), "absent.sock")
	require.NoError(t, tracer.SetConnections(
		fmt.Sprintf("pipe(pipename=%q, timeout=1s, async.enabled=true)", sock)))
	tracer.SetEnabled(true)

	tracer.AddSession("Main", true).LogMessage("lost")
	require.NoError(t, tracer.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected an error event from the async worker")
	}
}

func TestDefaultTracerAndMainSession(t *testing.T) {
	tracer := Default()
	require.NotNil(t, tracer)
	assert.Same(t, tracer, Default(), "the process-wide tracer is a singleton")

	main := Main()
	require.NotNil(t, main)
	assert.Equal(t, "Main", main.Name())
	assert.Same(t, main, tracer.GetSession("main"))

	require.NoError(t, Shutdown())
}

func TestSessionManagerOnTracer(t *testing.T) {
	tracer := New("App")
	s := tracer.AddSession("db", true)
	assert.Same(t, s, tracer.GetSession("DB"))
	assert.Same(t, s, tracer.AddSession("db", true))

	tracer.Sessions().Delete(s)
	assert.Nil(t, tracer.GetSession("db"))
	require.NoError(t, tracer.Close())
}

var _ protocol.PacketWriter = (*protocol.Protocol)(nil)
