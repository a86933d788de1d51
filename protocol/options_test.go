package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracekit/packet"
)

func optionsFrom(t *testing.T, text string) *Options {
	t.Helper()
	descs, err := ParseConnections("x(" + text + ")")
	require.NoError(t, err)
	return descs[0].Options
}

func TestOptionsSizes(t *testing.T) {
	opts := optionsFrom(t, "a=512, b=4kb, c=1mb, d=2gb, e=1 MB")
	assert.Equal(t, int64(512), opts.GetSize("a", 0))
	assert.Equal(t, int64(4096), opts.GetSize("b", 0))
	assert.Equal(t, int64(1<<20), opts.GetSize("c", 0))
	assert.Equal(t, int64(2<<30), opts.GetSize("d", 0))
	assert.Equal(t, int64(1<<20), opts.GetSize("e", 0))
	assert.Equal(t, int64(7), opts.GetSize("missing", 7))
}

func TestOptionsDurations(t *testing.T) {
	opts := optionsFrom(t, "a=250, b=250ms, c=5s, d=2m, e=1h, f=1d")
	assert.Equal(t, 250*time.Millisecond, opts.GetDuration("a", 0))
	assert.Equal(t, 250*time.Millisecond, opts.GetDuration("b", 0))
	assert.Equal(t, 5*time.Second, opts.GetDuration("c", 0))
	assert.Equal(t, 2*time.Minute, opts.GetDuration("d", 0))
	assert.Equal(t, time.Hour, opts.GetDuration("e", 0))
	assert.Equal(t, 24*time.Hour, opts.GetDuration("f", 0))
	assert.Equal(t, time.Second, opts.GetDuration("missing", time.Second))
}

func TestOptionsBools(t *testing.T) {
	opts := optionsFrom(t, "a=true, b=FALSE, c=yes, d=No, e=1, f=0, g=maybe")
	assert.True(t, opts.GetBool("a", false))
	assert.False(t, opts.GetBool("b", true))
	assert.True(t, opts.GetBool("c", false))
	assert.False(t, opts.GetBool("d", true))
	assert.True(t, opts.GetBool("e", false))
	assert.False(t, opts.GetBool("f", true))
	assert.True(t, opts.GetBool("g", true), "malformed values fall back to the default")
}

func TestOptionsBytesNormalization(t *testing.T) {
	opts := optionsFrom(t, `short=abc, exact=0123456789abcdef, long=0123456789abcdefXYZ`)

	short := opts.GetBytes("short", 16, nil)
	require.Len(t, short, 16)
	assert.Equal(t, []byte("abc"), short[:3])
	assert.Equal(t, make([]byte, 13), short[3:], "short keys are right-padded with zeros")

	assert.Equal(t, []byte("0123456789abcdef"), opts.GetBytes("exact", 16, nil))
	assert.Equal(t, []byte("0123456789abcdef"), opts.GetBytes("long", 16, nil), "long keys are truncated")
	assert.Nil(t, opts.GetBytes("missing", 16, nil))
}

func TestOptionsLevelAndCase(t *testing.T) {
	opts := optionsFrom(t, "Level=Warning")
	assert.Equal(t, packet.LevelWarning, opts.GetLevel("LEVEL", packet.LevelDebug))
	assert.True(t, opts.Contains("level"))
}
