package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/c360/tracekit/packet"
)

// Options is a case-insensitive protocol option map. Keys are stored
// lowercased; values keep their original spelling. Typed getters coerce
// values leniently: a missing or malformed value yields the supplied
// default, never an error on the logging path.
type Options struct {
	keys   []string
	values map[string]string
}

// NewOptions returns an empty option map.
func NewOptions() *Options {
	return &Options{values: make(map[string]string)}
}

// Put adds or replaces an option. Duplicate keys keep the last value.
func (o *Options) Put(key, value string) {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, exists := o.values[k]; !exists {
		o.keys = append(o.keys, k)
	}
	o.values[k] = value
}

// Contains reports whether key is present.
func (o *Options) Contains(key string) bool {
	_, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Keys returns the option keys in insertion order.
func (o *Options) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// GetString returns the raw value for key, or def when absent.
func (o *Options) GetString(key, def string) string {
	if v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]; ok {
		return v
	}
	return def
}

// GetBool parses true/false, yes/no and 1/0, case-insensitively.
func (o *Options) GetBool(key string, def bool) bool {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	default:
		return def
	}
}

// GetInt parses a plain decimal integer.
func (o *Options) GetInt(key string, def int) int {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetSize parses a byte size with an optional binary unit suffix
// (kb, mb, gb). A bare number is taken as bytes.
func (o *Options) GetSize(key string, def int64) int64 {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	s := strings.ToLower(strings.TrimSpace(v))

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "kb"):
		mult = 1 << 10
		s = strings.TrimSpace(strings.TrimSuffix(s, "kb"))
	case strings.HasSuffix(s, "mb"):
		mult = 1 << 20
		s = strings.TrimSpace(strings.TrimSuffix(s, "mb"))
	case strings.HasSuffix(s, "gb"):
		mult = 1 << 30
		s = strings.TrimSpace(strings.TrimSuffix(s, "gb"))
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n * mult
}

// GetDuration parses a duration with an optional unit suffix
// (ms, s, m, h, d). A bare number is taken as milliseconds.
func (o *Options) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	s := strings.ToLower(strings.TrimSpace(v))

	unit := time.Millisecond
	switch {
	case strings.HasSuffix(s, "ms"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "ms"))
	case strings.HasSuffix(s, "s"):
		unit = time.Second
		s = strings.TrimSpace(strings.TrimSuffix(s, "s"))
	case strings.HasSuffix(s, "m"):
		unit = time.Minute
		s = strings.TrimSpace(strings.TrimSuffix(s, "m"))
	case strings.HasSuffix(s, "h"):
		unit = time.Hour
		s = strings.TrimSpace(strings.TrimSuffix(s, "h"))
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
		s = strings.TrimSpace(strings.TrimSuffix(s, "d"))
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * unit
}

// GetLevel parses a level name, returning def for unknown names.
func (o *Options) GetLevel(key string, def packet.Level) packet.Level {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	return packet.ParseLevel(v, def)
}

// GetBytes interprets the value as raw bytes normalized to size: shorter
// values are right-padded with zero bytes, longer values truncated. An
// absent option returns def.
func (o *Options) GetBytes(key string, size int, def []byte) []byte {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	out := make([]byte, size)
	copy(out, v)
	return out
}

// GetRotate parses a rotation mode name, returning def for unknown names.
func (o *Options) GetRotate(key string, def RotateMode) RotateMode {
	v, ok := o.values[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	return ParseRotateMode(v, def)
}
