// Package config implements the line-oriented configuration file format
// and the file watcher behind hot reload.
//
// A configuration file holds one "key = value" pair per line. '#' and ';'
// begin a comment running to end of line when they start a line or follow
// whitespace, blank lines are ignored, keys are case-insensitive, and
// double-quoted values may embed '=' and comment characters.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

// Configuration is a parsed configuration file: an ordered,
// case-insensitive key/value map with typed readers.
type Configuration struct {
	keys  []string
	items map[string]string
}

// Load reads and parses the configuration file at path. A read failure
// is classified as ErrLoadConfiguration, distinct from content errors.
func Load(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrLoadConfiguration),
			"config", "Load", "open configuration file")
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a configuration from r.
func Parse(r io.Reader) (*Configuration, error) {
	c := &Configuration{items: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		if key == "" {
			continue
		}
		value := parseValue(strings.TrimSpace(line[eq+1:]))

		if _, exists := c.items[key]; !exists {
			c.keys = append(c.keys, key)
		}
		c.items[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrLoadConfiguration),
			"config", "Parse", "read configuration")
	}

	return c, nil
}

// parseValue handles quoted values (which may embed '=' and comment
// characters) and strips trailing comments from bare values.
func parseValue(raw string) string {
	if strings.HasPrefix(raw, `"`) {
		if end := strings.Index(raw[1:], `"`); end >= 0 {
			return raw[1 : 1+end]
		}
		return raw[1:]
	}

	// A trailing comment starts at a '#' or ';' preceded by whitespace, so
	// values such as "#RRGGBB" colors survive.
	for i := 1; i < len(raw); i++ {
		if (raw[i] == '#' || raw[i] == ';') && (raw[i-1] == ' ' || raw[i-1] == '\t') {
			raw = raw[:i]
			break
		}
	}
	return strings.TrimSpace(raw)
}

// Contains reports whether key is present.
func (c *Configuration) Contains(key string) bool {
	_, ok := c.items[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Keys returns all keys in file order.
func (c *Configuration) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// ReadString returns the value for key, or def when absent.
func (c *Configuration) ReadString(key, def string) string {
	if v, ok := c.items[strings.ToLower(strings.TrimSpace(key))]; ok {
		return v
	}
	return def
}

// ReadBool parses true/false, yes/no and 1/0, case-insensitively.
func (c *Configuration) ReadBool(key string, def bool) bool {
	v, ok := c.items[strings.ToLower(strings.TrimSpace(key))]
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

// ReadInt parses a plain decimal integer.
func (c *Configuration) ReadInt(key string, def int) int {
	v, ok := c.items[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// ReadLevel parses a level name.
func (c *Configuration) ReadLevel(key string, def packet.Level) packet.Level {
	v, ok := c.items[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	return packet.ParseLevel(v, def)
}

// ReadColor parses an ARGB color: "0xAARRGGBB", "#RRGGBB" (opaque) or a
// plain decimal value.
func (c *Configuration) ReadColor(key string, def uint32) uint32 {
	v, ok := c.items[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return def
	}
	s := strings.TrimSpace(v)

	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return def
		}
		return uint32(n)
	case strings.HasPrefix(s, "#"):
		n, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return def
		}
		if len(s) == 7 {
			return 0xFF000000 | uint32(n)
		}
		return uint32(n)
	default:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return def
		}
		return uint32(n)
	}
}
