package protocol

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360/tracekit/errors"
)

// Descriptor is one parsed protocol section of a connections string: the
// protocol name plus its option map.
type Descriptor struct {
	Name    string
	Options *Options
}

// Normalized renders the descriptor in canonical form: lowercased name,
// options sorted by key, values quoted and escaped. Two descriptors with
// equal normalized forms configure identical protocol instances; the hot
// reload path uses this to preserve unchanged protocols.
func (d Descriptor) Normalized() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(d.Name))
	b.WriteByte('(')

	keys := d.Options.Keys()
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=\"")
		b.WriteString(escapeValue(d.Options.GetString(k, "")))
		b.WriteString("\"")
	}

	b.WriteByte(')')
	return b.String()
}

// ParseError describes a connections-string syntax error. Offset is the
// byte position the parser stopped at; Expected names the token it was
// looking for.
type ParseError struct {
	Offset   int
	Expected string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid connections string at offset %d: expected %s", e.Offset, e.Expected)
}

// Unwrap classifies parse errors under ErrInvalidConnections.
func (e *ParseError) Unwrap() error {
	return errors.ErrInvalidConnections
}

// ParseConnections parses a connections string of the form
//
//	proto(key=value, key="quoted \"value\""), proto2(...)
//
// Whitespace around tokens is ignored. Keys are case-insensitive and
// duplicate keys keep the last value. Order of the protocol sections is
// preserved.
func ParseConnections(s string) ([]Descriptor, error) {
	p := &connectionsParser{input: s}
	return p.parse()
}

type connectionsParser struct {
	input string
	pos   int
}

func (p *connectionsParser) parse() ([]Descriptor, error) {
	var out []Descriptor

	p.skipSpace()
	if p.pos >= len(p.input) {
		return out, nil
	}

	for {
		desc, err := p.protocolSection()
		if err != nil {
			return nil, err
		}
		out = append(out, desc)

		p.skipSpace()
		if p.pos >= len(p.input) {
			return out, nil
		}
		if p.input[p.pos] != ',' {
			return nil, p.fail("',' or end of string")
		}
		p.pos++
		p.skipSpace()
	}
}

func (p *connectionsParser) protocolSection() (Descriptor, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Descriptor{}, p.fail("protocol name")
	}

	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '(' {
		return Descriptor{}, p.fail("'('")
	}
	p.pos++

	opts := NewOptions()

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == ')' {
		p.pos++
		return Descriptor{Name: strings.ToLower(name), Options: opts}, nil
	}

	for {
		key, value, err := p.option()
		if err != nil {
			return Descriptor{}, err
		}
		opts.Put(key, value)

		p.skipSpace()
		if p.pos >= len(p.input) {
			return Descriptor{}, p.fail("',' or ')'")
		}
		switch p.input[p.pos] {
		case ')':
			p.pos++
			return Descriptor{Name: strings.ToLower(name), Options: opts}, nil
		case ',':
			p.pos++
		default:
			return Descriptor{}, p.fail("',' or ')'")
		}
	}
}

func (p *connectionsParser) option() (string, string, error) {
	p.skipSpace()
	key := p.ident()
	if key == "" {
		return "", "", p.fail("option key")
	}

	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '=' {
		return "", "", p.fail("'='")
	}
	p.pos++

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		value, err := p.quoted()
		if err != nil {
			return "", "", err
		}
		return key, value, nil
	}
	return key, p.bare(), nil
}

// ident scans a protocol or option name: letters, digits, dots, dashes
// and underscores.
func (p *connectionsParser) ident() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			c >= '0' && c <= '9' || c == '.' || c == '-' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

// bare scans an unquoted value up to the next ',' or ')'.
func (p *connectionsParser) bare() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ',' || c == ')' {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// quoted scans a double-quoted value with backslash escapes.
func (p *connectionsParser) quoted() (string, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.input) {
				return "", p.fail("escape sequence")
			}
			next := p.input[p.pos+1]
			if next != '\\' && next != '"' {
				return "", p.fail(`'\\' or '\"' after backslash`)
			}
			b.WriteByte(next)
			p.pos += 2
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("closing '\"'")
}

func (p *connectionsParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *connectionsParser) fail(expected string) *ParseError {
	return &ParseError{Offset: p.pos, Expected: expected}
}

func escapeValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// ConnectionsBuilder assists in building a connections string
// programmatically, escaping option values as needed.
type ConnectionsBuilder struct {
	b          strings.Builder
	hasOptions bool
}

// Connections returns the connections string built so far.
func (cb *ConnectionsBuilder) Connections() string {
	return cb.b.String()
}

// BeginProtocol starts a new protocol section with the given name. All
// subsequent options are added to this section until EndProtocol.
func (cb *ConnectionsBuilder) BeginProtocol(name string) {
	if cb.b.Len() != 0 {
		cb.b.WriteString(", ")
	}
	cb.b.WriteString(name)
	cb.b.WriteByte('(')
	cb.hasOptions = false
}

// EndProtocol closes the current protocol section.
func (cb *ConnectionsBuilder) EndProtocol() {
	cb.b.WriteByte(')')
}

// AddOption adds a string option to the current protocol section,
// quoting and escaping the value.
func (cb *ConnectionsBuilder) AddOption(key, value string) {
	if cb.hasOptions {
		cb.b.WriteString(", ")
	}
	cb.b.WriteString(key)
	cb.b.WriteString("=\"")
	cb.b.WriteString(escapeValue(value))
	cb.b.WriteString("\"")
	cb.hasOptions = true
}

// AddOptionBool adds a boolean option as "true" or "false".
func (cb *ConnectionsBuilder) AddOptionBool(key string, value bool) {
	if value {
		cb.AddOption(key, "true")
	} else {
		cb.AddOption(key, "false")
	}
}

// AddOptionInt adds an integer option.
func (cb *ConnectionsBuilder) AddOptionInt(key string, value int64) {
	cb.AddOption(key, fmt.Sprintf("%d", value))
}

// Clear resets the builder to an empty connections string.
func (cb *ConnectionsBuilder) Clear() {
	cb.b.Reset()
	cb.hasOptions = false
}
