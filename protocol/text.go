package protocol

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/c360/tracekit/packet"
)

// defaultTextPattern formats the fields most viewers want at a glance.
const defaultTextPattern = "[%timestamp%] %level%: %title%"

// textBOM marks text logs as UTF-8; it takes the place of the binary
// format's magic.
var textBOM = []byte{0xEF, 0xBB, 0xBF}

func init() {
	Register("text", newTextTransport)
}

// textTransport writes human-readable log lines instead of binary
// packets. It shares the file transport's rotation machinery but never
// encrypts. Only log entries produce output; other packet kinds are
// silently skipped.
type textTransport struct {
	*fileTransport
	pattern string
	indent  bool
	depth   int
}

func newTextTransport(env Environment) Transport {
	t := &textTransport{
		fileTransport: &fileTransport{
			env:             env,
			protoName:       "text",
			defaultFileName: "log.txt",
			allowEncrypt:    false,
			now:             time.Now,
		},
	}
	t.fileTransport.writeRecord = t.writeLine
	t.fileTransport.headerBytes = func() []byte { return textBOM }
	return t
}

// ValidOption adds the pattern options to the file options.
func (t *textTransport) ValidOption(name string) bool {
	switch name {
	case "pattern", "indent":
		return true
	default:
		return t.fileTransport.ValidOption(name)
	}
}

// LoadOptions reads the text options on top of the file options.
func (t *textTransport) LoadOptions(opts *Options) error {
	if err := t.fileTransport.LoadOptions(opts); err != nil {
		return err
	}
	t.pattern = opts.GetString("pattern", defaultTextPattern)
	t.indent = opts.GetBool("indent", false)
	return nil
}

// writeLine renders one log entry through the pattern. Leave-method
// entries unindent before rendering, enter-method entries indent after.
func (t *textTransport) writeLine(w io.Writer, p packet.Packet) (int, error) {
	entry, ok := p.(*packet.LogEntry)
	if !ok {
		return 0, nil
	}

	if t.indent && entry.EntryType == packet.EntryLeaveMethod && t.depth > 0 {
		t.depth--
	}

	var b strings.Builder
	for i := 0; i < t.depth; i++ {
		b.WriteString("    ")
	}
	b.WriteString(t.expandPattern(entry))
	b.WriteString("\r\n")

	if t.indent && entry.EntryType == packet.EntryEnterMethod {
		t.depth++
	}

	return io.WriteString(w, b.String())
}

// expandPattern substitutes the %token% placeholders of the pattern
// option with the entry's fields. Unknown tokens are left literal.
func (t *textTransport) expandPattern(entry *packet.LogEntry) string {
	r := strings.NewReplacer(
		"%timestamp%", entry.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
		"%level%", entry.Level().String(),
		"%title%", entry.Title,
		"%session%", entry.SessionName,
		"%appname%", entry.AppName,
		"%hostname%", entry.HostName,
		"%logentrytype%", fmt.Sprintf("%d", entry.EntryType),
		"%thread%", fmt.Sprintf("%d", entry.ThreadID),
		"%process%", fmt.Sprintf("%d", entry.ProcessID),
	)
	return r.Replace(t.pattern)
}
