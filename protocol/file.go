package protocol

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

// Log file magics. A plain log starts with fileMagic followed by packets.
// An encrypted log starts with encryptedFileMagic and the clear-text IV;
// everything after (including the inner fileMagic) is ciphertext.
const (
	fileMagic          = "SILF"
	encryptedFileMagic = "SILE"
)

// defaultIOBuffer is used when no custom buffer option is given; writes
// are then flushed after every packet.
const defaultIOBuffer = 0x2000

func init() {
	Register("file", newFileTransport)
}

// fileTransport writes binary log files with optional time- and
// size-based rotation and optional streaming encryption. The text
// transport reuses all of its machinery through the record hooks.
type fileTransport struct {
	env Environment

	// Hooks shared with the text transport.
	protoName       string
	defaultFileName string
	allowEncrypt    bool
	writeRecord     func(w io.Writer, p packet.Packet) (int, error)
	headerBytes     func() []byte

	// Options.
	fileName   string
	appendMode bool
	ioBuffer   int64
	rotateMode RotateMode
	maxSize    int64
	maxParts   int
	encrypt    bool
	key        []byte

	// Open-file state.
	rot         rotater
	file        *os.File
	crypt       *cryptoWriter
	bw          *bufio.Writer
	fileSize    int64
	bufCounter  int64
	currentPath string

	// now is replaceable in tests to simulate clock advancement across
	// rotation boundaries.
	now func() time.Time
}

func newFileTransport(env Environment) Transport {
	t := &fileTransport{
		env:             env,
		protoName:       "file",
		defaultFileName: "log.sil",
		allowEncrypt:    true,
		now:             time.Now,
	}
	t.writeRecord = func(w io.Writer, p packet.Packet) (int, error) {
		return packet.Write(w, p)
	}
	t.headerBytes = func() []byte { return []byte(fileMagic) }
	return t
}

// Name returns "file".
func (t *fileTransport) Name() string { return t.protoName }

// ValidOption reports the options recognized by the file protocol.
func (t *fileTransport) ValidOption(name string) bool {
	switch name {
	case "filename", "append", "buffer", "rotate", "maxsize", "maxparts":
		return true
	case "encrypt", "key":
		return t.allowEncrypt
	default:
		return false
	}
}

// LoadOptions reads the file options. Enabling encryption requires a key
// and forces append off, since appending to a CBC stream is not possible.
func (t *fileTransport) LoadOptions(opts *Options) error {
	t.fileName = opts.GetString("filename", t.defaultFileName)
	t.appendMode = opts.GetBool("append", false)
	t.ioBuffer = opts.GetSize("buffer", 0)
	t.rotateMode = opts.GetRotate("rotate", RotateNone)
	t.maxSize = opts.GetSize("maxsize", 0)

	if t.maxSize > 0 && t.rotateMode == RotateNone {
		t.maxParts = opts.GetInt("maxparts", 2)
	} else {
		t.maxParts = opts.GetInt("maxparts", 0)
	}

	if t.allowEncrypt {
		t.encrypt = opts.GetBool("encrypt", false)
		if t.encrypt {
			if !opts.Contains("key") {
				return errors.WrapInvalid(errors.ErrNoEncryptionKey,
					"fileTransport", "LoadOptions", "validate encryption key")
			}
			t.key = opts.GetBytes("key", cipherBlockSize, nil)
			t.appendMode = false
		}
	}

	t.rot.mode = t.rotateMode
	return nil
}

// Open expands the filename template, resolves the log part to write to
// and builds the sink chain (file, optional cipher, buffered writer).
func (t *fileTransport) Open() error {
	return t.openFile(t.appendMode)
}

func (t *fileTransport) openFile(appendMode bool) error {
	base := t.expandFileName()

	if dir := filepath.Dir(base); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapTransient(err, "fileTransport", "Open", "create log directory")
		}
	}

	path := base
	if t.isRotating() {
		if existing, ok := latestRotatedFile(base); appendMode && ok {
			path = existing
		} else {
			stamp := t.now().UTC().Truncate(time.Second)
			// A part opened within the same second as the previous one
			// takes the next second, so it never reuses that part's name.
			if prev, ok := rotatedFileTime(base, t.currentPath); ok && !stamp.After(prev) {
				stamp = prev.Add(time.Second)
			}
			path = rotatedFileName(base, stamp)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("could not open log file %q: %w", path, err),
			"fileTransport", "Open", "open log file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.WrapTransient(err, "fileTransport", "Open", "stat log file")
	}

	t.file = f
	t.currentPath = path
	t.fileSize = info.Size()
	t.bufCounter = 0

	var sink io.Writer = f
	if t.encrypt {
		iv, err := newIV()
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write([]byte(encryptedFileMagic)); err != nil {
			f.Close()
			return errors.WrapTransient(err, "fileTransport", "Open", "write file header")
		}
		if _, err := f.Write(iv); err != nil {
			f.Close()
			return errors.WrapTransient(err, "fileTransport", "Open", "write iv")
		}
		t.crypt, err = newCryptoWriter(f, t.key, iv)
		if err != nil {
			f.Close()
			return err
		}
		sink = t.crypt
		t.fileSize = 0
	}

	if t.fileSize == 0 {
		header := t.headerBytes()
		if _, err := sink.Write(header); err != nil {
			f.Close()
			return errors.WrapTransient(err, "fileTransport", "Open", "write file header")
		}
		t.fileSize = int64(len(header))
	}

	bufSize := t.ioBuffer
	if bufSize <= 0 {
		bufSize = defaultIOBuffer
	}
	t.bw = bufio.NewWriterSize(sink, int(bufSize))

	if t.isRotating() {
		fileDate := t.now()
		if stamp, ok := rotatedFileTime(base, path); ok {
			fileDate = stamp
		}
		t.rot.initialize(fileDate)
		if err := pruneRotatedFiles(base, t.maxParts); err != nil {
			t.env.logger().Warn("could not prune rotated log files",
				"filename", base, "error", err)
		}
	}

	return nil
}

// Write serializes one packet, rotating beforehand when a time boundary
// was crossed or the size cap would be exceeded.
func (t *fileTransport) Write(p packet.Packet) error {
	if t.file == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "fileTransport", "Write", "write packet")
	}

	if t.rotateMode != RotateNone && t.rot.update(t.now()) {
		if err := t.rotate(); err != nil {
			return err
		}
	}

	if t.maxSize > 0 && t.fileSize+int64(p.Size()) > t.maxSize {
		if err := t.rotate(); err != nil {
			return err
		}
		if int64(p.Size()) > t.maxSize {
			// A single oversized packet can never fit; skip it.
			return nil
		}
	}

	n, err := t.writeRecord(t.bw, p)
	if err != nil {
		return err
	}
	t.fileSize += int64(n)

	if t.ioBuffer > 0 {
		t.bufCounter += int64(n)
		if t.bufCounter > t.ioBuffer {
			t.bufCounter = 0
			return t.bw.Flush()
		}
		return nil
	}
	return t.bw.Flush()
}

// Close flushes buffered data, finalizes the cipher stream and closes the
// file.
func (t *fileTransport) Close() error {
	if t.file == nil {
		return nil
	}

	var firstErr error
	if err := t.bw.Flush(); err != nil {
		firstErr = err
	}
	if t.crypt != nil {
		if err := t.crypt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.crypt = nil
	}
	if err := t.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	t.file = nil
	t.bw = nil
	return firstErr
}

// rotate closes the current log part and opens a fresh one named for the
// current time, or for the second after the previous part when both fall
// within the same second.
func (t *fileTransport) rotate() error {
	if err := t.Close(); err != nil {
		return err
	}
	return t.openFile(false)
}

func (t *fileTransport) isRotating() bool {
	return t.rotateMode != RotateNone || t.maxSize > 0
}

// expandFileName substitutes the %appname% and %machinename% templates.
func (t *fileTransport) expandFileName() string {
	name := t.fileName
	name = strings.ReplaceAll(name, "%appname%", t.env.AppName)
	name = strings.ReplaceAll(name, "%machinename%", t.env.HostName)
	return name
}
