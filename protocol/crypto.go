package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/c360/tracekit/errors"
)

// cipherBlockSize is the AES block size; the encryption key is
// normalized to the same length (AES-128).
const cipherBlockSize = 16

// newIV returns a fresh random initialization vector. It is written in
// clear after the encrypted-file magic; only the payload that follows is
// enciphered.
func newIV() ([]byte, error) {
	iv := make([]byte, cipherBlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.WrapFatal(err, "protocol", "newIV", "read random bytes")
	}
	return iv, nil
}

// cryptoWriter encrypts a byte stream with AES in CBC mode and writes the
// ciphertext to the underlying writer. Plaintext is buffered into
// block-size chunks; Close applies PKCS7 padding, so a stream is only
// complete once closed.
type cryptoWriter struct {
	w    io.Writer
	mode cipher.BlockMode
	buf  [cipherBlockSize]byte
	n    int
}

func newCryptoWriter(w io.Writer, key, iv []byte) (*cryptoWriter, error) {
	if len(key) != cipherBlockSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidEncryptionKey,
			"protocol", "newCryptoWriter", "validate key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WrapInvalid(err, "protocol", "newCryptoWriter", "create cipher")
	}
	return &cryptoWriter{
		w:    w,
		mode: cipher.NewCBCEncrypter(block, iv),
	}, nil
}

// Write enciphers p in block-size chunks. A trailing partial block is
// retained until the next write or Close.
func (cw *cryptoWriter) Write(p []byte) (int, error) {
	total := len(p)

	// Top up a partially filled block first.
	if cw.n > 0 {
		n := copy(cw.buf[cw.n:], p)
		cw.n += n
		p = p[n:]
		if cw.n < cipherBlockSize {
			return total, nil
		}
		cw.mode.CryptBlocks(cw.buf[:], cw.buf[:])
		if _, err := cw.w.Write(cw.buf[:]); err != nil {
			return 0, err
		}
		cw.n = 0
	}

	// Encrypt whole blocks into a scratch copy, leaving p untouched.
	if full := len(p) / cipherBlockSize * cipherBlockSize; full > 0 {
		chunk := make([]byte, full)
		cw.mode.CryptBlocks(chunk, p[:full])
		if _, err := cw.w.Write(chunk); err != nil {
			return 0, err
		}
		p = p[full:]
	}

	// Retain the tail.
	cw.n = copy(cw.buf[:], p)
	return total, nil
}

// Close pads the retained tail per PKCS7 and writes the final block. A
// stream whose plaintext is block-aligned still receives one full padding
// block, so decryption is unambiguous.
func (cw *cryptoWriter) Close() error {
	pad := cipherBlockSize - cw.n
	for i := cw.n; i < cipherBlockSize; i++ {
		cw.buf[i] = byte(pad)
	}
	cw.mode.CryptBlocks(cw.buf[:], cw.buf[:])
	_, err := cw.w.Write(cw.buf[:])
	cw.n = 0
	return err
}
