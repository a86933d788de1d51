package protocol

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

// decryptCBC reverses the crypto writer: CBC decrypt, then strip the
// PKCS7 padding.
func decryptCBC(t *testing.T, key, iv, ciphertext []byte) []byte {
	t.Helper()
	require.Equal(t, 0, len(ciphertext)%cipherBlockSize, "ciphertext must be block aligned")

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	require.NotEmpty(t, plain)
	pad := int(plain[len(plain)-1])
	require.Greater(t, pad, 0)
	require.LessOrEqual(t, pad, cipherBlockSize)
	return plain[:len(plain)-pad]
}

func testKey() []byte {
	key := make([]byte, cipherBlockSize)
	copy(key, "secret")
	return key
}

func TestCryptoWriterRoundTrip(t *testing.T) {
	iv := bytes.Repeat([]byte{0x24}, cipherBlockSize)

	for _, size := range []int{0, 1, 15, 16, 17, 100, 4096} {
		t.Run(fmt.Sprintf("%d_bytes", size), func(t *testing.T) {
			plaintext := bytes.Repeat([]byte{0xAB}, size)

			var out bytes.Buffer
			cw, err := newCryptoWriter(&out, testKey(), iv)
			require.NoError(t, err)
			_, err = cw.Write(plaintext)
			require.NoError(t, err)
			require.NoError(t, cw.Close())

			assert.Equal(t, plaintext, decryptCBC(t, testKey(), iv, out.Bytes()))
		})
	}
}

// TestCryptoDeterminism checks that a fixed key and IV produce identical
// ciphertext across runs.
func TestCryptoDeterminism(t *testing.T) {
	iv := bytes.Repeat([]byte{0x11}, cipherBlockSize)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	encrypt := func() []byte {
		var out bytes.Buffer
		cw, err := newCryptoWriter(&out, testKey(), iv)
		require.NoError(t, err)
		_, err = cw.Write(plaintext)
		require.NoError(t, err)
		require.NoError(t, cw.Close())
		return out.Bytes()
	}

	first := encrypt()
	second := encrypt()
	assert.Equal(t, first, second)
}

func TestCryptoWriterSplitWrites(t *testing.T) {
	iv := bytes.Repeat([]byte{0x42}, cipherBlockSize)
	plaintext := bytes.Repeat([]byte("0123456789"), 10)

	var whole bytes.Buffer
	cw, err := newCryptoWriter(&whole, testKey(), iv)
	require.NoError(t, err)
	_, err = cw.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	var split bytes.Buffer
	cw, err = newCryptoWriter(&split, testKey(), iv)
	require.NoError(t, err)
	for i := 0; i < len(plaintext); i += 7 {
		end := i + 7
		if end > len(plaintext) {
			end = len(plaintext)
		}
		_, err = cw.Write(plaintext[i:end])
		require.NoError(t, err)
	}
	require.NoError(t, cw.Close())

	assert.Equal(t, whole.Bytes(), split.Bytes(), "write chunking must not change the ciphertext")
}

func TestEncryptedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enc.sil")
	p, _ := newFileProtocol(t, fmt.Sprintf("filename=%q, encrypt=true, key=secret", path))

	require.NoError(t, p.Connect())
	for i := 0; i < 3; i++ {
		require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, fmt.Sprintf("%d", i))))
	}
	require.NoError(t, p.Disconnect())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Encrypted log: magic, clear-text IV, then ciphertext.
	require.Greater(t, len(data), len(encryptedFileMagic)+cipherBlockSize)
	assert.Equal(t, encryptedFileMagic, string(data[:len(encryptedFileMagic)]))

	iv := data[len(encryptedFileMagic) : len(encryptedFileMagic)+cipherBlockSize]
	ciphertext := data[len(encryptedFileMagic)+cipherBlockSize:]

	plain := decryptCBC(t, testKey(), iv, ciphertext)

	// The decrypted payload is a regular binary log.
	require.Equal(t, fileMagic, string(plain[:len(fileMagic)]))
	r := bytes.NewReader(plain[len(fileMagic):])
	var titles []string
	for {
		pk, err := packet.Decode(r)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		titles = append(titles, pk.(*packet.LogEntry).Title)
	}
	assert.Equal(t, []string{"0", "1", "2"}, titles)
}

func TestEncryptRequiresKey(t *testing.T) {
	descs, err := ParseConnections("file(filename=x.sil, encrypt=true)")
	require.NoError(t, err)
	_, err = New(descs[0], Environment{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoEncryptionKey)
}

func TestEncryptDisablesAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enc.sil")
	_, ft := newFileProtocol(t, fmt.Sprintf("filename=%q, encrypt=true, key=secret, append=true", path))
	assert.False(t, ft.appendMode, "append cannot be combined with encryption")
}
