// Package crypto implements authenticated encryption for blob payloads
// using a passphrase-derived key, independent of the compression codec
// applied before it.
package crypto

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/butnext/butnext/internal/buterr"
)

// KeySize is the length in bytes of a Cipher's symmetric key.
const KeySize = chacha20poly1305.KeySize // 32

// nonceSize and tagSize fix the wire format of Encrypt/Decrypt payloads to
// nonce(12) || ciphertext || tag(16). Blobs written through EncryptStream
// use the chunked salt || sealed-chunks format instead.
const (
	nonceSize      = chacha20poly1305.NonceSize // 12
	tagSize        = 16
	minPayloadSize = nonceSize + tagSize
)

// streamChunkSize is the plaintext chunk size EncryptStream/DecryptStream
// seal independently, matching digest's and the storagedriver's own 64 KiB
// streaming unit so a blob of any size holds at most one chunk in memory.
const streamChunkSize = 64 * 1024

// streamSaltSize is the length of the random per-stream nonce prefix mixed
// into every chunk's nonce, so streams encrypted under the same repository
// key never reuse a nonce.
const streamSaltSize = 4

// Cipher encrypts and decrypts blob payloads with a single repository-wide
// key using IETF ChaCha20-Poly1305 AEAD.
type Cipher struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// New constructs a Cipher from a 32-byte key, typically produced by
// digest.DeriveKey.
func New(key [KeySize]byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: construct cipher: %v", buterr.ErrConfig, err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce, returning
// nonce || ciphertext || tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", buterr.ErrIO, err)
	}

	out := make([]byte, 0, nonceSize+len(plaintext)+tagSize)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt reverses Encrypt. It fails with ErrCorruptBlob if payload is too
// short to contain a nonce and tag, and with ErrAuth if the tag does not
// verify.
func (c *Cipher) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < minPayloadSize {
		return nil, fmt.Errorf("%w: encrypted payload too short (%d bytes)", buterr.ErrCorruptBlob, len(payload))
	}

	nonce := payload[:nonceSize]
	ciphertext := payload[nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", buterr.ErrAuth, err)
	}
	return plaintext, nil
}

// streamNonce builds the per-chunk nonce for EncryptStream/DecryptStream:
// the stream's random salt, followed by a monotonic chunk counter with the
// final-chunk flag folded into its low bit. Folding the flag into the
// counter keeps the counter's 63 remaining bits for chunk indices while
// still fitting the AEAD's fixed 12-byte nonce.
func streamNonce(salt []byte, counter uint64, last bool) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, salt)
	v := counter << 1
	if last {
		v |= 1
	}
	binary.BigEndian.PutUint64(nonce[len(salt):], v)
	return nonce
}

// EncryptStream reads plaintext from r in streamChunkSize chunks and writes
// salt || sealed-chunks to w, sealing each chunk under a nonce derived from
// a random per-stream salt and an incrementing counter. The final chunk's
// nonce is flagged, so DecryptStream can detect truncation even for a
// zero-length input, which still produces one empty sealed final chunk.
// At most one chunk of plaintext and its sealed form are resident in
// memory at a time.
func (c *Cipher) EncryptStream(w io.Writer, r io.Reader) error {
	salt := make([]byte, streamSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("%w: generate stream salt: %v", buterr.ErrIO, err)
	}
	if _, err := w.Write(salt); err != nil {
		return fmt.Errorf("%w: write stream salt: %v", buterr.ErrIO, err)
	}

	br := bufio.NewReader(r)
	buf := make([]byte, streamChunkSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(br, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return fmt.Errorf("%w: read stream chunk: %v", buterr.ErrIO, readErr)
		}

		last := n < len(buf)
		if !last {
			if _, peekErr := br.Peek(1); peekErr != nil {
				last = true
			}
		}

		nonce := streamNonce(salt, counter, last)
		sealed := c.aead.Seal(nil, nonce, buf[:n], nil)
		if _, err := w.Write(sealed); err != nil {
			return fmt.Errorf("%w: write stream chunk: %v", buterr.ErrIO, err)
		}
		if last {
			return nil
		}
		counter++
	}
}

// DecryptStream reverses EncryptStream, reading salt || sealed-chunks from r
// and writing the verified plaintext to w. It fails with ErrCorruptBlob when
// the input ends inside the salt or leaves fewer than a tag's worth of bytes
// for a chunk, and with ErrAuth on any chunk whose tag does not verify,
// which includes any other truncation: the chunk read last is opened under
// the final-chunk nonce it was not sealed with.
func (c *Cipher) DecryptStream(w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)

	salt := make([]byte, streamSaltSize)
	if _, err := io.ReadFull(br, salt); err != nil {
		return fmt.Errorf("%w: read stream salt: %v", buterr.ErrCorruptBlob, err)
	}

	sealedChunk := make([]byte, streamChunkSize+tagSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(br, sealedChunk)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return fmt.Errorf("%w: read stream chunk: %v", buterr.ErrIO, readErr)
		}
		if n < tagSize {
			return fmt.Errorf("%w: truncated encrypted stream (%d bytes in final chunk)", buterr.ErrCorruptBlob, n)
		}

		last := n < len(sealedChunk)
		if !last {
			if _, peekErr := br.Peek(1); peekErr != nil {
				last = true
			}
		}

		nonce := streamNonce(salt, counter, last)
		plaintext, err := c.aead.Open(nil, nonce, sealedChunk[:n], nil)
		if err != nil {
			return fmt.Errorf("%w: decrypt stream chunk: %v", buterr.ErrAuth, err)
		}
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("%w: write decrypted chunk: %v", buterr.ErrIO, err)
		}
		if last {
			return nil
		}
		counter++
	}
}
