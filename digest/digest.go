// Package digest computes the content digests that identify blobs
// throughout the repository, and derives the repository's encryption key
// from a passphrase using the same hash in its keyed mode.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"github.com/butnext/butnext/internal/buterr"
)

// Size is the length in bytes of a Digest's underlying hash.
const Size = 32

// chunkSize is the streaming read buffer size mandated for file hashing;
// stream encryption seals plaintext in chunks of the same size.
const chunkSize = 64 * 1024

// Digest is a 256-bit BLAKE3 content hash, rendered as 64 lowercase hex
// characters. The zero value is not a valid digest.
type Digest string

// FromBytes digests p in memory. Prefer FromReader for anything that did
// not already require buffering the whole payload.
func FromBytes(p []byte) Digest {
	sum := blake3.Sum256(p)
	return Digest(hex.EncodeToString(sum[:]))
}

// FromReader streams r in chunkSize chunks through an incremental hash
// state, never holding more than one chunk in memory.
func FromReader(r io.Reader) (Digest, error) {
	h := NewHasher()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: digest stream: %v", buterr.ErrIO, err)
	}
	return h.Digest(), nil
}

// Hasher incrementally computes a Digest over bytes written to it. It
// implements io.Writer, so it can sit inside an io.MultiWriter alongside a
// file handle to hash content in the same pass that writes it to disk,
// rather than hashing it again afterward.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(Size, nil)}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Digest returns the digest of everything written so far.
func (h *Hasher) Digest() Digest {
	return Digest(hex.EncodeToString(h.h.Sum(nil)))
}

// FromFile opens path and streams its content through FromReader.
func FromFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", buterr.ErrIO, path, err)
	}
	defer f.Close()

	d, err := FromReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", buterr.ErrIO, path, err)
	}
	return d, nil
}

// Validate reports whether d is a syntactically well-formed digest: exactly
// Size*2 lowercase hex characters. It does not verify that any blob with
// this digest exists.
func (d Digest) Validate() error {
	if len(d) != Size*2 {
		return fmt.Errorf("invalid digest length %q", string(d))
	}
	if _, err := hex.DecodeString(string(d)); err != nil {
		return fmt.Errorf("invalid digest %q: %v", string(d), err)
	}
	if strings.ToLower(string(d)) != string(d) {
		return fmt.Errorf("invalid digest %q: not lowercase", string(d))
	}
	return nil
}

// Shard returns the two-character shard prefix and the remaining hex
// characters, matching the blobs/<aa>/<rest> on-disk layout.
func (d Digest) Shard() (prefix, rest string) {
	s := string(d)
	return s[:2], s[2:]
}

func (d Digest) String() string {
	return string(d)
}

// deriveKeyDomain is the context string mixed into every derived encryption
// key via BLAKE3's key-derivation mode, so a key derived here can never
// collide with a plain content digest of the same passphrase bytes, or with
// a key derived for any other purpose.
const deriveKeyDomain = "but-next-key-v1"

// DeriveKey derives a 32-byte encryption key from passphrase using BLAKE3's
// key-derivation mode. This is the same primitive FromBytes uses for content
// hashing, so the repository's only cryptographic dependency is BLAKE3.
func DeriveKey(passphrase []byte) [32]byte {
	var key [32]byte
	blake3.DeriveKey(key[:], deriveKeyDomain, passphrase)
	return key
}
