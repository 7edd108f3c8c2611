package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key := digest.DeriveKey([]byte("test passphrase"))
	c, err := New(key)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("hello, world")

	encrypted, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, encrypted, nonceSize+len(plaintext)+tagSize)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptUsesFreshNonceEachTime(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, a, b, "ciphertexts of identical plaintext must differ under distinct nonces")
}

func TestDecryptRejectsShortPayload(t *testing.T) {
	c := newTestCipher(t)
	_, err := c.Decrypt([]byte("too short"))
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrCorruptBlob))
}

func TestDecryptRejectsBitFlip(t *testing.T) {
	c := newTestCipher(t)
	encrypted, err := c.Encrypt([]byte("hello, world"))
	require.NoError(t, err)

	flipped := append([]byte(nil), encrypted...)
	flipped[len(flipped)-1] ^= 0x01

	_, err = c.Decrypt(flipped)
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrAuth))
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c := newTestCipher(t)
	encrypted, err := c.Encrypt([]byte("hello, world"))
	require.NoError(t, err)

	other, err := New(digest.DeriveKey([]byte("different passphrase")))
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrAuth))
}

func TestEncryptDecryptStreamRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, size := range []int{0, 1, streamChunkSize - 1, streamChunkSize, streamChunkSize + 1, streamChunkSize*2 + 17} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			plaintext := bytes.Repeat([]byte{0xAB}, size)

			var sealed bytes.Buffer
			require.NoError(t, c.EncryptStream(&sealed, bytes.NewReader(plaintext)))

			var recovered bytes.Buffer
			require.NoError(t, c.DecryptStream(&recovered, bytes.NewReader(sealed.Bytes())))

			require.Equal(t, plaintext, recovered.Bytes())
		})
	}
}

func TestDecryptStreamRejectsTruncation(t *testing.T) {
	c := newTestCipher(t)
	plaintext := bytes.Repeat([]byte{0x11}, streamChunkSize+100)

	var sealed bytes.Buffer
	require.NoError(t, c.EncryptStream(&sealed, bytes.NewReader(plaintext)))

	truncated := sealed.Bytes()[:sealed.Len()-5]

	var recovered bytes.Buffer
	err := c.DecryptStream(&recovered, bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestDecryptStreamRejectsBitFlip(t *testing.T) {
	c := newTestCipher(t)
	plaintext := bytes.Repeat([]byte{0x22}, streamChunkSize+100)

	var sealed bytes.Buffer
	require.NoError(t, c.EncryptStream(&sealed, bytes.NewReader(plaintext)))

	flipped := append([]byte(nil), sealed.Bytes()...)
	flipped[len(flipped)-1] ^= 0x01

	var recovered bytes.Buffer
	err := c.DecryptStream(&recovered, bytes.NewReader(flipped))
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrAuth))
}
