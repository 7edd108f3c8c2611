package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAllCodecs(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")

	for _, c := range []Codec{None, General, HighRatio} {
		t.Run(string(c), func(t *testing.T) {
			encoded, err := Encode(c, payload, 5)
			require.NoError(t, err)

			decoded, err := Decode(c, encoded)
			require.NoError(t, err)
			require.Equal(t, payload, decoded)
		})
	}
}

func TestNoneIsIdentity(t *testing.T) {
	payload := []byte("unchanged")
	encoded, err := Encode(None, payload, 0)
	require.NoError(t, err)
	require.Equal(t, payload, encoded)
}

func TestDecodeCorruptBlob(t *testing.T) {
	for _, c := range []Codec{General, HighRatio} {
		t.Run(string(c), func(t *testing.T) {
			_, err := Decode(c, []byte("not a valid compressed frame"))
			require.Error(t, err)
		})
	}
}

func TestUnknownCodecRejected(t *testing.T) {
	_, err := Encode(Codec("bogus"), []byte("x"), 0)
	require.Error(t, err)

	_, err = Decode(Codec("bogus"), []byte("x"))
	require.Error(t, err)
}

func TestValid(t *testing.T) {
	require.True(t, None.Valid())
	require.True(t, General.Valid())
	require.True(t, HighRatio.Valid())
	require.False(t, Codec("bogus").Valid())
}

func TestEncodeStreamDecodeStreamRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")

	for _, c := range []Codec{None, General, HighRatio} {
		t.Run(string(c), func(t *testing.T) {
			var encoded bytes.Buffer
			require.NoError(t, EncodeStream(c, &encoded, bytes.NewReader(payload), 5))

			var decoded bytes.Buffer
			require.NoError(t, DecodeStream(c, &decoded, bytes.NewReader(encoded.Bytes())))

			require.Equal(t, payload, decoded.Bytes())
		})
	}
}

func TestDecodeStreamCorruptBlob(t *testing.T) {
	for _, c := range []Codec{General, HighRatio} {
		t.Run(string(c), func(t *testing.T) {
			var decoded bytes.Buffer
			err := DecodeStream(c, &decoded, bytes.NewReader([]byte("not a valid compressed frame")))
			require.Error(t, err)
		})
	}
}
