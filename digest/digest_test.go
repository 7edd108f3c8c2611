package digest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytesAndFromReaderAgree(t *testing.T) {
	data := []byte("hello")

	byBytes := FromBytes(data)
	byReader, err := FromReader(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, byBytes, byReader)
	require.Len(t, string(byBytes), Size*2)
}

func TestFromFileMatchesFromBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	want := FromBytes([]byte("hello"))
	got, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestDigestDistinguishesPayloads(t *testing.T) {
	require.NotEqual(t, FromBytes([]byte("x")), FromBytes([]byte("y")))
}

func TestShard(t *testing.T) {
	d := FromBytes([]byte("hello"))
	prefix, rest := d.Shard()
	require.Len(t, prefix, 2)
	require.Equal(t, string(d), prefix+rest)
}

func TestValidate(t *testing.T) {
	d := FromBytes([]byte("hello"))
	require.NoError(t, d.Validate())
	require.Error(t, Digest("not-a-digest").Validate())
	require.Error(t, Digest("").Validate())
}

func TestDeriveKeyIsDeterministicAndDomainSeparated(t *testing.T) {
	k1 := DeriveKey([]byte("correct horse battery staple"))
	k2 := DeriveKey([]byte("correct horse battery staple"))
	require.Equal(t, k1, k2)

	k3 := DeriveKey([]byte("different passphrase"))
	require.NotEqual(t, k1, k3)
}
