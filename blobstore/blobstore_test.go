package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/storagedriver/inmemory"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	content := []byte("blob payload")
	d := digest.FromBytes(content)

	require.NoError(t, s.Put(ctx, d, content))

	has, err := s.Has(ctx, d)
	require.NoError(t, err)
	require.True(t, has)

	got, err := s.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	s := New(driver)

	content := []byte("dedupe me")
	d := digest.FromBytes(content)

	require.NoError(t, s.Put(ctx, d, content))
	require.NoError(t, s.Put(ctx, d, content))

	got, err := s.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestGetMissingBlob(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	d := digest.FromBytes([]byte("never stored"))
	_, err := s.Get(ctx, d)
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrMissingBlob))
}

func TestHasMissingBlob(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	has, err := s.Has(ctx, digest.FromBytes([]byte("absent")))
	require.NoError(t, err)
	require.False(t, has)
}

func TestDeleteThenMissing(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	content := []byte("to be deleted")
	d := digest.FromBytes(content)
	require.NoError(t, s.Put(ctx, d, content))
	require.NoError(t, s.Delete(ctx, d))

	has, err := s.Has(ctx, d)
	require.NoError(t, err)
	require.False(t, has)
}

func TestWalkEnumeratesAllBlobs(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	want := map[digest.Digest]bool{}
	for _, payload := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		d := digest.FromBytes(payload)
		require.NoError(t, s.Put(ctx, d, payload))
		want[d] = true
	}

	got := map[digest.Digest]bool{}
	require.NoError(t, s.Walk(ctx, func(d digest.Digest) error {
		got[d] = true
		return nil
	}))

	require.Equal(t, want, got)
}

func TestPutFromReaderNewReaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	content := []byte("streamed blob payload")
	d := digest.FromBytes(content)

	require.NoError(t, s.PutFromReader(ctx, d, bytes.NewReader(content)))

	rc, err := s.NewReader(ctx, d)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestPutFromReaderDrainsRedundantSource(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	content := []byte("already present")
	d := digest.FromBytes(content)
	require.NoError(t, s.Put(ctx, d, content))

	// A redundant PutFromReader must still drain r so an upstream io.Pipe
	// writer goroutine feeding it is never left blocked.
	pr, pw := io.Pipe()
	go func() {
		pw.Write(content)
		pw.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- s.PutFromReader(ctx, d, pr) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("PutFromReader did not drain redundant source")
	}
}

func TestNewReaderMissingBlob(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	_, err := s.NewReader(ctx, digest.FromBytes([]byte("absent")))
	require.Error(t, err)
	require.True(t, errors.Is(err, buterr.ErrMissingBlob))
}

func TestSizeReflectsStoredBytes(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())

	content := []byte("twelve bytes")
	d := digest.FromBytes(content)
	require.NoError(t, s.Put(ctx, d, content))

	size, err := s.Size(ctx, d)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), size)
}
