// Package blobstore implements the content-addressed blob layer shared by
// every repository: blobs are stored under a digest-sharded path and never
// interpreted, leaving compression and encryption to the caller.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/dcontext"
	storagedriver "github.com/butnext/butnext/storagedriver"
)

const blobsRoot = "blobs"

// BlobStore stores opaque, digest-addressed payloads. It has no knowledge
// of compression codecs or encryption; callers address blobs by the digest
// of the plaintext, while the bytes stored are the encoded (post-codec,
// post-cipher) form.
type BlobStore struct {
	driver storagedriver.StorageDriver
}

// New returns a BlobStore backed by driver.
func New(driver storagedriver.StorageDriver) *BlobStore {
	return &BlobStore{driver: driver}
}

// Driver returns the underlying storage driver, for callers (such as
// manifest listing) that need to share it rather than duplicate a
// connection.
func (s *BlobStore) Driver() storagedriver.StorageDriver {
	return s.driver
}

func blobPath(d digest.Digest) string {
	prefix, rest := d.Shard()
	return path.Join(blobsRoot, prefix, rest)
}

// Has reports whether a blob with digest d is already present.
func (s *BlobStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := s.driver.Stat(ctx, blobPath(d))
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat blob %s: %v", buterr.ErrIO, d, err)
	}
	return true, nil
}

// Put stores content under digest d, supplied by the caller; Put does not
// hash content itself. Put is idempotent: if a blob with this digest is
// already present, it is not rewritten, since content-addressing guarantees
// that the existing bytes already match.
func (s *BlobStore) Put(ctx context.Context, d digest.Digest, content []byte) error {
	exists, err := s.Has(ctx, d)
	if err != nil {
		return err
	}
	if exists {
		dcontext.GetLogger(ctx).Debugf("blob %s already present, skipping write", d)
		return nil
	}

	if err := s.driver.PutContent(ctx, blobPath(d), content); err != nil {
		return fmt.Errorf("%w: put blob %s: %v", buterr.ErrIO, d, err)
	}
	return nil
}

// Get retrieves the raw bytes stored under digest d.
func (s *BlobStore) Get(ctx context.Context, d digest.Digest) ([]byte, error) {
	content, err := s.driver.GetContent(ctx, blobPath(d))
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: blob %s", buterr.ErrMissingBlob, d)
		}
		return nil, fmt.Errorf("%w: get blob %s: %v", buterr.ErrIO, d, err)
	}
	return content, nil
}

// PutFromReader stores the bytes read from r under digest d, without ever
// holding the full payload in memory: the driver copies in chunks straight
// through to a temporary file. PutFromReader is idempotent the same way Put is; if
// the digest is already present, r is drained and discarded rather than
// read into the store, so a concurrent writer race between the caller's
// own existence check and this call cannot leave r's producer blocked on
// an unread pipe.
func (s *BlobStore) PutFromReader(ctx context.Context, d digest.Digest, r io.Reader) error {
	exists, err := s.Has(ctx, d)
	if err != nil {
		return err
	}
	if exists {
		dcontext.GetLogger(ctx).Debugf("blob %s already present, skipping write", d)
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("%w: drain redundant source for blob %s: %v", buterr.ErrIO, d, err)
		}
		return nil
	}

	if err := s.driver.PutContentFromReader(ctx, blobPath(d), r); err != nil {
		return fmt.Errorf("%w: put blob %s: %v", buterr.ErrIO, d, err)
	}
	return nil
}

// NewReader returns a streaming reader for the blob stored under digest d.
// The caller must Close it.
func (s *BlobStore) NewReader(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	rc, err := s.driver.Reader(ctx, blobPath(d), 0)
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: blob %s", buterr.ErrMissingBlob, d)
		}
		return nil, fmt.Errorf("%w: get blob %s: %v", buterr.ErrIO, d, err)
	}
	return rc, nil
}

// Delete removes the blob stored under digest d. Deleting an absent blob is
// not an error, matching the driver's delete semantics.
func (s *BlobStore) Delete(ctx context.Context, d digest.Digest) error {
	if err := s.driver.Delete(ctx, blobPath(d)); err != nil {
		return fmt.Errorf("%w: delete blob %s: %v", buterr.ErrIO, d, err)
	}
	return nil
}

// Walk invokes fn once for every blob digest currently stored, in no
// particular order. It is used by verify and prune to enumerate the set of
// blobs actually on disk.
func (s *BlobStore) Walk(ctx context.Context, fn func(digest.Digest) error) error {
	shards, err := s.driver.List(ctx, blobsRoot)
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: list blob shards: %v", buterr.ErrIO, err)
	}

	for _, shard := range shards {
		entries, err := s.driver.List(ctx, shard)
		if err != nil {
			return fmt.Errorf("%w: list blob shard %s: %v", buterr.ErrIO, shard, err)
		}
		prefix := path.Base(shard)
		for _, entry := range entries {
			d := digest.Digest(prefix + path.Base(entry))
			if err := d.Validate(); err != nil {
				dcontext.GetLogger(ctx).Warnf("skipping non-blob entry %s: %v", entry, err)
				continue
			}
			if err := fn(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Size reports the stored size in bytes of the blob at digest d.
func (s *BlobStore) Size(ctx context.Context, d digest.Digest) (int64, error) {
	fi, err := s.driver.Stat(ctx, blobPath(d))
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("%w: blob %s", buterr.ErrMissingBlob, d)
		}
		return 0, fmt.Errorf("%w: stat blob %s: %v", buterr.ErrIO, d, err)
	}
	return fi.Size(), nil
}
