// Package storagedriver defines the narrow filesystem abstraction the blob
// store and manifest store are built on, adapted from the registry's
// storage driver interface but scoped to the single local backend butnext
// supports (remote/networked repositories are out of scope).
package storagedriver

import (
	"context"
	"fmt"
	"io"
)

// StorageDriver abstracts the byte-addressed filesystem operations the
// repository needs. Paths are slash-separated and relative to the driver's
// root.
type StorageDriver interface {
	// GetContent retrieves the content stored at path.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent atomically replaces the content stored at path: it writes
	// to a sibling temporary file, fsyncs, and renames over the
	// destination, so a reader never observes a partial write.
	PutContent(ctx context.Context, path string, content []byte) error

	// PutContentFromReader is PutContent for a caller that has content as a
	// stream rather than a buffered []byte: it gives the same
	// temp-file-then-rename atomicity without requiring the full payload
	// to be resident in memory at once.
	PutContentFromReader(ctx context.Context, path string, r io.Reader) error

	// CreateExclusive atomically creates path with content, failing with
	// AlreadyExistsError and leaving any existing content at path
	// untouched if path is already present. Unlike PutContent, it never
	// overwrites, so it is the primitive callers needing a check-and-set
	// (such as the repository lock) build on instead of a separate
	// stat-then-write that races against another writer doing the same.
	CreateExclusive(ctx context.Context, path string, content []byte) error

	// Reader returns a ReadCloser for the content stored at path, starting
	// at the given byte offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Writer returns a FileWriter for path. If append is false, any
	// existing content is truncated.
	Writer(ctx context.Context, path string, append bool) (FileWriter, error)

	// Stat returns FileInfo for path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the direct descendants of path.
	List(ctx context.Context, path string) ([]string, error)

	// Move atomically moves the content at sourcePath to destPath.
	Move(ctx context.Context, sourcePath, destPath string) error

	// Delete removes path and everything below it. It does not fail if
	// path does not exist.
	Delete(ctx context.Context, path string) error
}

// FileWriter is a handle to an in-progress write. Commit flushes the
// written bytes to path; Cancel discards them. The filesystem driver writes
// to path directly, so bytes may be visible there before Commit; PutContent
// and PutContentFromReader go through a temporary path and a rename.
type FileWriter interface {
	io.WriteCloser
	Size() int64
	Cancel(ctx context.Context) error
	Commit(ctx context.Context) error
}

// FileInfo describes a stored object.
type FileInfo interface {
	Path() string
	Size() int64
	IsDir() bool
}

// PathNotFoundError is returned when operating on a path that does not
// exist.
type PathNotFoundError struct {
	Path string
}

func (e PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// InvalidOffsetError is returned when Reader is asked to start past the end
// of the stored content.
type InvalidOffsetError struct {
	Path   string
	Offset int64
}

func (e InvalidOffsetError) Error() string {
	return fmt.Sprintf("invalid offset %d for path: %s", e.Offset, e.Path)
}

// AlreadyExistsError is returned by CreateExclusive when path is already
// present.
type AlreadyExistsError struct {
	Path string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("path already exists: %s", e.Path)
}
