// Package inmemory implements storagedriver.StorageDriver entirely in
// process memory, so BlobStore, Manifest, and Repository logic can be
// exercised in unit tests without touching disk.
package inmemory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	storagedriver "github.com/butnext/butnext/storagedriver"
)

// Driver is a storagedriver.StorageDriver backed by a map guarded by a
// mutex. It is safe for concurrent use.
type Driver struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ storagedriver.StorageDriver = (*Driver)(nil)

// New returns an empty in-memory driver.
func New() *Driver {
	return &Driver{files: make(map[string][]byte)}
}

func (d *Driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	content, ok := d.files[subPath]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: subPath}
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (d *Driver) PutContent(ctx context.Context, subPath string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]byte, len(content))
	copy(cp, content)
	d.files[subPath] = cp
	return nil
}

// PutContentFromReader drains r into memory and stores it. The in-memory
// driver is a map of already-resident []byte, so there is no streaming
// backend to write through in chunks the way the filesystem driver does;
// it exists only so tests can exercise streaming call sites without a real
// disk.
func (d *Driver) PutContentFromReader(ctx context.Context, subPath string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return d.PutContent(ctx, subPath, content)
}

// CreateExclusive atomically creates subPath with content, failing with
// AlreadyExistsError rather than overwriting if subPath is already
// present. The check and the write happen under the same lock, so two
// concurrent callers can never both succeed for the same path.
func (d *Driver) CreateExclusive(ctx context.Context, subPath string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.files[subPath]; ok {
		return storagedriver.AlreadyExistsError{Path: subPath}
	}

	cp := make([]byte, len(content))
	copy(cp, content)
	d.files[subPath] = cp
	return nil
}

func (d *Driver) Reader(ctx context.Context, subPath string, offset int64) (io.ReadCloser, error) {
	content, err := d.GetContent(ctx, subPath)
	if err != nil {
		return nil, err
	}
	if offset > int64(len(content)) {
		return nil, storagedriver.InvalidOffsetError{Path: subPath, Offset: offset}
	}
	return nopCloser{bytes.NewReader(content[offset:])}, nil
}

func (d *Driver) Writer(ctx context.Context, subPath string, appendToFile bool) (storagedriver.FileWriter, error) {
	var initial []byte
	if appendToFile {
		existing, err := d.GetContent(ctx, subPath)
		if err == nil {
			initial = existing
		}
	}
	return &fileWriter{driver: d, path: subPath, buf: append([]byte(nil), initial...)}, nil
}

func (d *Driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if content, ok := d.files[subPath]; ok {
		return fileInfo{path: subPath, size: int64(len(content))}, nil
	}

	prefix := strings.TrimSuffix(subPath, "/") + "/"
	for p := range d.files {
		if strings.HasPrefix(p, prefix) || subPath == "" {
			return fileInfo{path: subPath, isDir: true}, nil
		}
	}
	return nil, storagedriver.PathNotFoundError{Path: subPath}
}

func (d *Driver) List(ctx context.Context, subPath string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	prefix := subPath
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}

	seen := make(map[string]struct{})
	for p := range d.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		child := strings.SplitN(rest, "/", 2)[0]
		if child == "" {
			continue
		}
		seen[path.Join(subPath, child)] = struct{}{}
	}

	if len(seen) == 0 {
		if _, ok := d.files[subPath]; !ok {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	content, ok := d.files[sourcePath]
	if !ok {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}
	d.files[destPath] = content
	delete(d.files, sourcePath)
	return nil
}

func (d *Driver) Delete(ctx context.Context, subPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := strings.TrimSuffix(subPath, "/") + "/"
	for p := range d.files {
		if p == subPath || strings.HasPrefix(p, prefix) {
			delete(d.files, p)
		}
	}
	return nil
}

type fileInfo struct {
	path  string
	size  int64
	isDir bool
}

func (f fileInfo) Path() string { return f.path }
func (f fileInfo) Size() int64  { return f.size }
func (f fileInfo) IsDir() bool  { return f.isDir }

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

type fileWriter struct {
	driver    *Driver
	path      string
	buf       []byte
	closed    bool
	committed bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *fileWriter) Size() int64 { return int64(len(w.buf)) }

func (w *fileWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fileWriter) Cancel(ctx context.Context) error {
	w.closed = true
	return nil
}

func (w *fileWriter) Commit(ctx context.Context) error {
	w.committed = true
	return w.driver.PutContent(ctx, w.path, w.buf)
}
