// Package filesystem implements storagedriver.StorageDriver over the local
// disk, the only backend butnext supports (remote repositories are out of
// scope).
package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	storagedriver "github.com/butnext/butnext/storagedriver"
)

// tempCounter disambiguates concurrent PutContent temp files written by the
// same process to the same destination path.
var tempCounter atomic.Uint64

// Driver is a storagedriver.StorageDriver backed by a directory on the
// local filesystem. All paths are relative to RootDirectory.
type Driver struct {
	rootDirectory string
}

var _ storagedriver.StorageDriver = (*Driver)(nil)

// New returns a Driver rooted at rootDirectory, creating it if absent.
func New(rootDirectory string) (*Driver, error) {
	if err := os.MkdirAll(rootDirectory, 0o777); err != nil {
		return nil, fmt.Errorf("create root directory %s: %w", rootDirectory, err)
	}
	return &Driver{rootDirectory: rootDirectory}, nil
}

func (d *Driver) fullPath(subPath string) string {
	return filepath.Join(d.rootDirectory, filepath.FromSlash(subPath))
}

// GetContent retrieves the content stored at path as a []byte.
func (d *Driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	rc, err := d.Reader(ctx, subPath, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// PutContent stores content at path, replacing it atomically via a
// temporary file and rename.
func (d *Driver) PutContent(ctx context.Context, subPath string, content []byte) error {
	return d.PutContentFromReader(ctx, subPath, bytes.NewReader(content))
}

// PutContentFromReader stores the bytes read from r at path, replacing it
// atomically via a temporary file and rename, copying in chunks rather than
// buffering r's full content in memory.
func (d *Driver) PutContentFromReader(ctx context.Context, subPath string, r io.Reader) error {
	tempPath := fmt.Sprintf("%s.tmp.%d.%d", subPath, os.Getpid(), tempCounter.Add(1))

	writer, err := d.Writer(ctx, tempPath, false)
	if err != nil {
		return err
	}

	if _, err := io.Copy(writer, r); err != nil {
		cErr := writer.Cancel(ctx)
		dErr := d.Delete(ctx, tempPath)
		return errors.Join(err, cErr, dErr)
	}

	if err := writer.Commit(ctx); err != nil {
		dErr := d.Delete(ctx, tempPath)
		return errors.Join(err, dErr)
	}
	if err := writer.Close(); err != nil {
		dErr := d.Delete(ctx, tempPath)
		return errors.Join(err, dErr)
	}

	if err := d.Move(ctx, tempPath, subPath); err != nil {
		dErr := d.Delete(ctx, tempPath)
		return errors.Join(err, dErr)
	}

	return nil
}

// CreateExclusive atomically creates subPath with content via O_EXCL,
// failing with AlreadyExistsError rather than overwriting if subPath is
// already present.
func (d *Driver) CreateExclusive(ctx context.Context, subPath string, content []byte) error {
	fullPath := d.fullPath(subPath)
	if err := os.MkdirAll(path.Dir(filepath.ToSlash(fullPath)), 0o777); err != nil {
		return err
	}

	fp, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return storagedriver.AlreadyExistsError{Path: subPath}
		}
		return err
	}

	if _, err := fp.Write(content); err != nil {
		fp.Close()
		os.Remove(fullPath)
		return err
	}
	if err := fp.Sync(); err != nil {
		fp.Close()
		os.Remove(fullPath)
		return err
	}
	return fp.Close()
}

// Reader retrieves an io.ReadCloser for the content stored at path,
// starting at offset.
func (d *Driver) Reader(ctx context.Context, subPath string, offset int64) (io.ReadCloser, error) {
	file, err := os.OpenFile(d.fullPath(subPath), os.O_RDONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	} else if offset > fi.Size() {
		file.Close()
		return nil, storagedriver.InvalidOffsetError{Path: subPath, Offset: offset}
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}

// Writer returns a FileWriter for path. The parent directory is created on
// demand, matching the blob store's "shard directory created on demand"
// requirement.
func (d *Driver) Writer(ctx context.Context, subPath string, appendToFile bool) (storagedriver.FileWriter, error) {
	fullPath := d.fullPath(subPath)
	if err := os.MkdirAll(path.Dir(filepath.ToSlash(fullPath)), 0o777); err != nil {
		return nil, err
	}

	fp, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}

	var offset int64
	if appendToFile {
		offset, err = fp.Seek(0, io.SeekEnd)
		if err != nil {
			fp.Close()
			return nil, err
		}
	} else if err := fp.Truncate(0); err != nil {
		fp.Close()
		return nil, err
	}

	return newFileWriter(fp, offset), nil
}

// Stat retrieves FileInfo for path.
func (d *Driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
		return nil, err
	}
	return fileInfo{path: subPath, size: fi.Size(), isDir: fi.IsDir()}, nil
}

// List returns the direct descendants of path.
func (d *Driver) List(ctx context.Context, subPath string) ([]string, error) {
	fullPath := d.fullPath(subPath)

	dir, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath}
		}
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(0)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, path.Join(subPath, name))
	}
	return keys, nil
}

// Move atomically moves sourcePath to destPath.
func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	source := d.fullPath(sourcePath)
	dest := d.fullPath(destPath)

	if _, err := os.Stat(source); os.IsNotExist(err) {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return err
	}

	return os.Rename(source, dest)
}

// Delete recursively removes path and its subpaths. Deleting a path that
// does not exist is not an error.
func (d *Driver) Delete(ctx context.Context, subPath string) error {
	fullPath := d.fullPath(subPath)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(fullPath)
}

type fileInfo struct {
	path  string
	size  int64
	isDir bool
}

func (f fileInfo) Path() string { return f.path }
func (f fileInfo) Size() int64  { return f.size }
func (f fileInfo) IsDir() bool  { return f.isDir }
