package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"os"

	storagedriver "github.com/butnext/butnext/storagedriver"
)

// fileWriter implements storagedriver.FileWriter over an *os.File, fsyncing
// on Commit so a reader never observes a partial write once the driver
// renames the temp file into place.
type fileWriter struct {
	file      *os.File
	size      int64
	bw        *bufio.Writer
	closed    bool
	committed bool
	cancelled bool
}

var _ storagedriver.FileWriter = (*fileWriter)(nil)

func newFileWriter(file *os.File, initialOffset int64) *fileWriter {
	return &fileWriter{
		file: file,
		size: initialOffset,
		bw:   bufio.NewWriter(file),
	}
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed writer")
	} else if w.committed {
		return 0, fmt.Errorf("write to committed writer")
	} else if w.cancelled {
		return 0, fmt.Errorf("write to cancelled writer")
	}

	n, err := w.bw.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Size() int64 {
	return w.size
}

func (w *fileWriter) Close() error {
	if w.closed {
		return fmt.Errorf("already closed")
	}

	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.closed = true
	return nil
}

func (w *fileWriter) Cancel(ctx context.Context) error {
	if w.closed {
		return fmt.Errorf("already closed")
	}
	w.cancelled = true
	w.file.Close()
	return os.Remove(w.file.Name())
}

func (w *fileWriter) Commit(ctx context.Context) error {
	if w.closed {
		return fmt.Errorf("already closed")
	} else if w.committed {
		return fmt.Errorf("already committed")
	} else if w.cancelled {
		return fmt.Errorf("already cancelled")
	}

	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.committed = true
	return nil
}
