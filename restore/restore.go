// Package restore materializes a persisted snapshot back onto the local
// filesystem.
package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/crypto"
	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/dcontext"
	"github.com/butnext/butnext/manifest"
	"github.com/butnext/butnext/repository"
)

// Options configures one restore run.
type Options struct {
	SnapshotID string
	OutputRoot string
	// PathPrefix, if non-empty, restricts restoration to entries whose
	// path starts with this prefix.
	PathPrefix string
	Cipher     *crypto.Cipher // required iff the snapshot is encrypted
}

// Warning records a non-fatal condition for a single restored path.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes a completed restore run.
type Report struct {
	SnapshotID    string   `json:"snapshot_id"`
	FilesWritten  int      `json:"files_written"`
	BytesWritten  int64    `json:"bytes_written"`
	Warnings      []Warning `json:"warnings"`
}

// Engine restores snapshots from a single repository.
type Engine struct {
	Repo *repository.Repository
}

// New returns an Engine backed by repo.
func New(repo *repository.Repository) *Engine {
	return &Engine{Repo: repo}
}

// Run materializes opts.SnapshotID under opts.OutputRoot.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	snap, err := e.Repo.LoadSnapshot(ctx, opts.SnapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Encrypted && opts.Cipher == nil {
		return nil, fmt.Errorf("%w: snapshot %s is encrypted, no cipher provided", buterr.ErrAuth, snap.ID)
	}

	dcontext.GetLogger(ctx).Infof("restoring snapshot %s to %s", snap.ID, opts.OutputRoot)

	if err := os.MkdirAll(opts.OutputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output root: %v", buterr.ErrIO, err)
	}

	entries := make([]manifest.FileEntry, 0, len(snap.Entries))
	for _, fe := range snap.Entries {
		if opts.PathPrefix != "" && !strings.HasPrefix(fe.Path, opts.PathPrefix) {
			continue
		}
		entries = append(entries, fe)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	report := &Report{SnapshotID: snap.ID}

	for _, fe := range entries {
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("%w: %v", buterr.ErrCancelled, ctx.Err())
		default:
		}

		warn, err := e.restoreEntry(ctx, snap, opts, fe)
		if err != nil {
			return report, fmt.Errorf("%s: %w", fe.Path, err)
		}
		if warn != nil {
			report.Warnings = append(report.Warnings, *warn)
		}
		if fe.Digest != "" {
			report.FilesWritten++
			report.BytesWritten += fe.Size
		}
	}

	sort.Slice(report.Warnings, func(i, j int) bool { return report.Warnings[i].Path < report.Warnings[j].Path })
	return report, nil
}

func (e *Engine) restoreEntry(ctx context.Context, snap *manifest.Snapshot, opts Options, fe manifest.FileEntry) (*Warning, error) {
	dest := filepath.Join(opts.OutputRoot, filepath.FromSlash(fe.Path))

	switch {
	case fe.Dir:
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %v", buterr.ErrIO, dest, err)
		}
		return restoreMode(dest, fe), nil

	case fe.LinkTarget != "":
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %v", buterr.ErrIO, filepath.Dir(dest), err)
		}
		os.Remove(dest)
		if err := os.Symlink(fe.LinkTarget, dest); err != nil {
			return &Warning{Path: fe.Path, Reason: err.Error()}, nil
		}
		return nil, nil

	default:
		return e.restoreFile(ctx, snap, opts, fe, dest)
	}
}

// restoreFile streams the blob through decryption and decompression
// straight into the destination file, hashing the plaintext in the same
// pass it is written rather than buffering the whole file to verify it
// afterward.
func (e *Engine) restoreFile(ctx context.Context, snap *manifest.Snapshot, opts Options, fe manifest.FileEntry, dest string) (*Warning, error) {
	blobReader, err := e.Repo.Blobs.NewReader(ctx, fe.Digest)
	if err != nil {
		return nil, err
	}
	defer blobReader.Close()

	raw := io.Reader(blobReader)
	if snap.Encrypted {
		decrypted := pipeThrough(func(w io.Writer) error {
			return opts.Cipher.DecryptStream(w, blobReader)
		})
		defer decrypted.Close()
		raw = decrypted
	}

	decoded := pipeThrough(func(w io.Writer) error {
		return codec.DecodeStream(snap.Codec, w, raw)
	})
	defer decoded.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", buterr.ErrIO, filepath.Dir(dest), err)
	}

	mode := os.FileMode(fe.Mode)
	if mode == 0 {
		mode = 0o644
	}

	got, err := writeAtomicFromReader(dest, decoded, mode)
	if err != nil {
		return nil, err
	}
	if got != fe.Digest {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: restored content for %s hashes to %s, want %s", buterr.ErrIntegrity, fe.Path, got, fe.Digest)
	}

	return restoreMode(dest, fe), nil
}

// pipeThrough runs fn against the write side of a new pipe in its own
// goroutine and returns the read side, so decrypt/decode stages chain
// without any stage buffering its full output.
func pipeThrough(fn func(io.Writer) error) *io.PipeReader {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(fn(pw))
	}()
	return pr
}

// writeAtomicFromReader streams r to a temp file in dest's directory,
// hashing as it writes, then renames the temp file into place so a reader
// never observes a partially-written restored file. It returns the digest
// of everything read from r.
func writeAtomicFromReader(dest string, r io.Reader, mode os.FileMode) (digest.Digest, error) {
	tmp := fmt.Sprintf("%s.tmp.%d", dest, os.Getpid())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", buterr.ErrIO, tmp, err)
	}

	hasher := digest.NewHasher()
	if _, err := io.Copy(io.MultiWriter(f, hasher), r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%w: write %s: %v", buterr.ErrIO, tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%w: sync %s: %v", buterr.ErrIO, tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: close %s: %v", buterr.ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: rename %s: %v", buterr.ErrIO, tmp, err)
	}
	return hasher.Digest(), nil
}

// restoreMode sets dest's mtime and permission bits, returning a warning
// (never an error) if either fails, per spec: mode/time restoration is
// best-effort.
func restoreMode(dest string, fe manifest.FileEntry) *Warning {
	if fe.Mode != 0 {
		if err := os.Chmod(dest, os.FileMode(fe.Mode)); err != nil {
			return &Warning{Path: fe.Path, Reason: fmt.Sprintf("chmod failed: %v", err)}
		}
	}
	if !fe.ModTime.IsZero() {
		if err := os.Chtimes(dest, time.Now(), fe.ModTime); err != nil {
			return &Warning{Path: fe.Path, Reason: fmt.Sprintf("chtimes failed: %v", err)}
		}
	}
	return nil
}
