// Package backup implements the incremental, deduplicating snapshot
// algorithm: walk a source tree, hash each file, dedupe against the
// repository's blob store, and commit a manifest describing what was
// captured.
package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/crypto"
	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/dcontext"
	"github.com/butnext/butnext/manifest"
	"github.com/butnext/butnext/repository"
)

// Options configures one backup run.
type Options struct {
	Target          string
	SourceRoot      string
	ExcludePatterns []string
	Codec           codec.Codec
	CodecLevel      int
	Cipher          *crypto.Cipher // nil disables encryption
}

// Warning records a non-fatal condition encountered while backing up a
// single path.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes a completed backup run.
type Report struct {
	Snapshot *manifest.Snapshot
	Warnings []Warning
}

// Engine runs backups against a single repository.
type Engine struct {
	Repo *repository.Repository
}

// New returns an Engine backed by repo.
func New(repo *repository.Repository) *Engine {
	return &Engine{Repo: repo}
}

type walkedEntry struct {
	relPath string
	absPath string
	info    fs.FileInfo
	isDir   bool
	isLink  bool
}

// Run walks opts.SourceRoot, hashes and stores every file not matched by an
// exclude pattern, and commits the resulting snapshot.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	release, err := e.Repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	dcontext.GetLogger(ctx).Infof("starting backup of %s for target %s", opts.SourceRoot, opts.Target)

	entries, err := walkSorted(opts.SourceRoot, opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		fileEntries = make([]manifest.FileEntry, len(entries))
		warnings    []Warning
		stats       manifest.Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, we := range entries {
		i, we := i, we
		g.Go(func() error {
			entry, warn, err := e.processEntry(gctx, opts, we)
			if err != nil {
				return fmt.Errorf("%s: %w", we.relPath, err)
			}

			mu.Lock()
			fileEntries[i] = entry
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			if entry.Digest != "" {
				stats.TotalFiles++
				stats.TotalBytes += entry.Size
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Entries that are neither a directory, a symlink, nor a stored file
	// were skipped with a warning and are left out of the manifest.
	kept := fileEntries[:0]
	for _, fe := range fileEntries {
		if fe.Dir || fe.LinkTarget != "" || fe.Digest != "" {
			kept = append(kept, fe)
		}
	}
	fileEntries = kept

	seenDigests := make(map[digest.Digest]bool)
	for _, fe := range fileEntries {
		if fe.Digest == "" {
			continue
		}
		if seenDigests[fe.Digest] {
			stats.DedupedBytes += fe.Size
		} else {
			seenDigests[fe.Digest] = true
			stats.UniqueBytes += fe.Size
		}
	}

	id, err := repository.NextSnapshotID(ctx, e.Repo.Blobs.Driver(), opts.Target, time.Now())
	if err != nil {
		return nil, err
	}

	snap := &manifest.Snapshot{
		SchemaVersion: manifest.SchemaVersion,
		ID:            id,
		Target:        opts.Target,
		SourceRoot:    opts.SourceRoot,
		CreatedAt:     time.Now().UTC(),
		Codec:         opts.Codec,
		Encrypted:     opts.Cipher != nil,
		Entries:       fileEntries,
		Stats:         stats,
	}

	if err := e.Repo.CommitSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return &Report{Snapshot: snap, Warnings: warnings}, nil
}

func (e *Engine) processEntry(ctx context.Context, opts Options, we walkedEntry) (manifest.FileEntry, *Warning, error) {
	if we.isDir {
		return manifest.FileEntry{Path: we.relPath, Dir: true}, nil, nil
	}

	entry := manifest.FileEntry{
		Path:    we.relPath,
		ModTime: we.info.ModTime().UTC().Truncate(time.Second),
		Mode:    uint32(we.info.Mode().Perm()),
	}

	if we.isLink {
		target, err := os.Readlink(we.absPath)
		if err != nil {
			return entry, &Warning{Path: we.relPath, Reason: err.Error()}, nil
		}
		entry.LinkTarget = target
		return entry, nil, nil
	}

	if !we.info.Mode().IsRegular() {
		return entry, &Warning{Path: we.relPath, Reason: "skipped: not a regular file"}, nil
	}

	d, size, warning, err := e.hashWithRetry(we.absPath, we.relPath, we.info)
	if err != nil {
		return entry, nil, err
	}
	entry.Digest = d
	entry.Size = size

	exists, err := e.Repo.Blobs.Has(ctx, d)
	if err != nil {
		return entry, nil, err
	}
	if !exists {
		if err := e.storeBlob(ctx, opts, we.absPath, d); err != nil {
			return entry, nil, err
		}
	}

	return entry, warning, nil
}

// hashWithRetry implements spec's re-hash-on-change rule: if the file's
// mtime or size changed between the pre-hash and post-hash stat, hash it
// once more; if it still changes, keep the post-hash digest and warn.
func (e *Engine) hashWithRetry(absPath, relPath string, preStat fs.FileInfo) (digest.Digest, int64, *Warning, error) {
	d, err := digest.FromFile(absPath)
	if err != nil {
		return "", 0, nil, err
	}

	postStat, err := os.Stat(absPath)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: stat after hash: %v", buterr.ErrIO, err)
	}

	if postStat.ModTime().Equal(preStat.ModTime()) && postStat.Size() == preStat.Size() {
		return d, postStat.Size(), nil, nil
	}

	d2, err := digest.FromFile(absPath)
	if err != nil {
		return "", 0, nil, err
	}

	finalStat, err := os.Stat(absPath)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: stat after retry: %v", buterr.ErrIO, err)
	}

	if finalStat.ModTime().Equal(postStat.ModTime()) && finalStat.Size() == postStat.Size() {
		return d2, finalStat.Size(), nil, nil
	}

	return d2, finalStat.Size(), &Warning{Path: relPath, Reason: "file changed during hashing, kept post-hash digest"}, nil
}

// storeBlob streams absPath's content through the codec and, if enabled,
// the cipher, straight into the blob store: at no point is the whole file
// held in memory, only one streamChunkSize-ish buffer per stage.
func (e *Engine) storeBlob(ctx context.Context, opts Options, absPath string, d digest.Digest) error {
	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", buterr.ErrIO, absPath, err)
	}
	defer f.Close()

	encoded := pipeThrough(func(w io.Writer) error {
		return codec.EncodeStream(opts.Codec, w, f, opts.CodecLevel)
	})
	defer encoded.Close()

	final := io.Reader(encoded)
	if opts.Cipher != nil {
		encrypted := pipeThrough(func(w io.Writer) error {
			return opts.Cipher.EncryptStream(w, encoded)
		})
		defer encrypted.Close()
		final = encrypted
	}

	return e.Repo.Blobs.PutFromReader(ctx, d, final)
}

// pipeThrough runs fn against the write side of a new pipe in its own
// goroutine and returns the read side, so codec/cipher stages chain
// without any stage buffering its full output.
func pipeThrough(fn func(io.Writer) error) *io.PipeReader {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(fn(pw))
	}()
	return pr
}

// walkSorted produces a deterministic, lexicographically-ordered walk of
// root, pruning any path matched by excludePatterns. A trailing slash on a
// pattern prunes the whole subtree instead of matching individual files.
func walkSorted(root string, excludePatterns []string) ([]walkedEntry, error) {
	var entries []walkedEntry

	var visit func(dir, relDir string) error
	visit = func(dir, relDir string) error {
		children, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("%w: read dir %s: %v", buterr.ErrIO, dir, err)
		}

		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Name()
		}
		sort.Strings(names)

		for _, name := range names {
			absPath := filepath.Join(dir, name)
			relPath := name
			if relDir != "" {
				relPath = path.Join(relDir, name)
			}

			info, err := os.Lstat(absPath)
			if err != nil {
				return fmt.Errorf("%w: lstat %s: %v", buterr.ErrIO, absPath, err)
			}

			isDir := info.IsDir()
			if matchExcluded(relPath, isDir, excludePatterns) {
				continue
			}

			isLink := info.Mode()&os.ModeSymlink != 0

			entries = append(entries, walkedEntry{
				relPath: relPath,
				absPath: absPath,
				info:    info,
				isDir:   isDir,
				isLink:  isLink,
			})

			if isDir && !isLink {
				if err := visit(absPath, relPath); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := visit(root, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

// matchExcluded reports whether relPath should be pruned. A pattern
// ending in "/" prunes the matched directory's entire subtree; any other
// pattern is matched with path.Match against both the full relative path
// and the base name, so "*.tmp" excludes temp files at any depth.
func matchExcluded(relPath string, isDir bool, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if isDir {
				if ok, _ := path.Match(dirPattern, relPath); ok {
					return true
				}
				if ok, _ := path.Match(dirPattern, path.Base(relPath)); ok {
					return true
				}
			}
			if strings.HasPrefix(relPath, dirPattern+"/") {
				return true
			}
			continue
		}

		if ok, _ := path.Match(p, relPath); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(relPath)); ok {
			return true
		}
	}
	return false
}
