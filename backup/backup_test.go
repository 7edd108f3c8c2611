package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/repository"
	"github.com/butnext/butnext/storagedriver/inmemory"
)

func newTestRepo() *repository.Repository {
	return repository.Open(inmemory.New())
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestBackupEmptyTree(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	require.Empty(t, report.Snapshot.Entries)
	require.Equal(t, 0, report.Snapshot.Stats.TotalFiles)
}

func TestBackupSingleFile(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", "hello")
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Entries, 1)
	require.Equal(t, "a.txt", report.Snapshot.Entries[0].Path)
	require.Equal(t, int64(5), report.Snapshot.Entries[0].Size)

	has, err := repo.Blobs.Has(ctx, report.Snapshot.Entries[0].Digest)
	require.NoError(t, err)
	require.True(t, has)
}

func TestBackupDuplicateContentProducesOneBlob(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", "x")
	writeFile(t, src, "b.txt", "x")
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Entries, 2)
	require.Equal(t, report.Snapshot.Entries[0].Digest, report.Snapshot.Entries[1].Digest)
	require.Equal(t, int64(1), report.Snapshot.Stats.UniqueBytes)
	require.Equal(t, int64(1), report.Snapshot.Stats.DedupedBytes)
}

func TestSecondBackupOfUnchangedTreeAddsNoBlobs(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", "stable content")
	repo := newTestRepo()

	r1, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.General, CodecLevel: 3})
	require.NoError(t, err)

	r2, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.General, CodecLevel: 3})
	require.NoError(t, err)

	require.Equal(t, r1.Snapshot.Entries[0].Digest, r2.Snapshot.Entries[0].Digest)
	require.NotEqual(t, r1.Snapshot.ID, r2.Snapshot.ID)
}

func TestBackupExcludesMatchingFiles(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "keep.txt", "keep")
	writeFile(t, src, "skip.tmp", "skip")
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{
		Target:          "t",
		SourceRoot:      src,
		ExcludePatterns: []string{"*.tmp"},
		Codec:           codec.None,
	})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Entries, 1)
	require.Equal(t, "keep.txt", report.Snapshot.Entries[0].Path)
}

func TestBackupExcludesDirectorySubtree(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "keep/a.txt", "a")
	writeFile(t, src, "node_modules/pkg/index.js", "js")
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{
		Target:          "t",
		SourceRoot:      src,
		ExcludePatterns: []string{"node_modules/"},
		Codec:           codec.None,
	})
	require.NoError(t, err)

	var paths []string
	for _, e := range report.Snapshot.Entries {
		paths = append(paths, e.Path)
	}
	require.NotContains(t, paths, "node_modules")
	for _, p := range paths {
		require.NotContains(t, p, "node_modules")
	}
}

func TestBackupCapturesDirectoriesAndSymlinks(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "dir/a.txt", "a")
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "dir", "link")))
	repo := newTestRepo()

	report, err := New(repo).Run(ctx, Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)

	byPath := report.Snapshot.ByPath()
	require.True(t, byPath["dir"].Dir)
	require.Equal(t, "a.txt", byPath["dir/link"].LinkTarget)
}
