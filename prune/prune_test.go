package prune

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/butnext/butnext/backup"
	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/crypto"
	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/repository"
	"github.com/butnext/butnext/storagedriver/inmemory"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func backupOnce(t *testing.T, ctx context.Context, repo *repository.Repository, target, content string) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, src, "a.txt", content)
	report, err := backup.New(repo).Run(ctx, backup.Options{Target: target, SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	return report.Snapshot.ID
}

func TestPruneKeepsMostRecentAndDeletesRest(t *testing.T) {
	ctx := context.Background()
	repo := repository.Open(inmemory.New())

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, backupOnce(t, ctx, repo, "home", "content"))
	}

	report, err := New(repo).Run(ctx, Options{Target: "home", Keep: 2})
	require.NoError(t, err)
	require.Len(t, report.DeletedSnapshots, 2)
	require.ElementsMatch(t, ids[:2], report.DeletedSnapshots)

	remaining, err := repo.ListSnapshotsForTarget(ctx, "home")
	require.NoError(t, err)
	require.ElementsMatch(t, ids[2:], remaining)
}

func TestPruneReclaimsUnreferencedBlobsOnly(t *testing.T) {
	ctx := context.Background()
	repo := repository.Open(inmemory.New())

	src1 := t.TempDir()
	writeFile(t, src1, "unique-to-old.txt", "only in old snapshot")
	r1, err := backup.New(repo).Run(ctx, backup.Options{Target: "home", SourceRoot: src1, Codec: codec.None})
	require.NoError(t, err)
	oldDigest := r1.Snapshot.Entries[0].Digest

	src2 := t.TempDir()
	writeFile(t, src2, "shared.txt", "kept across snapshots")
	_, err = backup.New(repo).Run(ctx, backup.Options{Target: "home", SourceRoot: src2, Codec: codec.None})
	require.NoError(t, err)

	src3 := t.TempDir()
	writeFile(t, src3, "shared.txt", "kept across snapshots")
	_, err = backup.New(repo).Run(ctx, backup.Options{Target: "home", SourceRoot: src3, Codec: codec.None})
	require.NoError(t, err)

	report, err := New(repo).Run(ctx, Options{Target: "home", Keep: 2})
	require.NoError(t, err)
	require.Contains(t, report.DeletedBlobs, oldDigest)

	has, err := repo.Blobs.Has(ctx, oldDigest)
	require.NoError(t, err)
	require.False(t, has)
}

func TestPruneKeepGreaterThanCountDeletesNothing(t *testing.T) {
	ctx := context.Background()
	repo := repository.Open(inmemory.New())
	backupOnce(t, ctx, repo, "home", "x")

	report, err := New(repo).Run(ctx, Options{Target: "home", Keep: 10})
	require.NoError(t, err)
	require.Empty(t, report.DeletedSnapshots)
}

func TestVerifyDetectsHealthyRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.Open(inmemory.New())
	backupOnce(t, ctx, repo, "home", "healthy content")

	report, err := Verify(ctx, repo)
	require.NoError(t, err)
	require.Equal(t, 1, report.BlobsChecked)
	require.Empty(t, report.IntegrityFailures)
	require.Empty(t, report.UnreachableBlobs)
}

func TestVerifyDetectsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	driver := inmemory.New()
	repo := repository.Open(driver)
	r1, err := backup.New(repo).Run(ctx, backup.Options{Target: "home", SourceRoot: t.TempDir(), Codec: codec.None})
	require.NoError(t, err)
	_ = r1

	src := t.TempDir()
	writeFile(t, src, "a.txt", "corrupt me")
	r2, err := backup.New(repo).Run(ctx, backup.Options{Target: "home", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	d := r2.Snapshot.Entries[0].Digest

	require.NoError(t, repo.Blobs.Delete(ctx, d))
	require.NoError(t, repo.Blobs.Put(ctx, d, []byte("this does not match the digest")))

	report, err := Verify(ctx, repo)
	require.NoError(t, err)
	require.NotEmpty(t, report.IntegrityFailures)
}

// TestVerifyEncryptedRepositoryReportsNoFalseFailures guards against the
// regression where a blob's codec hint is unavailable because it belongs
// only to encrypted snapshots: Verify must skip the hash-compare for it
// rather than decode-as-None and hash the ciphertext against the plaintext
// digest, which would flag every healthy blob in an encrypted repository.
func TestVerifyEncryptedRepositoryReportsNoFalseFailures(t *testing.T) {
	ctx := context.Background()
	repo := repository.Open(inmemory.New())

	cipher, err := crypto.New(digest.DeriveKey([]byte("passphrase")))
	require.NoError(t, err)

	src := t.TempDir()
	writeFile(t, src, "a.txt", "encrypted content")
	_, err = backup.New(repo).Run(ctx, backup.Options{
		Target: "home", SourceRoot: src, Codec: codec.General, CodecLevel: 3, Cipher: cipher,
	})
	require.NoError(t, err)

	report, err := Verify(ctx, repo)
	require.NoError(t, err)
	require.Equal(t, 1, report.BlobsChecked)
	require.Empty(t, report.IntegrityFailures)
	require.Empty(t, report.UnreachableBlobs)
}
