// Package repository owns the on-disk directory layout the backup targets
// share: the snapshots/ and blobs/ subtrees, and the exclusive-writer lock
// that serializes backup/prune against each other.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/butnext/butnext/blobstore"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/dcontext"
	"github.com/butnext/butnext/manifest"
	storagedriver "github.com/butnext/butnext/storagedriver"
)

// DefaultLockTimeout bounds how long Repository.Lock waits for a
// concurrent writer to finish before failing with ErrRepositoryBusy.
const DefaultLockTimeout = 30 * time.Second

// Repository is the unit of consistency for the on-disk state of every
// target backed up into it: one directory containing snapshots/ and blobs/.
type Repository struct {
	driver storagedriver.StorageDriver
	Blobs  *blobstore.BlobStore
}

// Open wraps driver as a Repository. It does not create any on-disk state;
// call Init for a brand-new repository.
func Open(driver storagedriver.StorageDriver) *Repository {
	return &Repository{driver: driver, Blobs: blobstore.New(driver)}
}

// Init prepares an empty repository: an empty snapshots/ list and blobs/
// tree are implicit in storagedriver.StorageDriver's on-demand directory
// creation, so Init only has to verify the root is usable.
func (r *Repository) Init(ctx context.Context) error {
	ids, err := manifest.ListIDs(ctx, r.driver)
	if err != nil {
		return err
	}
	dcontext.GetLogger(ctx).Infof("initialized repository (%d existing snapshots)", len(ids))
	return nil
}

// Lock acquires the repository's exclusive writer lock, used by backup and
// prune. The returned release function must be called (typically deferred)
// to drop the lock; it uses a detached context so the lock is always
// released even if ctx is already cancelled.
func (r *Repository) Lock(ctx context.Context) (release func(), err error) {
	if err := acquireLock(ctx, r.driver, DefaultLockTimeout); err != nil {
		return nil, err
	}
	return func() {
		releaseCtx := dcontext.DetachedContext(ctx)
		if err := releaseLock(releaseCtx, r.driver); err != nil {
			dcontext.GetLogger(releaseCtx).WithError(err).Warn("failed to release repository lock")
		}
	}, nil
}

// CommitSnapshot persists a completed Snapshot's manifest. Blobs must
// already have been written to r.Blobs before calling this: manifest write
// is the final, durability-defining step of a backup.
func (r *Repository) CommitSnapshot(ctx context.Context, s *manifest.Snapshot) error {
	if err := manifest.Store(ctx, r.driver, s); err != nil {
		return err
	}
	return nil
}

// LoadSnapshot loads a single persisted manifest by id.
func (r *Repository) LoadSnapshot(ctx context.Context, id string) (*manifest.Snapshot, error) {
	return manifest.Load(ctx, r.driver, id)
}

// ListSnapshots returns every snapshot id in the repository, sorted
// chronologically.
func (r *Repository) ListSnapshots(ctx context.Context) ([]string, error) {
	return manifest.ListIDs(ctx, r.driver)
}

// ListSnapshotsForTarget returns the ids of target's snapshots, in
// chronological order.
func (r *Repository) ListSnapshotsForTarget(ctx context.Context, target string) ([]string, error) {
	return manifest.ListByTarget(ctx, r.driver, target)
}

// DeleteSnapshot removes a persisted manifest. Callers are responsible for
// the prune ordering invariant: manifests must be deleted before any blob
// they exclusively referenced.
func (r *Repository) DeleteSnapshot(ctx context.Context, id string) error {
	return manifest.Delete(ctx, r.driver, id)
}

// NextSnapshotID computes the next id for target at the current time,
// breaking same-second collisions with the teacher's style of numeric
// suffix disambiguation.
func NextSnapshotID(ctx context.Context, driver storagedriver.StorageDriver, target string, now time.Time) (string, error) {
	base := fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), target)

	existing, err := manifest.ListByTarget(ctx, driver, target)
	if err != nil {
		return "", err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	if _, taken := seen[base]; !taken {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, taken := seen[candidate]; !taken {
			return candidate, nil
		}
	}
}

// Busy reports whether err indicates the repository lock could not be
// acquired.
func Busy(err error) bool {
	return errors.Is(err, buterr.ErrRepositoryBusy)
}
