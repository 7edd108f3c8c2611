// Package prune implements snapshot retention and the mark-and-sweep
// garbage collection that reclaims blobs no surviving snapshot
// references, generalized from the teacher's MarkAndSweep: instead of
// descending a manifest reference graph, it unions the flat digest sets of
// every surviving snapshot.
package prune

import (
	"context"
	"sort"

	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/dcontext"
	"github.com/butnext/butnext/repository"
)

// Options configures one prune run.
type Options struct {
	Target string
	// Keep retains the Keep most recent snapshots for Target; the rest are
	// deleted.
	Keep int
}

// Report summarizes a completed prune run.
type Report struct {
	DeletedSnapshots []string      `json:"deleted_snapshots"`
	DeletedBlobs     []digest.Digest `json:"deleted_blobs"`
	ReclaimedBytes   int64         `json:"reclaimed_bytes"`
}

// Pruner runs retention and garbage collection against a single
// repository.
type Pruner struct {
	Repo *repository.Repository
}

// New returns a Pruner backed by repo.
func New(repo *repository.Repository) *Pruner {
	return &Pruner{Repo: repo}
}

// Run selects the snapshots for opts.Target beyond the most recent
// opts.Keep, deletes their manifests, then sweeps any blob no longer
// referenced by a surviving manifest of any target.
//
// Ordering matters for crash safety: manifests are deleted first, then
// unreferenced blobs. A crash between the two leaves orphan blobs but no
// dangling references; a later prune or verify run sweeps them.
func (p *Pruner) Run(ctx context.Context, opts Options) (*Report, error) {
	release, err := p.Repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	toDelete, err := p.selectForDeletion(ctx, opts)
	if err != nil {
		return nil, err
	}

	deletedDigests := make(map[digest.Digest]struct{})
	for _, id := range toDelete {
		snap, err := p.Repo.LoadSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		for d := range snap.Digests() {
			deletedDigests[d] = struct{}{}
		}
		if err := p.Repo.DeleteSnapshot(ctx, id); err != nil {
			return nil, err
		}
	}

	report := &Report{DeletedSnapshots: toDelete}
	if len(deletedDigests) == 0 {
		return report, nil
	}

	reachable, err := p.reachableDigests(ctx)
	if err != nil {
		return report, err
	}

	var unreferenced []digest.Digest
	for d := range deletedDigests {
		if _, live := reachable[d]; !live {
			unreferenced = append(unreferenced, d)
		}
	}
	sort.Slice(unreferenced, func(i, j int) bool { return unreferenced[i] < unreferenced[j] })

	for _, d := range unreferenced {
		size, err := p.Repo.Blobs.Size(ctx, d)
		if err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warnf("could not size blob %s before delete", d)
		} else {
			report.ReclaimedBytes += size
		}
		if err := p.Repo.Blobs.Delete(ctx, d); err != nil {
			return report, err
		}
		report.DeletedBlobs = append(report.DeletedBlobs, d)
	}

	return report, nil
}

func (p *Pruner) selectForDeletion(ctx context.Context, opts Options) ([]string, error) {
	ids, err := p.Repo.ListSnapshotsForTarget(ctx, opts.Target)
	if err != nil {
		return nil, err
	}
	if opts.Keep < 0 {
		opts.Keep = 0
	}
	if len(ids) <= opts.Keep {
		return nil, nil
	}
	// ids is chronological ascending; drop everything but the last Keep.
	cut := len(ids) - opts.Keep
	return append([]string(nil), ids[:cut]...), nil
}

// reachableDigests unions the digest sets of every manifest still present
// after deletion, across all targets, mirroring the teacher's mark phase
// over the full set of surviving manifests.
func (p *Pruner) reachableDigests(ctx context.Context) (map[digest.Digest]struct{}, error) {
	ids, err := p.Repo.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	reachable := make(map[digest.Digest]struct{})
	for _, id := range ids {
		snap, err := p.Repo.LoadSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		for d := range snap.Digests() {
			reachable[d] = struct{}{}
		}
	}
	return reachable, nil
}
