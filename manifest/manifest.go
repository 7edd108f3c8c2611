// Package manifest defines the Snapshot schema persisted per backup, and
// its JSON (de)serialization. A Snapshot is the sole source of truth for
// what a backup contains; the blob store holds no reverse index back to
// the manifests that reference it.
package manifest

import (
	"time"

	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/digest"
)

// SchemaVersion is the only manifest schema this package understands. Load
// rejects any other value with ErrUnsupportedManifest.
const SchemaVersion = 1

// FileEntry describes one file, directory, or symlink captured in a
// Snapshot.
type FileEntry struct {
	// Path is relative to the snapshot's source root, forward-slash
	// separated, never absolute and never containing "..".
	Path string `json:"path"`

	// Digest identifies the stored blob's plaintext content. Absent (empty)
	// for directories and symlinks.
	Digest digest.Digest `json:"digest,omitempty"`

	// Size is the plaintext size in bytes. Absent for directories.
	Size int64 `json:"size,omitempty"`

	// ModTime is the file's last-modified time, UTC, second resolution.
	ModTime time.Time `json:"mod_time"`

	// Mode holds the POSIX permission bits (mask 0o777). Setuid, setgid and
	// sticky bits are not recorded.
	Mode uint32 `json:"mode"`

	// LinkTarget holds the symlink target, set only when this entry is a
	// symbolic link. When set, Digest and Size are absent.
	LinkTarget string `json:"link_target,omitempty"`

	// Dir marks a directory entry. Directory entries carry no digest.
	Dir bool `json:"dir,omitempty"`
}

// Stats carries the aggregate counters computed for a Snapshot during
// backup.
type Stats struct {
	TotalFiles   int   `json:"total_files"`
	TotalBytes   int64 `json:"total_bytes"`
	UniqueBytes  int64 `json:"unique_bytes"`
	DedupedBytes int64 `json:"deduped_bytes"`
}

// Snapshot is the immutable, persisted record of one backup run.
type Snapshot struct {
	SchemaVersion int `json:"schema_version"`

	// ID is formatted YYYYMMDD-HHMMSS-<target>, monotonic at one-second
	// resolution per target.
	ID string `json:"id"`

	// Target is the user-labeled backup configuration name this snapshot
	// belongs to.
	Target string `json:"target"`

	// SourceRoot is the absolute path on the origin host that was walked.
	SourceRoot string `json:"source_root"`

	// CreatedAt is the snapshot's creation timestamp, UTC.
	CreatedAt time.Time `json:"created_at"`

	// Codec is the compression codec applied to every blob this snapshot
	// references.
	Codec codec.Codec `json:"codec"`

	// Encrypted records whether blobs this snapshot references are
	// encrypted. Encryption is a whole-repository property decided at
	// first write.
	Encrypted bool `json:"encrypted"`

	// Entries is ordered in walk order: deterministic, lexicographic by
	// path.
	Entries []FileEntry `json:"entries"`

	Stats Stats `json:"stats"`
}

// Digests returns the set of distinct, non-empty digests this snapshot
// references, used by prune's mark phase.
func (s *Snapshot) Digests() map[digest.Digest]struct{} {
	set := make(map[digest.Digest]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		if e.Digest != "" {
			set[e.Digest] = struct{}{}
		}
	}
	return set
}

// ByPath indexes Entries by relative path, for diff and restore's selector
// matching.
func (s *Snapshot) ByPath() map[string]FileEntry {
	index := make(map[string]FileEntry, len(s.Entries))
	for _, e := range s.Entries {
		index[e.Path] = e
	}
	return index
}
