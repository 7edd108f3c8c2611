package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/butnext/butnext/internal/buterr"
	storagedriver "github.com/butnext/butnext/storagedriver"
)

const snapshotsRoot = "snapshots"

// Marshal serializes s to JSON with deterministic key ordering: struct
// field order is fixed by the encoding/json emission order declared on
// Snapshot and FileEntry, so two processes serializing the same value
// produce byte-identical output.
func Marshal(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("%w: marshal snapshot %s: %v", buterr.ErrIO, s.ID, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal parses raw JSON into a Snapshot, rejecting unknown fields and
// any schema version other than the one this package understands.
func Unmarshal(raw []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", buterr.ErrUnsupportedManifest, err)
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d", buterr.ErrUnsupportedManifest, s.SchemaVersion, SchemaVersion)
	}
	return &s, nil
}

func snapshotPath(id string) string {
	return path.Join(snapshotsRoot, id+".json")
}

// Store persists a Snapshot's manifest atomically: serialize, write to a
// temp path (the driver renames it into place internally), so a reader
// never observes a partially-written manifest.
func Store(ctx context.Context, driver storagedriver.StorageDriver, s *Snapshot) error {
	raw, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := driver.PutContent(ctx, snapshotPath(s.ID), raw); err != nil {
		return fmt.Errorf("%w: write manifest %s: %v", buterr.ErrIO, s.ID, err)
	}
	return nil
}

// Load retrieves and parses the manifest for snapshot id.
func Load(ctx context.Context, driver storagedriver.StorageDriver, id string) (*Snapshot, error) {
	raw, err := driver.GetContent(ctx, snapshotPath(id))
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: snapshot %s", buterr.ErrUnsupportedManifest, id)
		}
		return nil, fmt.Errorf("%w: read manifest %s: %v", buterr.ErrIO, id, err)
	}
	return Unmarshal(raw)
}

// Delete removes the persisted manifest for snapshot id.
func Delete(ctx context.Context, driver storagedriver.StorageDriver, id string) error {
	if err := driver.Delete(ctx, snapshotPath(id)); err != nil {
		return fmt.Errorf("%w: delete manifest %s: %v", buterr.ErrIO, id, err)
	}
	return nil
}

// ListIDs returns every persisted snapshot id, sorted lexicographically
// (which is also chronological, since ids begin with YYYYMMDD-HHMMSS).
func ListIDs(ctx context.Context, driver storagedriver.StorageDriver) ([]string, error) {
	entries, err := driver.List(ctx, snapshotsRoot)
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list snapshots: %v", buterr.ErrIO, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		base := path.Base(e)
		ids = append(ids, base[:len(base)-len(".json")])
	}
	sort.Strings(ids)
	return ids, nil
}

// ListByTarget returns, in chronological order, the ids of snapshots
// belonging to target: ids of the form YYYYMMDD-HHMMSS-<target>, with or
// without a numeric "-N" same-second collision suffix.
func ListByTarget(ctx context.Context, driver storagedriver.StorageDriver, target string) ([]string, error) {
	all, err := ListIDs(ctx, driver)
	if err != nil {
		return nil, err
	}

	const stampLen = len("20060102-150405-")
	var matched []string
	for _, id := range all {
		if len(id) <= stampLen {
			continue
		}
		rest := id[stampLen:]
		if rest != target {
			n, ok := strings.CutPrefix(rest, target+"-")
			if !ok || n == "" || strings.Trim(n, "0123456789") != "" {
				continue
			}
		}
		matched = append(matched, id)
	}
	return matched, nil
}
