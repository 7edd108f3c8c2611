// Package buterr defines the sentinel error kinds shared across the
// backup/restore storage engine. Call sites wrap these with contextual
// path or digest information via fmt.Errorf's %w verb; callers recover the
// kind with errors.Is.
package buterr

import "errors"

var (
	// ErrIO marks a filesystem read/write failure.
	ErrIO = errors.New("io error")

	// ErrConfig marks malformed or inconsistent configuration.
	ErrConfig = errors.New("configuration error")

	// ErrCorruptBlob marks a blob whose bytes cannot be decoded or
	// decompressed.
	ErrCorruptBlob = errors.New("corrupt blob")

	// ErrIntegrity marks a plaintext that does not hash to its expected
	// digest.
	ErrIntegrity = errors.New("integrity failure")

	// ErrAuth marks an authenticated-decryption tag mismatch.
	ErrAuth = errors.New("authentication failure")

	// ErrMissingBlob marks a manifest reference to a digest absent from
	// the blob store.
	ErrMissingBlob = errors.New("missing blob")

	// ErrUnsupportedManifest marks a manifest with an unknown or unreadable
	// schema.
	ErrUnsupportedManifest = errors.New("unsupported manifest")

	// ErrRepositoryBusy marks a repository lock acquisition timeout.
	ErrRepositoryBusy = errors.New("repository busy")

	// ErrCancelled marks a user-requested interruption.
	ErrCancelled = errors.New("cancelled")
)
