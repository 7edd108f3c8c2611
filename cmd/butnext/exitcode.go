package main

import (
	"errors"

	"github.com/butnext/butnext/internal/buterr"
)

const (
	exitCodeOK = iota
	exitCodeUsage
	exitCodeConfig
	exitCodeRepository
	exitCodeIntegrity
	exitCodeAuth
)

// exitCode maps a returned error to the process exit code spec'd for the
// CLI: 0 success, 1 usage, 2 config, 3 repository, 4 integrity, 5 auth.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCodeOK
	case errors.Is(err, buterr.ErrConfig):
		return exitCodeConfig
	case errors.Is(err, buterr.ErrIntegrity):
		return exitCodeIntegrity
	case errors.Is(err, buterr.ErrAuth):
		return exitCodeAuth
	case errors.Is(err, buterr.ErrIO),
		errors.Is(err, buterr.ErrRepositoryBusy),
		errors.Is(err, buterr.ErrMissingBlob),
		errors.Is(err, buterr.ErrUnsupportedManifest),
		errors.Is(err, buterr.ErrCorruptBlob),
		errors.Is(err, buterr.ErrCancelled):
		return exitCodeRepository
	default:
		return exitCodeUsage
	}
}
