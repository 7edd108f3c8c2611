package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/butnext/butnext/internal/buterr"
)

func TestExitCodeMapsSentinels(t *testing.T) {
	require.Equal(t, exitCodeOK, exitCode(nil))
	require.Equal(t, exitCodeConfig, exitCode(fmt.Errorf("wrap: %w", buterr.ErrConfig)))
	require.Equal(t, exitCodeRepository, exitCode(fmt.Errorf("wrap: %w", buterr.ErrIO)))
	require.Equal(t, exitCodeRepository, exitCode(fmt.Errorf("wrap: %w", buterr.ErrRepositoryBusy)))
	require.Equal(t, exitCodeIntegrity, exitCode(fmt.Errorf("wrap: %w", buterr.ErrIntegrity)))
	require.Equal(t, exitCodeAuth, exitCode(fmt.Errorf("wrap: %w", buterr.ErrAuth)))
	require.Equal(t, exitCodeUsage, exitCode(fmt.Errorf("some unrelated error")))
}
