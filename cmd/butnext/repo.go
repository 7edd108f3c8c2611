package main

import (
	"fmt"

	"github.com/butnext/butnext/config"
	"github.com/butnext/butnext/crypto"
	"github.com/butnext/butnext/digest"
	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/repository"
	"github.com/butnext/butnext/storagedriver/filesystem"
)

func openRepository(c *config.Config) (*repository.Repository, error) {
	if c.Settings.RepoPath == "" {
		return nil, fmt.Errorf("%w: settings.repo_path is not set", buterr.ErrConfig)
	}
	driver, err := filesystem.New(c.Settings.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open repository at %s: %v", buterr.ErrIO, c.Settings.RepoPath, err)
	}
	return repository.Open(driver), nil
}

// resolveCipher builds the repository's Cipher from the configured
// passphrase, or returns nil if encryption is disabled.
func resolveCipher(c *config.Config) (*crypto.Cipher, error) {
	if !c.Settings.Encrypt {
		return nil, nil
	}
	passphrase, err := c.ResolvePassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.New(digest.DeriveKey(passphrase))
}
