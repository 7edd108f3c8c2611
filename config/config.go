// Package config loads the CLI's configuration file: global settings plus
// one or more named backup targets, adapted from the teacher's
// configuration.Configuration YAML schema and its environment-variable
// override for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/butnext/butnext/codec"
	"github.com/butnext/butnext/internal/buterr"
)

// PassphraseEnvVar is the environment variable the repository passphrase
// is read from; the configuration file carries no passphrase.
const PassphraseEnvVar = "BUTNEXT_PASSPHRASE"

// Settings holds the repository-wide defaults.
type Settings struct {
	// RepoPath is the repository's root directory on disk.
	RepoPath string `yaml:"repo_path"`

	// IntervalSeconds configures the watch subcommand's re-invocation
	// period. Zero disables scheduled backups.
	IntervalSeconds int `yaml:"interval_seconds,omitempty"`

	// FilenameTemplate supports %name%, %date%, %time% placeholders for
	// human-facing reporting; it does not affect the snapshot id format.
	FilenameTemplate string `yaml:"filename_template,omitempty"`

	// Codec is the default compression codec for targets that don't
	// override it.
	Codec codec.Codec `yaml:"codec"`

	// CodecLevel is the default codec level.
	CodecLevel int `yaml:"codec_level,omitempty"`

	// Encrypt enables repository-wide encryption. If true,
	// PassphraseEnvVar must be set.
	Encrypt bool `yaml:"encrypt,omitempty"`

	// MaxSnapshots caps the number of retained snapshots per target,
	// applied after an explicit prune --keep.
	MaxSnapshots int `yaml:"max_snapshots,omitempty"`
}

// Target describes one named backup configuration.
type Target struct {
	From            string   `yaml:"from"`
	Dest            string   `yaml:"dest,omitempty"`
	ExcludePatterns []string `yaml:"exclude,omitempty"`

	// Codec overrides Settings.Codec for this target when non-empty.
	Codec codec.Codec `yaml:"codec,omitempty"`
}

// Config is the parsed configuration file.
type Config struct {
	Settings Settings          `yaml:"settings"`
	Backup   map[string]Target `yaml:"backup"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config %s: %v", buterr.ErrConfig, path, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %v", buterr.ErrConfig, path, err)
	}

	if !c.Settings.Codec.Valid() {
		if c.Settings.Codec == "" {
			c.Settings.Codec = codec.None
		} else {
			return nil, fmt.Errorf("%w: unknown codec %q in settings", buterr.ErrConfig, c.Settings.Codec)
		}
	}

	for name, t := range c.Backup {
		if t.Codec != "" && !t.Codec.Valid() {
			return nil, fmt.Errorf("%w: unknown codec %q for target %q", buterr.ErrConfig, t.Codec, name)
		}
		if t.From == "" {
			return nil, fmt.Errorf("%w: target %q missing \"from\"", buterr.ErrConfig, name)
		}
	}

	return &c, nil
}

// CodecFor resolves the effective codec for target, falling back to the
// global default.
func (c *Config) CodecFor(targetName string) codec.Codec {
	if t, ok := c.Backup[targetName]; ok && t.Codec != "" {
		return t.Codec
	}
	return c.Settings.Codec
}

// ResolvePassphrase returns the repository passphrase from the
// environment. It fails with ErrConfig if encryption is enabled but no
// passphrase is available, matching the spec's requirement that silent
// unencrypted fallback never happens.
func (c *Config) ResolvePassphrase() ([]byte, error) {
	passphrase := os.Getenv(PassphraseEnvVar)
	if c.Settings.Encrypt && passphrase == "" {
		return nil, fmt.Errorf("%w: encrypt is true but %s is not set", buterr.ErrConfig, PassphraseEnvVar)
	}
	return []byte(passphrase), nil
}
