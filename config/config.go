// Package config loads the operator-level YAML configuration this
// program owns: helper argv templates, binary paths, and the debug
// flag. It is deliberately narrower than the per-user XML overlay
// system named in the source material and left as an external
// collaborator — see Loader below. Shaped after
// barnettlynn-nfctools/sdmconfig/internal/config/config.go's
// Load/Validate split, the corpus's own YAML-config-with-validation
// pattern.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pam-mount/volmount/volume"
)

// Config is the operator-level configuration: how to invoke each
// volume kind's mount/unmount helpers, where the supporting binaries
// live, and whether verbose diagnostics are on.
type Config struct {
	Debug bool `yaml:"debug"`

	CmtabPath string `yaml:"cmtab_path"`
	SmtabPath string `yaml:"smtab_path"`

	CryptsetupPath string `yaml:"cryptsetup_path"`
	LosetupPath    string `yaml:"losetup_path"`
	FsckPath       string `yaml:"fsck_path"`
	Fd0sshPath     string `yaml:"fd0ssh_path"`

	MountHelpers   map[volume.Kind][]string `yaml:"mount_helpers"`
	UnmountHelpers map[volume.Kind][]string `yaml:"unmount_helpers"`
}

// Load reads and validates path as a Config document.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with the conventional binary paths and an
// empty helper table; callers typically decode a document on top of
// this.
func Default() *Config {
	return &Config{
		CmtabPath:      "/etc/cmtab",
		CryptsetupPath: "cryptsetup",
		LosetupPath:    "losetup",
		FsckPath:       "fsck",
		Fd0sshPath:     "fd0ssh",
		MountHelpers:   map[volume.Kind][]string{},
		UnmountHelpers: map[volume.Kind][]string{},
	}
}

// Validate checks that every declared kind in MountHelpers also has a
// non-empty argv template and that required binary paths are set.
func (c *Config) Validate() error {
	if c.CmtabPath == "" {
		return fmt.Errorf("config: cmtab_path is required")
	}
	if c.CryptsetupPath == "" {
		return fmt.Errorf("config: cryptsetup_path is required")
	}
	for kind, argv := range c.MountHelpers {
		if len(argv) == 0 {
			return fmt.Errorf("config: mount_helpers[%s] has an empty argv template", kind)
		}
	}
	return nil
}

// MountTemplate returns the argv template sequence configured for
// kind's mount helper, or false if none is configured.
func (c *Config) MountTemplate(kind volume.Kind) ([]string, bool) {
	argv, ok := c.MountHelpers[kind]
	return argv, ok
}

// UnmountTemplate returns the argv template sequence configured for
// kind's unmount helper, or false if none is configured.
func (c *Config) UnmountTemplate(kind volume.Kind) ([]string, bool) {
	argv, ok := c.UnmountHelpers[kind]
	return argv, ok
}

