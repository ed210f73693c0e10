package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pam-mount/volmount/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "volmount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
debug: true
cmtab_path: /etc/cmtab
cryptsetup_path: /usr/sbin/cryptsetup
mount_helpers:
  cifs:
    - mount.cifs
    - //%(SERVER)/%(VOLUME)
    - "%(MNTPT)"
unmount_helpers:
  cifs:
    - umount
    - "%(MNTPT)"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "/usr/sbin/cryptsetup", cfg.CryptsetupPath)

	argv, ok := cfg.MountTemplate(volume.KindCIFS)
	require.True(t, ok)
	assert.Equal(t, []string{"mount.cifs", "//%(SERVER)/%(VOLUME)", "%(MNTPT)"}, argv)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "bogus_field: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptyMountTemplate(t *testing.T) {
	path := writeConfig(t, "mount_helpers:\n  local: []\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultHasConventionalPaths(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/etc/cmtab", cfg.CmtabPath)
	assert.Equal(t, "cryptsetup", cfg.CryptsetupPath)
	_, ok := cfg.MountTemplate(volume.KindNFS)
	assert.False(t, ok)
}
