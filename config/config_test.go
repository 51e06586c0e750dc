package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[settings]
interval = 600
compression = "high-ratio"
zstd_level = 5
encrypt = true
repo_path = ".but"

[backup.home]
from = ["/home/user"]
dest = "backup"
exclude = ["*.tmp", "node_modules/"]
`

func writeConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "but-next.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesSettingsAndTargets(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 600, cfg.Settings.Interval)
	assert.True(t, cfg.Settings.Encrypt)
	require.Contains(t, cfg.Backup, "home")
	assert.Equal(t, []string{"/home/user"}, cfg.Backup["home"].From)
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsNoTargets(t *testing.T) {
	cfg := &Config{Settings: Settings{Interval: 1, ZstdLevel: 3}}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	cfg := &Config{
		Settings: Settings{Interval: 0, ZstdLevel: 3},
		Backup:   map[string]BackupTarget{"a": {From: []string{"/x"}}},
	}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadZstdLevel(t *testing.T) {
	cfg := &Config{
		Settings: Settings{Interval: 1, ZstdLevel: 30},
		Backup:   map[string]BackupTarget{"a": {From: []string{"/x"}}},
	}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsEmptyFrom(t *testing.T) {
	cfg := &Config{
		Settings: Settings{Interval: 1, ZstdLevel: 3},
		Backup:   map[string]BackupTarget{"a": {}},
	}
	assert.Error(t, Validate(cfg))
}

func TestExpandFilenameSubstitutesPlaceholders(t *testing.T) {
	got := ExpandFilename("%name%-%date%-%time%", "home", "20260101", "120000", "20260101-120000")
	assert.Equal(t, "home-20260101-120000", got)
}
