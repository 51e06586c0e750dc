// config/config.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package config loads and validates but's on-disk TOML configuration,
// via spf13/viper — the same library
// _examples/lupppig-dbackup/internal/config/config.go uses for its
// config loader, including viper.WatchConfig + fsnotify for the watch
// command's live-reload behavior. Schema and validation rules are ported
// from _examples/original_source/src/config.rs (Settings/BackupTarget),
// the authoritative source for defaults and search-path priority.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/spf13/viper"
)

// Settings is the top-level [settings] section.
type Settings struct {
	Interval     int    `mapstructure:"interval"`
	Filename     string `mapstructure:"filename"`
	Compression  string `mapstructure:"compression"`
	ZstdLevel    int    `mapstructure:"zstd_level"`
	Encrypt      bool   `mapstructure:"encrypt"`
	MaxSnapshots int    `mapstructure:"max_snapshots"`
	RepoPath     string `mapstructure:"repo_path"`
}

// BackupTarget is one [backup.<name>] section.
type BackupTarget struct {
	From        []string `mapstructure:"from"`
	Dest        string   `mapstructure:"dest"`
	Compression string   `mapstructure:"compression"`
	Exclude     []string `mapstructure:"exclude"`
}

// Config is the fully parsed configuration file.
type Config struct {
	Settings Settings                `mapstructure:"settings"`
	Backup   map[string]BackupTarget `mapstructure:"backup"`
}

// defaults mirror default_interval/default_filename/default_compression/
// default_zstd_level/default_repo_path in config.rs.
const (
	DefaultInterval    = 300
	DefaultFilename    = "%name%-%date%-%time%"
	DefaultCompression = string(codec.HighRatio)
	DefaultZstdLevel   = 3
	DefaultRepoPath    = ".but"
)

// SearchPaths returns the priority-ordered list of default config
// locations, matching config_search_paths in config.rs: system-wide,
// then $HOME/.config, then $XDG_CONFIG_HOME, then the working directory.
func SearchPaths() []string {
	var paths []string
	paths = append(paths, "/etc/but-next.toml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "but-next.toml"))
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "but-next.toml"))
	}
	paths = append(paths, "but-next.toml")
	return paths
}

// Load reads the config file at explicitPath if non-empty, else the
// first existing entry in SearchPaths, applies defaults, validates, and
// returns the result.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("settings.interval", DefaultInterval)
	v.SetDefault("settings.filename", DefaultFilename)
	v.SetDefault("settings.compression", DefaultCompression)
	v.SetDefault("settings.zstd_level", DefaultZstdLevel)
	v.SetDefault("settings.encrypt", false)
	v.SetDefault("settings.repo_path", DefaultRepoPath)

	path, err := resolvePath(explicitPath)
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "parse config %s", path).WithPath(path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "decode config %s", path).WithPath(path)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errs.New(errs.KindConfig, "config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errs.New(errs.KindConfig, "no config file found (searched %v)", SearchPaths())
}

// Validate enforces the same rules as validate_config in config.rs: at
// least one backup target, a positive interval, a zstd level in [1,22],
// and a non-empty "from" list per target.
func Validate(cfg *Config) error {
	if len(cfg.Backup) == 0 {
		return errs.New(errs.KindConfig, "config defines no [backup.<name>] targets")
	}
	if cfg.Settings.Interval <= 0 {
		return errs.New(errs.KindConfig, "settings.interval must be positive")
	}
	if cfg.Settings.ZstdLevel < 1 || cfg.Settings.ZstdLevel > 22 {
		return errs.New(errs.KindConfig, "settings.zstd_level must be between 1 and 22")
	}
	for name, target := range cfg.Backup {
		if len(target.From) == 0 {
			return errs.New(errs.KindConfig, "backup target %q has no 'from' paths", name)
		}
	}
	return nil
}

// WatchConfig re-reads the file on change and invokes onChange with the
// freshly parsed Config, backing the watch command's config-reload
// behavior via viper.WatchConfig + fsnotify.
func WatchConfig(explicitPath string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigType("toml")
	path, err := resolvePath(explicitPath)
	if err != nil {
		return err
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errs.Wrap(errs.KindConfig, err, "parse config %s", path)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if Validate(&cfg) != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

// ExpandFilename substitutes %name%/%timestamp%/%date%/%time% template
// placeholders, matching expand_filename in config.rs.
func ExpandFilename(template, name, date, timeStr, timestamp string) string {
	r := strings.NewReplacer(
		"%name%", name,
		"%date%", date,
		"%time%", timeStr,
		"%timestamp%", timestamp,
	)
	return r.Replace(template)
}
