// Package config loads tool settings from config.yaml via viper.
//
// The file lives in the user's config directory
// (~/.config/ublue-rebase-tool/config.yaml); runtime data such as the
// operation history sits under the data directory
// (~/.local/share/ublue-rebase-tool). Every setting has a working
// default, so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

const appDirName = "ublue-rebase-tool"

// Config is the on-disk configuration. Zero values fall back to
// defaults at load time.
type Config struct {
	// HistoryPath overrides where the operation ledger is stored.
	HistoryPath string `mapstructure:"history_path" yaml:"history_path,omitempty"`
	// LockPath overrides where the operation lock file is created.
	LockPath string `mapstructure:"lock_path" yaml:"lock_path,omitempty"`
	// Registries replaces the built-in registry allow-list entirely
	// when non-empty.
	Registries []validate.Registry `mapstructure:"registries" yaml:"registries,omitempty"`
	// DefaultBranch preselects the tag branch in registry listings.
	DefaultBranch string `mapstructure:"default_branch" yaml:"default_branch,omitempty"`
	// NoColor disables styled output.
	NoColor bool `mapstructure:"no_color" yaml:"no_color,omitempty"`
}

// DataDir returns the runtime data directory, honoring XDG_DATA_HOME.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

// ConfigDir returns the configuration directory, honoring
// XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(home, ".config", appDirName)
}

// DefaultPath returns the default config.yaml location.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the configuration from path, or from the default location
// when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyDefaults(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(DataDir(), "history.json")
	}
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(DataDir(), "operation.lock")
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "stable"
	}
}

// Allowlist builds the validation allow-list: the shipped defaults, with
// the registry set replaced when the config provides its own.
func (c *Config) Allowlist() *validate.Allowlist {
	allow := validate.Default()
	if len(c.Registries) > 0 {
		allow.Registries = c.Registries
	}
	return allow
}

// WriteDefault writes a commented starter config to path, creating
// parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := Config{DefaultBranch: "stable", Registries: validate.Default().Registries}
	data, err := yaml.Marshal(&starter)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	header := []byte("# ublue-rebase-tool configuration.\n# Remove the registries block to keep the built-in allow-list.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
