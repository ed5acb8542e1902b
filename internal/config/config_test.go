package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.HistoryPath == "" || cfg.LockPath == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.DefaultBranch != "stable" {
		t.Errorf("default branch mismatch: %q", cfg.DefaultBranch)
	}
	if len(cfg.Allowlist().Registries) == 0 {
		t.Error("built-in registries must survive an empty config")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `history_path: /tmp/custom-history.json
lock_path: /tmp/custom.lock
default_branch: testing
no_color: true
registries:
  - prefix: example.com/my-org
    images: ["custom*"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HistoryPath != "/tmp/custom-history.json" || cfg.LockPath != "/tmp/custom.lock" {
		t.Errorf("path overrides not applied: %+v", cfg)
	}
	if cfg.DefaultBranch != "testing" || !cfg.NoColor {
		t.Errorf("settings not applied: %+v", cfg)
	}

	allow := cfg.Allowlist()
	if len(allow.Registries) != 1 || allow.Registries[0].Prefix != "example.com/my-org" {
		t.Errorf("registry override not applied: %+v", allow.Registries)
	}
	// The override replaces the built-in list entirely.
	if err := allow.ValidateImageReference("ghcr.io/ublue-os/bluefin:stable"); err == nil {
		t.Error("built-in registries should be replaced by the override")
	}
	if err := allow.ValidateImageReference("example.com/my-org/custom-image:v1"); err != nil {
		t.Errorf("overridden registry should validate: %v", err)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\nnot yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config must error, not silently default")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ghcr.io/ublue-os") {
		t.Error("starter config should list the built-in registries")
	}

	// Round-trips through Load.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("starter config must load: %v", err)
	}
	if cfg.DefaultBranch != "stable" {
		t.Errorf("starter branch mismatch: %q", cfg.DefaultBranch)
	}

	// Refuses to overwrite.
	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault must not overwrite an existing file")
	}
}

func TestDataDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if dir := DataDir(); dir != "/custom/data/ublue-rebase-tool" {
		t.Errorf("DataDir mismatch: %q", dir)
	}
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if dir := ConfigDir(); dir != "/custom/config/ublue-rebase-tool" {
		t.Errorf("ConfigDir mismatch: %q", dir)
	}
}
