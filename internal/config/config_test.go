package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Name != "eclicrawler" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.BaseURL != "https://www.rechtsprechung-im-internet.de" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.RateLimitMs != 1000 {
		t.Errorf("RateLimitMs = %d", cfg.RateLimitMs)
	}
	if cfg.Storage.Type != "dual" {
		t.Errorf("Storage.Type = %q", cfg.Storage.Type)
	}
	if !cfg.Validation.LegalDocMLEnabled || !cfg.Validation.EcliEnabled {
		t.Error("validation stages should be enabled by default")
	}
	if cfg.Validation.StrictMode {
		t.Error("strict mode should be off by default")
	}
	if cfg.Bulk.MaxConcurrentOperations != 2 || cfg.Bulk.DefaultRateLimitMs != 2000 {
		t.Errorf("bulk defaults: %+v", cfg.Bulk)
	}
	if !cfg.Scheduled.Enabled || cfg.Scheduled.DaysBack != 7 {
		t.Errorf("scheduled defaults: %+v", cfg.Scheduled)
	}
	if cfg.Logging.DebugMode {
		t.Error("debug logging should be off by default")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file errored: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
rate_limit_ms: 500
storage:
  type: index
validation:
  strict_mode: true
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimitMs != 500 {
		t.Errorf("RateLimitMs = %d", cfg.RateLimitMs)
	}
	if cfg.Storage.Type != "index" {
		t.Errorf("Storage.Type = %q", cfg.Storage.Type)
	}
	if !cfg.Validation.StrictMode {
		t.Error("StrictMode not applied")
	}
	// Untouched settings keep their defaults.
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("BaseURL changed: %q", cfg.BaseURL)
	}
	if cfg.Bulk.DefaultRateLimitMs != 2000 {
		t.Errorf("bulk defaults lost: %+v", cfg.Bulk)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := ConfigPath(t.TempDir())

	cfg := DefaultConfig()
	cfg.RateLimitMs = 1500
	cfg.Storage.Type = "archive"
	cfg.Scheduled.DailyCron = "30 5 * * *"
	cfg.Logging.Categories = map[string]bool{"crawler": true, "sitemap": false}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigPath(t *testing.T) {
	want := filepath.Join("ws", ".eclicrawler", "config.yaml")
	if got := ConfigPath("ws"); got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}
