// Package config defines the eclicrawler configuration surface and its
// yaml persistence. The file lives at .eclicrawler/config.yaml under the
// workspace root.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all eclicrawler configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Portal access
	BaseURL     string `yaml:"base_url"`
	UserAgent   string `yaml:"user_agent"`
	RateLimitMs int64  `yaml:"rate_limit_ms"`

	// Storage backends
	Storage StorageConfig `yaml:"storage"`

	// XML validation pipeline
	Validation ValidationConfig `yaml:"validation"`

	// Sitemap discovery
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Scheduled crawling
	Scheduled ScheduledConfig `yaml:"scheduled"`

	// Bulk campaigns
	Bulk BulkConfig `yaml:"bulk"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and configures the document store backends.
type StorageConfig struct {
	// Type selects the backend: archive, index (alias search), or dual.
	Type string `yaml:"type"`

	// BasePath is the root of the filesystem archive.
	BasePath string `yaml:"base_path"`

	// IndexPath is the SQLite database file backing the search index
	// and the bulk progress store.
	IndexPath string `yaml:"index_path"`
}

// ValidationConfig configures the XML validation pipeline.
type ValidationConfig struct {
	SchemaEnabled     bool `yaml:"schema_enabled"`
	LegalDocMLEnabled bool `yaml:"legaldocml_enabled"`
	EcliEnabled       bool `yaml:"ecli_enabled"`
	StrictMode        bool `yaml:"strict_mode"`
	Async             bool `yaml:"async"`
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	MaxSizeMiB        int  `yaml:"max_size_mib"`
}

// DiscoveryConfig configures sitemap date discovery.
type DiscoveryConfig struct {
	// FallbackToFullScan controls whether recent-discovery falls back to
	// a full range scan when sampling finds nothing.
	FallbackToFullScan bool `yaml:"fallback_to_full_scan"`
}

// ScheduledConfig configures the cron-driven jobs.
type ScheduledConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DaysBack   int    `yaml:"days_back"`
	DailyCron  string `yaml:"daily_cron"`
	WeeklyCron string `yaml:"weekly_cron"`
	RetryCron  string `yaml:"retry_cron"`
}

// BulkConfig configures the bulk campaign coordinator.
type BulkConfig struct {
	MaxConcurrentOperations       int   `yaml:"max_concurrent_operations"`
	MaxConcurrentChecks           int   `yaml:"max_concurrent_checks"`
	DefaultRateLimitMs            int64 `yaml:"default_rate_limit_ms"`
	DefaultMaxConcurrentDownloads int   `yaml:"default_max_concurrent_downloads"`
	DiscoveryTimeoutHours         int   `yaml:"discovery_timeout_hours"`
	StuckOperationTimeoutHours    int   `yaml:"stuck_operation_timeout_hours"`
	ProgressUpdateIntervalMs      int64 `yaml:"progress_update_interval_ms"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:        "eclicrawler",
		Version:     "1.0.0",
		BaseURL:     "https://www.rechtsprechung-im-internet.de",
		UserAgent:   "LegalDocumentCrawler/1.0",
		RateLimitMs: 1000,
		Storage: StorageConfig{
			Type:      "dual",
			BasePath:  "./legal-documents",
			IndexPath: "./.eclicrawler/index.db",
		},
		Validation: ValidationConfig{
			SchemaEnabled:     false,
			LegalDocMLEnabled: true,
			EcliEnabled:       true,
			StrictMode:        false,
			Async:             true,
			TimeoutSeconds:    30,
			MaxSizeMiB:        10,
		},
		Discovery: DiscoveryConfig{
			FallbackToFullScan: true,
		},
		Scheduled: ScheduledConfig{
			Enabled:    true,
			DaysBack:   7,
			DailyCron:  "0 6 * * *",
			WeeklyCron: "0 2 * * 0",
			RetryCron:  "0 */6 * * *",
		},
		Bulk: BulkConfig{
			MaxConcurrentOperations:       2,
			MaxConcurrentChecks:           10,
			DefaultRateLimitMs:            2000,
			DefaultMaxConcurrentDownloads: 5,
			DiscoveryTimeoutHours:         2,
			StuckOperationTimeoutHours:    6,
			ProgressUpdateIntervalMs:      30000,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// ConfigPath returns the path of the config file under the workspace.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, ".eclicrawler", "config.yaml")
}

// Load reads the configuration from the given path. A missing file yields
// the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the given path, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
