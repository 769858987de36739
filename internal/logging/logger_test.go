package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLoggingConfig(t *testing.T, workspace, body string) {
	t.Helper()
	configDir := filepath.Join(workspace, ".eclicrawler")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestAllCategoriesLog(t *testing.T) {
	workspace := t.TempDir()
	writeLoggingConfig(t, workspace, `
logging:
  debug_mode: true
  level: debug
`)

	if err := Initialize(workspace); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	categories := []Category{
		CategoryBoot, CategoryConfig, CategoryPerformance,
		CategorySitemap, CategoryDiscovery, CategoryCrawler, CategoryDownload,
		CategoryValidation, CategorySanitizer, CategoryEcli, CategoryExtract,
		CategoryStore, CategoryBulk, CategoryScheduler,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	logsDir := filepath.Join(workspace, ".eclicrawler", "logs")
	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		path := filepath.Join(logsDir, date+"_"+string(cat)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("no log file for category %s: %v", cat, err)
			continue
		}
		if !strings.Contains(string(data), "test message for "+string(cat)) {
			t.Errorf("category %s log missing its message", cat)
		}
	}
}

func TestProductionModeWritesNothing(t *testing.T) {
	workspace := t.TempDir()
	// No config file at all means production mode.
	if err := Initialize(workspace); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Error("debug mode should be off without a config")
	}
	Crawler("this must go nowhere")

	logsDir := filepath.Join(workspace, ".eclicrawler", "logs")
	if _, err := os.Stat(logsDir); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

func TestCategoryToggle(t *testing.T) {
	workspace := t.TempDir()
	writeLoggingConfig(t, workspace, `
logging:
  debug_mode: true
  level: debug
  categories:
    sitemap: false
    crawler: true
`)

	if err := Initialize(workspace); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategorySitemap) {
		t.Error("sitemap category should be disabled")
	}
	if !IsCategoryEnabled(CategoryCrawler) {
		t.Error("crawler category should be enabled")
	}
	// Unlisted categories default to enabled in debug mode.
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("unlisted categories should default to enabled")
	}

	Sitemap("suppressed")
	Crawler("recorded")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	logsDir := filepath.Join(workspace, ".eclicrawler", "logs")
	if _, err := os.Stat(filepath.Join(logsDir, date+"_sitemap.log")); !os.IsNotExist(err) {
		t.Error("disabled category produced a log file")
	}
	if _, err := os.Stat(filepath.Join(logsDir, date+"_crawler.log")); err != nil {
		t.Errorf("enabled category produced no log file: %v", err)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	workspace := t.TempDir()
	writeLoggingConfig(t, workspace, `
logging:
  debug_mode: true
  level: warn
`)

	if err := Initialize(workspace); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryCrawler)
	l.Debug("debug suppressed")
	l.Info("info suppressed")
	l.Warn("warn recorded")
	l.Error("error recorded")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(workspace, ".eclicrawler", "logs", date+"_crawler.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("no crawler log: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "suppressed") {
		t.Errorf("messages below warn were written:\n%s", content)
	}
	if !strings.Contains(content, "warn recorded") || !strings.Contains(content, "error recorded") {
		t.Errorf("warn/error messages missing:\n%s", content)
	}
}

func TestTimer(t *testing.T) {
	workspace := t.TempDir()
	writeLoggingConfig(t, workspace, `
logging:
  debug_mode: true
  level: debug
`)
	if err := Initialize(workspace); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	timer := StartTimer(CategoryPerformance, "test operation")
	time.Sleep(5 * time.Millisecond)
	if elapsed := timer.Stop(); elapsed < 5*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 5ms", elapsed)
	}
}
