// Package logging provides config-driven categorized file-based logging for eclicrawler.
// Logs are written to .eclicrawler/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode in .eclicrawler/config.yaml - when false, no logs are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system
type Category string

const (
	// Core categories
	CategoryBoot        Category = "boot"        // Startup/initialization
	CategoryConfig      Category = "config"      // Configuration loading and reload
	CategoryPerformance Category = "performance" // Performance metrics, slow operations

	// Pipeline categories
	CategorySitemap    Category = "sitemap"    // Sitemap index/leaf fetching
	CategoryDiscovery  Category = "discovery"  // Sitemap date discovery
	CategoryCrawler    Category = "crawler"    // Per-date crawl orchestration
	CategoryDownload   Category = "download"   // Document downloads
	CategoryValidation Category = "validation" // XML validation pipeline
	CategorySanitizer  Category = "sanitizer"  // XML security sanitization
	CategoryEcli       Category = "ecli"       // ECLI validation/extraction
	CategoryExtract    Category = "extract"    // HTML/XML content extraction

	// Infrastructure categories
	CategoryStore     Category = "store"     // Archive and index store operations
	CategoryBulk      Category = "bulk"      // Bulk campaign coordination
	CategoryScheduler Category = "scheduler" // Cron-driven jobs
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// configFile structure for reading .eclicrawler/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configLoaded bool
	configMu     sync.RWMutex
	logLevel     int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".eclicrawler", "logs")

	// Load config first to check if debug mode is enabled
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== eclicrawler Logging System Initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from .eclicrawler/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".eclicrawler", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			configLoaded = true
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	configLoaded = true

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
// Call this if config changes at runtime.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Create log file with date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Config logs to the config category
func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// ConfigDebug logs debug to the config category
func ConfigDebug(format string, args ...interface{}) {
	Get(CategoryConfig).Debug(format, args...)
}

// ConfigWarn logs warning to the config category
func ConfigWarn(format string, args ...interface{}) {
	Get(CategoryConfig).Warn(format, args...)
}

// Sitemap logs to the sitemap category
func Sitemap(format string, args ...interface{}) {
	Get(CategorySitemap).Info(format, args...)
}

// SitemapDebug logs debug to the sitemap category
func SitemapDebug(format string, args ...interface{}) {
	Get(CategorySitemap).Debug(format, args...)
}

// SitemapError logs error to the sitemap category
func SitemapError(format string, args ...interface{}) {
	Get(CategorySitemap).Error(format, args...)
}

// Discovery logs to the discovery category
func Discovery(format string, args ...interface{}) {
	Get(CategoryDiscovery).Info(format, args...)
}

// DiscoveryDebug logs debug to the discovery category
func DiscoveryDebug(format string, args ...interface{}) {
	Get(CategoryDiscovery).Debug(format, args...)
}

// DiscoveryWarn logs warning to the discovery category
func DiscoveryWarn(format string, args ...interface{}) {
	Get(CategoryDiscovery).Warn(format, args...)
}

// Crawler logs to the crawler category
func Crawler(format string, args ...interface{}) {
	Get(CategoryCrawler).Info(format, args...)
}

// CrawlerDebug logs debug to the crawler category
func CrawlerDebug(format string, args ...interface{}) {
	Get(CategoryCrawler).Debug(format, args...)
}

// CrawlerError logs error to the crawler category
func CrawlerError(format string, args ...interface{}) {
	Get(CategoryCrawler).Error(format, args...)
}

// Download logs to the download category
func Download(format string, args ...interface{}) {
	Get(CategoryDownload).Info(format, args...)
}

// DownloadDebug logs debug to the download category
func DownloadDebug(format string, args ...interface{}) {
	Get(CategoryDownload).Debug(format, args...)
}

// DownloadWarn logs warning to the download category
func DownloadWarn(format string, args ...interface{}) {
	Get(CategoryDownload).Warn(format, args...)
}

// DownloadError logs error to the download category
func DownloadError(format string, args ...interface{}) {
	Get(CategoryDownload).Error(format, args...)
}

// Validation logs to the validation category
func Validation(format string, args ...interface{}) {
	Get(CategoryValidation).Info(format, args...)
}

// ValidationDebug logs debug to the validation category
func ValidationDebug(format string, args ...interface{}) {
	Get(CategoryValidation).Debug(format, args...)
}

// ValidationWarn logs warning to the validation category
func ValidationWarn(format string, args ...interface{}) {
	Get(CategoryValidation).Warn(format, args...)
}

// Sanitizer logs to the sanitizer category
func Sanitizer(format string, args ...interface{}) {
	Get(CategorySanitizer).Info(format, args...)
}

// SanitizerDebug logs debug to the sanitizer category
func SanitizerDebug(format string, args ...interface{}) {
	Get(CategorySanitizer).Debug(format, args...)
}

// Ecli logs to the ecli category
func Ecli(format string, args ...interface{}) {
	Get(CategoryEcli).Info(format, args...)
}

// EcliDebug logs debug to the ecli category
func EcliDebug(format string, args ...interface{}) {
	Get(CategoryEcli).Debug(format, args...)
}

// Extract logs to the extract category
func Extract(format string, args ...interface{}) {
	Get(CategoryExtract).Info(format, args...)
}

// ExtractDebug logs debug to the extract category
func ExtractDebug(format string, args ...interface{}) {
	Get(CategoryExtract).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Bulk logs to the bulk category
func Bulk(format string, args ...interface{}) {
	Get(CategoryBulk).Info(format, args...)
}

// BulkDebug logs debug to the bulk category
func BulkDebug(format string, args ...interface{}) {
	Get(CategoryBulk).Debug(format, args...)
}

// BulkWarn logs warning to the bulk category
func BulkWarn(format string, args ...interface{}) {
	Get(CategoryBulk).Warn(format, args...)
}

// BulkError logs error to the bulk category
func BulkError(format string, args ...interface{}) {
	Get(CategoryBulk).Error(format, args...)
}

// Scheduler logs to the scheduler category
func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

// SchedulerDebug logs debug to the scheduler category
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

// SchedulerError logs error to the scheduler category
func SchedulerError(format string, args ...interface{}) {
	Get(CategoryScheduler).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
