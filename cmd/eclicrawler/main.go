package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eclicrawler/internal/bulk"
	"eclicrawler/internal/config"
	"eclicrawler/internal/crawler"
	"eclicrawler/internal/logging"
	"eclicrawler/internal/sitemap"
	"eclicrawler/internal/store"
	"eclicrawler/internal/validation"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "eclicrawler",
	Short: "Polite bulk crawler for rechtsprechung-im-internet.de",
	Long: `eclicrawler harvests German federal court decisions from the
rechtsprechung-im-internet.de portal via its daily ECLI sitemaps.

Documents are validated (XML security sanitization, LegalDocML structure,
ECLI identifiers), stored in a filesystem archive laid out by court and
date, and mirrored into a SQLite full-text search index.

Crawls run one date at a time, politely rate limited. Bulk campaigns over
long date ranges persist their progress and can be paused, resumed, and
cancelled across process restarts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		logging.Initialize(workspace)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired services behind the commands.
type app struct {
	cfg          *config.Config
	docs         store.DocumentStore
	archive      *store.ArchiveStore
	progress     *store.ProgressStore
	fetcher      *sitemap.Fetcher
	discovery    *sitemap.Discovery
	validator    *validation.Service
	downloader   *crawler.Downloader
	orchestrator *crawler.Orchestrator
	coordinator  *bulk.Coordinator
}

// buildApp loads config and wires the full pipeline.
func buildApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath(workspace)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", zap.String("path", path))

	a := &app{cfg: cfg}

	a.docs, a.archive, err = buildStore(cfg)
	if err != nil {
		return nil, err
	}

	progressPath := filepath.Join(filepath.Dir(cfg.Storage.IndexPath), "progress.db")
	a.progress, err = store.NewProgressStore(progressPath)
	if err != nil {
		return nil, err
	}

	a.fetcher = sitemap.NewFetcher(cfg.BaseURL, cfg.UserAgent, cfg.RateLimitMs)
	a.discovery = sitemap.NewDiscovery(cfg.BaseURL, cfg.UserAgent, sitemap.DiscoveryConfig{
		MaxConcurrentChecks: cfg.Bulk.MaxConcurrentChecks,
		RateLimitMs:         cfg.RateLimitMs,
		TimeoutHours:        cfg.Bulk.DiscoveryTimeoutHours,
		FallbackToFullScan:  cfg.Discovery.FallbackToFullScan,
	})

	a.validator = validation.NewService(validation.Options{
		SchemaEnabled:     cfg.Validation.SchemaEnabled,
		LegalDocMLEnabled: cfg.Validation.LegalDocMLEnabled,
		EcliEnabled:       cfg.Validation.EcliEnabled,
		StrictMode:        cfg.Validation.StrictMode,
		MaxSizeBytes:      cfg.Validation.MaxSizeMiB * 1024 * 1024,
	})

	a.downloader = crawler.NewDownloader(a.docs, a.validator, crawler.DownloaderOptions{
		UserAgent:                cfg.UserAgent,
		RateLimitMs:              cfg.RateLimitMs,
		StrictMode:               cfg.Validation.StrictMode,
		AsyncValidation:          cfg.Validation.Async,
		ValidationTimeoutSeconds: cfg.Validation.TimeoutSeconds,
	})
	a.orchestrator = crawler.NewOrchestrator(a.fetcher, a.downloader, a.docs,
		cfg.Bulk.DefaultMaxConcurrentDownloads)

	a.coordinator = bulk.NewCoordinator(a.discovery, a.orchestrator, a.downloader, a.progress,
		bulk.Options{
			MaxConcurrentOperations:  cfg.Bulk.MaxConcurrentOperations,
			DefaultRateLimitMs:       cfg.Bulk.DefaultRateLimitMs,
			DefaultMaxDownloads:      cfg.Bulk.DefaultMaxConcurrentDownloads,
			StuckTimeoutHours:        cfg.Bulk.StuckOperationTimeoutHours,
			ProgressUpdateIntervalMs: cfg.Bulk.ProgressUpdateIntervalMs,
		})

	return a, nil
}

// buildStore creates the configured backend. The archive handle is returned
// separately when one exists, for stats.
func buildStore(cfg *config.Config) (store.DocumentStore, *store.ArchiveStore, error) {
	switch cfg.Storage.Type {
	case "archive":
		archive, err := store.NewArchiveStore(cfg.Storage.BasePath)
		if err != nil {
			return nil, nil, err
		}
		return archive, archive, nil
	case "index", "search":
		index, err := store.NewIndexStore(cfg.Storage.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		return index, nil, nil
	case "dual", "":
		archive, err := store.NewArchiveStore(cfg.Storage.BasePath)
		if err != nil {
			return nil, nil, err
		}
		index, err := store.NewIndexStore(cfg.Storage.IndexPath)
		if err != nil {
			archive.Close()
			return nil, nil, err
		}
		return store.NewDualStore(archive, index), archive, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q (want archive, index/search, or dual)", cfg.Storage.Type)
	}
}

func (a *app) close() {
	if a.downloader != nil {
		a.downloader.WaitPendingValidations()
	}
	if a.progress != nil {
		_ = a.progress.Close()
	}
	if a.docs != nil {
		_ = a.docs.Close()
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t.UTC(), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: <workspace>/.eclicrawler/config.yaml)")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
