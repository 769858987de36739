package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eclicrawler/internal/bulk"
	"eclicrawler/internal/types"
)

// bulkCmd is the parent command for bulk campaign operations.
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Bulk crawl campaigns over date ranges",
	Long: `Bulk campaigns crawl long date ranges with persistent progress.

A campaign discovers which dates have sitemap content, then crawls them one
by one, checkpointing progress so it survives restarts. Running campaigns
can be paused, resumed, and cancelled; control takes effect at the next
date boundary.

Examples:
  eclicrawler bulk start --from 2023-01-01 --to 2023-12-31
  eclicrawler bulk start --full
  eclicrawler bulk status bulk-1a2b3c4d
  eclicrawler bulk pause bulk-1a2b3c4d
  eclicrawler bulk resume bulk-1a2b3c4d`,
}

var bulkStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new bulk campaign",
	RunE:  runBulkStart,
}

var bulkPauseCmd = &cobra.Command{
	Use:   "pause [operation-id]",
	Short: "Pause a running campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.coordinator.Pause(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Pause requested for %s; takes effect at the next date boundary\n", args[0])
			return nil
		})
	},
}

var bulkResumeCmd = &cobra.Command{
	Use:   "resume [operation-id]",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runBulkResume,
}

var bulkCancelCmd = &cobra.Command{
	Use:   "cancel [operation-id]",
	Short: "Cancel a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.coordinator.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancellation requested for %s\n", args[0])
			return nil
		})
	},
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status [operation-id]",
	Short: "Show the progress of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			p, err := a.coordinator.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("unknown operation %s", args[0])
			}
			printProgress(p)
			return nil
		})
	},
}

var bulkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent campaigns",
	RunE:  runBulkList,
}

var bulkCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old finished campaign records",
	RunE:  runBulkCleanup,
}

var bulkReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Mark abandoned campaigns as failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.coordinator.ReapStuck(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reaped %d stuck operations\n", n)
			return nil
		})
	},
}

var bulkStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate campaign statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			stats, err := a.coordinator.Statistics(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Operations: %d total, %d active, %d completed, %d failed, %d cancelled\n",
				stats.TotalOperations, stats.ActiveOperations, stats.CompletedOperations,
				stats.FailedOperations, stats.CancelledOperations)
			fmt.Printf("Documents:  %d succeeded, %d failed\n",
				stats.DocumentsSucceeded, stats.DocumentsFailed)
			return nil
		})
	},
}

func init() {
	bulkStartCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	bulkStartCmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	bulkStartCmd.Flags().Bool("full", false, "Discover and crawl the full archive")
	bulkStartCmd.Flags().Bool("force", false, "Re-download documents that were already fetched")
	bulkStartCmd.Flags().Int64("rate-limit", 0, "Per-document rate limit in milliseconds")
	bulkStartCmd.Flags().Int("max-downloads", 0, "Concurrent downloads per date")

	bulkListCmd.Flags().Int("days", 7, "How many days back to list")
	bulkCleanupCmd.Flags().Int("days", 30, "Remove finished campaigns older than this many days")

	bulkCmd.AddCommand(bulkStartCmd, bulkPauseCmd, bulkResumeCmd, bulkCancelCmd,
		bulkStatusCmd, bulkListCmd, bulkCleanupCmd, bulkReapCmd, bulkStatsCmd)
}

// withApp wires the pipeline, runs fn, and tears down.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runBulkStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	full, _ := cmd.Flags().GetBool("full")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	req := bulk.StartRequest{}
	if !full {
		if from == "" || to == "" {
			return fmt.Errorf("either --full or both --from and --to are required")
		}
		if req.StartDate, err = parseDate(from); err != nil {
			return err
		}
		if req.EndDate, err = parseDate(to); err != nil {
			return err
		}
	}
	req.ForceUpdate, _ = cmd.Flags().GetBool("force")
	req.RateLimitMs, _ = cmd.Flags().GetInt64("rate-limit")
	req.MaxConcurrentDownloads, _ = cmd.Flags().GetInt("max-downloads")

	operationID, err := a.coordinator.Start(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Started operation %s\n", operationID)

	// The campaign runs on a coordinator goroutine; stay up and report
	// progress until it finishes or the user interrupts.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Detaching; the operation state is persisted and can be resumed")
			a.coordinator.Shutdown()
			return nil
		case <-ticker.C:
			p, err := a.coordinator.Get(context.Background(), operationID)
			if err != nil || p == nil {
				continue
			}
			fmt.Printf("[%s] %s: %.1f%% (%d/%d dates, %d documents, %.1f docs/min)\n",
				time.Now().Format("15:04:05"), p.Status, p.ProgressPercentage(),
				p.DatesProcessed, p.TotalDatesDiscovered, p.DocumentsProcessed,
				p.ProcessingRatePerMinute)
			if p.IsCompleted() || p.IsPaused() {
				printProgress(p)
				a.coordinator.Shutdown()
				return nil
			}
		}
	}
}

func runBulkResume(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coordinator.Resume(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Resumed operation %s\n", args[0])

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Detaching; the operation state is persisted and can be resumed")
			a.coordinator.Shutdown()
			return nil
		case <-ticker.C:
			p, err := a.coordinator.Get(context.Background(), args[0])
			if err != nil || p == nil {
				continue
			}
			if p.IsCompleted() || p.IsPaused() {
				printProgress(p)
				a.coordinator.Shutdown()
				return nil
			}
		}
	}
}

func runBulkList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		days, _ := cmd.Flags().GetInt("days")
		ops, err := a.coordinator.ListRecent(ctx, days)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Printf("No operations in the last %d days\n", days)
			return nil
		}
		for _, p := range ops {
			fmt.Printf("%-14s %-12s %6.1f%%  %4d/%4d dates  %6d docs  %s\n",
				p.OperationID, p.Status, p.ProgressPercentage(),
				p.DatesProcessed, p.TotalDatesDiscovered, p.DocumentsProcessed,
				p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	})
}

func runBulkCleanup(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		days, _ := cmd.Flags().GetInt("days")
		n, err := a.coordinator.CleanupOld(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d finished operations older than %d days\n", n, days)
		return nil
	})
}

func printProgress(p *types.BulkCrawlProgress) {
	fmt.Printf("Operation:  %s\n", p.OperationID)
	fmt.Printf("Status:     %s (phase %s)\n", p.Status, p.CurrentPhase)
	fmt.Printf("Range:      %s .. %s\n", fmtCmdDate(p.StartDate), fmtCmdDate(p.EndDate))
	fmt.Printf("Progress:   %.1f%% (%d/%d dates)\n",
		p.ProgressPercentage(), p.DatesProcessed, p.TotalDatesDiscovered)
	fmt.Printf("Documents:  %d processed, %d succeeded, %d failed\n",
		p.DocumentsProcessed, p.DocumentsSucceeded, p.DocumentsFailed)
	if p.ProcessingRatePerMinute > 0 {
		fmt.Printf("Rate:       %.1f docs/min\n", p.ProcessingRatePerMinute)
	}
	if p.ErrorMessage != "" {
		fmt.Printf("Error:      %s\n", p.ErrorMessage)
	}
	if d := p.DurationMs(); d > 0 {
		fmt.Printf("Duration:   %s\n", (time.Duration(d) * time.Millisecond).Round(time.Second))
	}
}

func fmtCmdDate(t time.Time) string {
	if t.IsZero() {
		return "auto"
	}
	return t.Format("2006-01-02")
}
