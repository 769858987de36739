package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// crawlCmd crawls one date or a short range of dates.
var crawlCmd = &cobra.Command{
	Use:   "crawl [date]",
	Short: "Crawl all documents published on a date",
	Long: `Fetches the daily sitemap index for a date, walks its leaf sitemaps,
and downloads every listed document through the validation pipeline.

The date is YYYY-MM-DD; without one, yesterday is crawled. Documents that
were already fetched successfully are skipped unless --force is given.

Examples:
  eclicrawler crawl 2024-03-15
  eclicrawler crawl 2024-03-15 --until 2024-03-20
  eclicrawler crawl --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().Bool("force", false, "Re-download documents that were already fetched")
	crawlCmd.Flags().String("until", "", "Crawl every date up to this one (YYYY-MM-DD)")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	date := time.Now().UTC().AddDate(0, 0, -1)
	if len(args) > 0 {
		if date, err = parseDate(args[0]); err != nil {
			return err
		}
	}

	end := date
	if until, _ := cmd.Flags().GetString("until"); until != "" {
		if end, err = parseDate(until); err != nil {
			return err
		}
		if end.Before(date) {
			return fmt.Errorf("--until %s is before start date %s", until, date.Format("2006-01-02"))
		}
	}
	force, _ := cmd.Flags().GetBool("force")

	totalNew, totalUpdated, totalFailed := 0, 0, 0
	for day := date; !day.After(end); day = day.AddDate(0, 0, 1) {
		result, err := a.orchestrator.Crawl(ctx, day, force)
		if err != nil {
			logger.Warn("crawl failed", zap.String("date", day.Format("2006-01-02")), zap.Error(err))
			fmt.Printf("%s: failed (%v)\n", day.Format("2006-01-02"), err)
			continue
		}
		totalNew += result.NewDocuments
		totalUpdated += result.UpdatedDocuments
		totalFailed += result.FailedDocuments
		fmt.Printf("%s: %d new, %d updated, %d failed\n",
			day.Format("2006-01-02"), result.NewDocuments, result.UpdatedDocuments, result.FailedDocuments)
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Printf("\nTotal: %d new, %d updated, %d failed\n", totalNew, totalUpdated, totalFailed)
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted, finishing up...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
