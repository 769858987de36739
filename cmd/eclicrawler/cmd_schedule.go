package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eclicrawler/internal/scheduler"
)

// scheduleCmd runs the recurring crawl jobs in the foreground.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the scheduled crawl jobs",
	Long: `Starts the cron scheduler and blocks until interrupted.

Jobs (cron specs come from the config file):
  daily   catch-up crawl over the last days_back days
  weekly  forced re-crawl of the last 30 days
  retry   failed-document retry and stuck-operation reaping, every 6 hours
  health  hourly memory heartbeat

Overlapping fires of the same job are skipped, so a slow crawl never
stacks up behind itself.`,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if !a.cfg.Scheduled.Enabled {
			return fmt.Errorf("scheduling is disabled; set scheduled.enabled: true in the config")
		}

		sched, err := scheduler.New(a.orchestrator, a.coordinator, scheduler.Options{
			Enabled:    a.cfg.Scheduled.Enabled,
			DaysBack:   a.cfg.Scheduled.DaysBack,
			DailyCron:  a.cfg.Scheduled.DailyCron,
			WeeklyCron: a.cfg.Scheduled.WeeklyCron,
			RetryCron:  a.cfg.Scheduled.RetryCron,
		})
		if err != nil {
			return err
		}

		sched.Start()
		fmt.Printf("Scheduler running (daily %q, weekly %q, retry %q). Ctrl-C to stop.\n",
			a.cfg.Scheduled.DailyCron, a.cfg.Scheduled.WeeklyCron, a.cfg.Scheduled.RetryCron)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		fmt.Println("Stopping scheduler...")
		sched.Stop()
		a.coordinator.Shutdown()
		return nil
	})
}
