// Package scheduler runs the recurring crawl jobs: a daily catch-up over
// recent dates, a weekly deep re-crawl, a retry sweep for failed documents
// and stuck operations, and an hourly health tick.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"

	"eclicrawler/internal/bulk"
	"eclicrawler/internal/crawler"
	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

const (
	dailyDateDelay  = 5 * time.Second
	weeklyDateDelay = 10 * time.Second
	weeklyDaysBack  = 30
)

// Options configures the scheduler.
type Options struct {
	Enabled    bool
	DaysBack   int
	DailyCron  string
	WeeklyCron string
	RetryCron  string
}

// Scheduler owns the cron runner. Every job is wrapped with
// SkipIfStillRunning so overlapping fires of the same job collapse.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *crawler.Orchestrator
	coordinator  *bulk.Coordinator
	opts         Options
}

// cronLog adapts the scheduler log category to cron's logger interface.
type cronLog struct{}

func (cronLog) Printf(format string, args ...interface{}) {
	logging.SchedulerDebug(format, args...)
}

// New creates a Scheduler. Jobs are registered but nothing fires until
// Start is called.
func New(orchestrator *crawler.Orchestrator, coordinator *bulk.Coordinator, opts Options) (*Scheduler, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 7
	}

	logger := cron.PrintfLogger(cronLog{})
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	s := &Scheduler{
		cron:         c,
		orchestrator: orchestrator,
		coordinator:  coordinator,
		opts:         opts,
	}

	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{opts.DailyCron, "daily crawl", s.runDaily},
		{opts.WeeklyCron, "weekly deep crawl", s.runWeekly},
		{opts.RetryCron, "retry sweep", s.runRetry},
		{"0 * * * *", "health tick", s.runHealthTick},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := c.AddFunc(job.spec, job.fn); err != nil {
			return nil, fmt.Errorf("invalid cron spec %q for %s: %w", job.spec, job.name, err)
		}
	}
	return s, nil
}

// Start begins firing jobs. A no-op when scheduling is disabled.
func (s *Scheduler) Start() {
	if !s.opts.Enabled {
		logging.Scheduler("scheduling disabled, no jobs will run")
		return
	}
	s.cron.Start()
	logging.Scheduler("scheduler started: daily=%q weekly=%q retry=%q daysBack=%d",
		s.opts.DailyCron, s.opts.WeeklyCron, s.opts.RetryCron, s.opts.DaysBack)
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logging.Scheduler("scheduler stopped")
}

// runDaily crawls each of the last DaysBack dates, newest last, pausing
// between dates to stay polite.
func (s *Scheduler) runDaily() {
	logging.Scheduler("daily crawl: last %d days", s.opts.DaysBack)
	s.crawlBack(s.opts.DaysBack, false, dailyDateDelay)
}

// runWeekly re-crawls the last thirty days with force so updated documents
// are refreshed.
func (s *Scheduler) runWeekly() {
	logging.Scheduler("weekly deep crawl: last %d days, forced", weeklyDaysBack)
	s.crawlBack(weeklyDaysBack, true, weeklyDateDelay)
}

func (s *Scheduler) crawlBack(daysBack int, force bool, delay time.Duration) {
	ctx := context.Background()
	yesterday := types.Day(time.Now().UTC()).AddDate(0, 0, -1)

	for i := daysBack - 1; i >= 0; i-- {
		date := yesterday.AddDate(0, 0, -i)
		result, err := s.orchestrator.Crawl(ctx, date, force)
		if err != nil {
			logging.SchedulerError("scheduled crawl for %s failed: %v", date.Format("2006-01-02"), err)
		} else {
			logging.SchedulerDebug("scheduled crawl %s: %d new, %d updated, %d failed",
				date.Format("2006-01-02"), result.NewDocuments, result.UpdatedDocuments, result.FailedDocuments)
		}
		if i > 0 {
			time.Sleep(delay)
		}
	}
}

// runRetry re-downloads failed documents and reaps stuck bulk operations.
func (s *Scheduler) runRetry() {
	ctx := context.Background()

	recovered, err := s.orchestrator.RetryFailed(ctx)
	if err != nil {
		logging.SchedulerError("retry sweep failed: %v", err)
	} else if recovered > 0 {
		logging.Scheduler("retry sweep recovered %d documents", recovered)
	}

	reaped, err := s.coordinator.ReapStuck(ctx)
	if err != nil {
		logging.SchedulerError("stuck operation reap failed: %v", err)
	} else if reaped > 0 {
		logging.Scheduler("reaped %d stuck operations", reaped)
	}
}

// runHealthTick logs memory usage once an hour so long crawls leave a
// heartbeat trail.
func (s *Scheduler) runHealthTick() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logging.Scheduler("health: heap=%dMB sys=%dMB goroutines=%d",
		m.HeapAlloc/1024/1024, m.Sys/1024/1024, runtime.NumGoroutine())
}
