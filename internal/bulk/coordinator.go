// Package bulk coordinates long-running crawl campaigns over date ranges,
// with persistent progress, pause/resume/cancel control, and recovery of
// stuck or failed operations.
package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eclicrawler/internal/crawler"
	"eclicrawler/internal/logging"
	"eclicrawler/internal/sitemap"
	"eclicrawler/internal/store"
	"eclicrawler/internal/types"
)

// saveEveryDates is how often progress is checkpointed during crawling, in
// addition to the save at every status transition.
const saveEveryDates = 10

// estimatedDocsPerDate feeds the document-count estimate before any real
// numbers exist. The portal publishes a few dozen decisions per day.
const estimatedDocsPerDate = 40

// Options configures the coordinator.
type Options struct {
	MaxConcurrentOperations int
	DefaultRateLimitMs      int64
	DefaultMaxDownloads     int
	StuckTimeoutHours       int

	// ProgressUpdateIntervalMs is the longest progress may go unsaved
	// during crawling; the every-few-dates checkpoint also applies.
	ProgressUpdateIntervalMs int64
}

// StartRequest describes a new campaign. A zero StartDate and EndDate
// requests full-archive discovery.
type StartRequest struct {
	StartDate              time.Time
	EndDate                time.Time
	ForceUpdate            bool
	RateLimitMs            int64
	MaxConcurrentDownloads int
}

// Coordinator runs bulk campaigns. Each campaign executes on its own
// goroutine; control operations work through the persisted progress record,
// which the campaign re-reads at every date boundary.
type Coordinator struct {
	discovery    *sitemap.Discovery
	orchestrator *crawler.Orchestrator
	downloader   *crawler.Downloader
	progress     *store.ProgressStore
	opts         Options

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator wires a campaign coordinator.
func NewCoordinator(discovery *sitemap.Discovery, orchestrator *crawler.Orchestrator,
	downloader *crawler.Downloader, progress *store.ProgressStore, opts Options) *Coordinator {
	if opts.MaxConcurrentOperations <= 0 {
		opts.MaxConcurrentOperations = 2
	}
	if opts.DefaultRateLimitMs <= 0 {
		opts.DefaultRateLimitMs = 2000
	}
	if opts.DefaultMaxDownloads <= 0 {
		opts.DefaultMaxDownloads = 5
	}
	if opts.StuckTimeoutHours <= 0 {
		opts.StuckTimeoutHours = 6
	}
	if opts.ProgressUpdateIntervalMs <= 0 {
		opts.ProgressUpdateIntervalMs = 30000
	}
	return &Coordinator{
		discovery:    discovery,
		orchestrator: orchestrator,
		downloader:   downloader,
		progress:     progress,
		opts:         opts,
		running:      make(map[string]context.CancelFunc),
	}
}

// Start creates and launches a new campaign, returning its operation ID.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (string, error) {
	active, err := c.progress.FindActive(ctx)
	if err != nil {
		return "", err
	}
	if len(active) >= c.opts.MaxConcurrentOperations {
		return "", fmt.Errorf("too many active operations (%d), limit is %d",
			len(active), c.opts.MaxConcurrentOperations)
	}

	operationID := "bulk-" + uuid.NewString()[:8]
	p := types.NewBulkCrawlProgress(operationID, types.Day(req.StartDate), types.Day(req.EndDate))
	p.ForceUpdate = req.ForceUpdate
	p.CurrentPhase = types.PhaseInitialization
	if req.RateLimitMs > 0 {
		p.RateLimitMs = req.RateLimitMs
	} else {
		p.RateLimitMs = c.opts.DefaultRateLimitMs
	}
	if req.MaxConcurrentDownloads > 0 {
		p.MaxConcurrentDownloads = req.MaxConcurrentDownloads
	} else {
		p.MaxConcurrentDownloads = c.opts.DefaultMaxDownloads
	}

	if err := c.progress.Save(ctx, p); err != nil {
		return "", err
	}

	c.launch(operationID)
	logging.Bulk("started operation %s (%s .. %s, force=%v)",
		operationID, fmtDate(p.StartDate), fmtDate(p.EndDate), p.ForceUpdate)
	return operationID, nil
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "auto"
	}
	return t.Format("2006-01-02")
}

// launch runs the campaign goroutine for an operation.
func (c *Coordinator) launch(operationID string) {
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.running[operationID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.running, operationID)
			c.mu.Unlock()
			cancel()
		}()
		c.execute(runCtx, operationID)
	}()
}

// execute drives one campaign from discovery through completion.
func (c *Coordinator) execute(ctx context.Context, operationID string) {
	p, err := c.progress.FindByOperationID(ctx, operationID)
	if err != nil || p == nil {
		logging.BulkError("operation %s vanished before start: %v", operationID, err)
		return
	}

	p.Status = types.BulkDiscovering
	p.CurrentPhase = types.PhaseDiscovery
	p.StartedAt = time.Now().UTC()
	c.checkpoint(ctx, p)

	dates, err := c.discoverDates(ctx, p)
	if err != nil {
		c.failOperation(ctx, p, fmt.Sprintf("discovery failed: %v", err))
		return
	}
	p.DiscoveryTimeMs = time.Since(p.StartedAt).Milliseconds()
	p.TotalDatesDiscovered = len(dates)
	p.EstimatedTotalDocuments = int64(len(dates)) * estimatedDocsPerDate
	p.Status = types.BulkCrawling
	p.CurrentPhase = types.PhaseCrawling
	c.checkpoint(ctx, p)

	logging.Bulk("operation %s: %d dates to crawl", operationID, len(dates))
	c.crawlDates(ctx, p, dates)
}

// discoverDates resolves the campaign's date list: an explicit range, or
// full-archive discovery when none was given.
func (c *Coordinator) discoverDates(ctx context.Context, p *types.BulkCrawlProgress) ([]time.Time, error) {
	var result *types.DiscoveryResult
	var err error
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		result, err = c.discovery.DiscoverFull(ctx)
	} else {
		result, err = c.discovery.DiscoverRange(ctx, p.StartDate, p.EndDate)
	}
	if err != nil {
		return nil, err
	}
	return result.AvailableDates, nil
}

// crawlDates runs the per-date loop. The persisted record is re-read at
// every boundary so pause and cancel requests written by controllers take
// effect without any shared in-process state.
func (c *Coordinator) crawlDates(ctx context.Context, p *types.BulkCrawlProgress, dates []time.Time) {
	c.downloader.SetRateLimit(p.RateLimitMs)
	saveInterval := time.Duration(c.opts.ProgressUpdateIntervalMs) * time.Millisecond
	lastSave := time.Now()

	for i, date := range dates {
		// Only the control latches come from the re-read; the in-memory
		// record carries counters not yet checkpointed.
		latest, err := c.progress.FindByOperationID(ctx, p.OperationID)
		if err == nil && latest != nil {
			p.PauseRequested = latest.PauseRequested
			p.CancelRequested = latest.CancelRequested
		}

		if p.CancelRequested {
			c.finish(ctx, p, types.BulkCancelled, "")
			return
		}
		if p.PauseRequested {
			p.Status = types.BulkPaused
			p.PausedAt = time.Now().UTC()
			p.PauseRequested = false
			c.save(ctx, p)
			logging.Bulk("operation %s paused at date %s", p.OperationID, fmtDate(date))
			return
		}
		if ctx.Err() != nil {
			c.finish(ctx, p, types.BulkCancelled, "context cancelled")
			return
		}

		if p.HasProcessedDate(date) {
			continue
		}

		p.CurrentProcessingDate = date
		began := time.Now()
		result, err := c.orchestrator.Crawl(ctx, date, p.ForceUpdate)
		p.DownloadTimeMs += time.Since(began).Milliseconds()

		if err != nil {
			logging.BulkWarn("operation %s: date %s failed: %v", p.OperationID, fmtDate(date), err)
			p.AddFailedDate(date)
		} else {
			p.AddProcessedDate(date)
			p.TotalDocumentsFound += result.TotalProcessed() + result.FailedDocuments
			p.DocumentsProcessed += result.TotalProcessed()
			p.DocumentsSucceeded += result.TotalProcessed()
			p.DocumentsFailed += result.FailedDocuments
		}
		p.DatesProcessed++

		p.UpdateProcessingRate()
		p.UpdateEstimatedCompletion()
		if (i+1)%saveEveryDates == 0 || time.Since(lastSave) >= saveInterval {
			c.checkpoint(ctx, p)
			lastSave = time.Now()
		}

		if delay := time.Duration(p.RateLimitMs) * time.Millisecond; delay > 0 && i < len(dates)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	c.finish(ctx, p, types.BulkCompleted, "")
}

func (c *Coordinator) finish(ctx context.Context, p *types.BulkCrawlProgress, status types.BulkCrawlStatus, message string) {
	p.Status = status
	p.CurrentPhase = types.PhaseCompleted
	p.CompletedAt = time.Now().UTC()
	p.TotalProcessingTimeMs = p.DurationMs()
	if message != "" {
		p.ErrorMessage = message
	}
	// The campaign context may already be cancelled; the terminal state
	// still has to reach the store.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	c.save(saveCtx, p)
	logging.Bulk("operation %s finished: %s (%d dates, %d documents, %d failed)",
		p.OperationID, status, p.DatesProcessed, p.DocumentsSucceeded, p.DocumentsFailed)
}

func (c *Coordinator) failOperation(ctx context.Context, p *types.BulkCrawlProgress, message string) {
	p.Status = types.BulkFailed
	p.ErrorMessage = message
	p.CompletedAt = time.Now().UTC()
	p.RetryCount++
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	c.save(saveCtx, p)
	logging.BulkError("operation %s failed: %s", p.OperationID, message)
}

func (c *Coordinator) save(ctx context.Context, p *types.BulkCrawlProgress) {
	if err := c.progress.Save(ctx, p); err != nil {
		logging.BulkError("could not save progress for %s: %v", p.OperationID, err)
	}
}

// checkpoint persists in-flight progress. The pause and cancel latches are
// write-once from the controller side, so the persisted values are merged in
// first; a plain save here would erase a request made while the current date
// was mid-crawl.
func (c *Coordinator) checkpoint(ctx context.Context, p *types.BulkCrawlProgress) {
	latest, err := c.progress.FindByOperationID(ctx, p.OperationID)
	if err == nil && latest != nil {
		p.PauseRequested = p.PauseRequested || latest.PauseRequested
		p.CancelRequested = p.CancelRequested || latest.CancelRequested
	}
	c.save(ctx, p)
}

// Pause requests a pause. The campaign observes the latch at its next date
// boundary.
func (c *Coordinator) Pause(ctx context.Context, operationID string) error {
	p, err := c.progress.FindByOperationID(ctx, operationID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("unknown operation %s", operationID)
	}
	if !p.IsRunning() {
		return fmt.Errorf("operation %s is not running (status %s)", operationID, p.Status)
	}
	p.PauseRequested = true
	return c.progress.Save(ctx, p)
}

// Resume relaunches a paused campaign. Already processed dates are skipped
// by the date loop.
func (c *Coordinator) Resume(ctx context.Context, operationID string) error {
	p, err := c.progress.FindByOperationID(ctx, operationID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("unknown operation %s", operationID)
	}
	if !p.IsPaused() {
		return fmt.Errorf("operation %s is not paused (status %s)", operationID, p.Status)
	}

	active, err := c.progress.FindActive(ctx)
	if err != nil {
		return err
	}
	if len(active) >= c.opts.MaxConcurrentOperations {
		return fmt.Errorf("too many active operations (%d), limit is %d",
			len(active), c.opts.MaxConcurrentOperations)
	}

	p.Status = types.BulkResuming
	p.PauseRequested = false
	if err := c.progress.Save(ctx, p); err != nil {
		return err
	}

	c.launch(operationID)
	logging.Bulk("operation %s resuming", operationID)
	return nil
}

// Cancel requests cancellation. A running campaign observes the latch at
// its next date boundary; a paused one is finalized immediately.
func (c *Coordinator) Cancel(ctx context.Context, operationID string) error {
	p, err := c.progress.FindByOperationID(ctx, operationID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("unknown operation %s", operationID)
	}
	if p.IsCompleted() {
		return fmt.Errorf("operation %s already finished (status %s)", operationID, p.Status)
	}

	if p.IsPaused() {
		c.finish(ctx, p, types.BulkCancelled, "")
		return nil
	}
	p.CancelRequested = true
	return c.progress.Save(ctx, p)
}

// Get returns the current progress record for an operation, or nil.
func (c *Coordinator) Get(ctx context.Context, operationID string) (*types.BulkCrawlProgress, error) {
	return c.progress.FindByOperationID(ctx, operationID)
}

// ListActive returns all running operations.
func (c *Coordinator) ListActive(ctx context.Context) ([]*types.BulkCrawlProgress, error) {
	return c.progress.FindActive(ctx)
}

// ListRecent returns operations created in the last given number of days.
func (c *Coordinator) ListRecent(ctx context.Context, days int) ([]*types.BulkCrawlProgress, error) {
	return c.progress.FindRecent(ctx, time.Now().UTC().AddDate(0, 0, -days))
}

// Statistics aggregates outcomes across all operations.
func (c *Coordinator) Statistics(ctx context.Context) (*types.BulkStatistics, error) {
	return c.progress.Statistics(ctx)
}

// CleanupOld removes COMPLETED and CANCELLED operations older than the
// given number of days.
func (c *Coordinator) CleanupOld(ctx context.Context, days int) (int64, error) {
	return c.progress.DeleteOldCompleted(ctx, time.Now().UTC().AddDate(0, 0, -days))
}

// ReapStuck marks operations as FAILED when they claim to be running but
// started longer ago than the stuck threshold. Returns how many were
// reaped.
func (c *Coordinator) ReapStuck(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(c.opts.StuckTimeoutHours) * time.Hour)
	stuck, err := c.progress.FindStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, p := range stuck {
		c.mu.Lock()
		_, stillRunning := c.running[p.OperationID]
		c.mu.Unlock()
		if stillRunning {
			continue
		}
		p.Status = types.BulkFailed
		p.ErrorMessage = fmt.Sprintf("stuck: no progress since %s", p.StartedAt.Format(time.RFC3339))
		p.CompletedAt = time.Now().UTC()
		if err := c.progress.Save(ctx, p); err != nil {
			logging.BulkError("could not reap %s: %v", p.OperationID, err)
			continue
		}
		reaped++
		logging.BulkWarn("reaped stuck operation %s", p.OperationID)
	}
	return reaped, nil
}

// Shutdown cancels all running campaigns and waits for their goroutines.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
