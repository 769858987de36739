package types

import "time"

// BulkCrawlStatus tracks a bulk campaign through its state machine.
type BulkCrawlStatus string

const (
	BulkInitializing BulkCrawlStatus = "INITIALIZING" // Setting up the operation
	BulkDiscovering  BulkCrawlStatus = "DISCOVERING"  // Discovering available sitemap dates
	BulkCrawling     BulkCrawlStatus = "CRAWLING"     // Actively crawling documents
	BulkPaused       BulkCrawlStatus = "PAUSED"       // Temporarily paused
	BulkResuming     BulkCrawlStatus = "RESUMING"     // Resuming from pause
	BulkCompleted    BulkCrawlStatus = "COMPLETED"    // Successfully completed
	BulkFailed       BulkCrawlStatus = "FAILED"       // Failed with errors
	BulkCancelled    BulkCrawlStatus = "CANCELLED"    // Cancelled by operator
)

// Campaign phases recorded in CurrentPhase.
const (
	PhaseInitialization = "INITIALIZATION"
	PhaseDiscovery      = "DISCOVERY"
	PhaseCrawling       = "CRAWLING"
	PhaseCompleted      = "COMPLETED"
)

// BulkCrawlProgress is the persisted state of a bulk crawl campaign.
// The coordinator owns the record while the campaign runs; pause and cancel
// requests are write-once latches set by a controller and observed by the
// coordinator at date boundaries.
type BulkCrawlProgress struct {
	OperationID string          `json:"operation_id"`
	Status      BulkCrawlStatus `json:"status"`

	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	PausedAt    time.Time `json:"paused_at,omitempty"`

	TotalDatesDiscovered int `json:"total_dates_discovered"`
	DatesProcessed       int `json:"dates_processed"`
	TotalSitemapsFound   int `json:"total_sitemaps_found"`
	SitemapsProcessed    int `json:"sitemaps_processed"`
	TotalDocumentsFound  int `json:"total_documents_found"`
	DocumentsProcessed   int `json:"documents_processed"`
	DocumentsSucceeded   int `json:"documents_succeeded"`
	DocumentsFailed      int `json:"documents_failed"`

	EstimatedTotalDocuments   int64   `json:"estimated_total_documents"`
	EstimatedCompletionTimeMs int64   `json:"estimated_completion_time_ms"`
	ProcessingRatePerMinute   float64 `json:"processing_rate_docs_per_minute"`

	CurrentPhase          string    `json:"current_phase,omitempty"`
	CurrentProcessingDate time.Time `json:"current_processing_date,omitempty"`
	CurrentSitemapURL     string    `json:"current_sitemap_url,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	PauseRequested  bool `json:"pause_requested"`
	CancelRequested bool `json:"cancel_requested"`

	// Configuration snapshot
	ForceUpdate            bool  `json:"force_update"`
	RateLimitMs            int64 `json:"rate_limit_ms"`
	MaxConcurrentDownloads int   `json:"max_concurrent_downloads"`

	// Statistics
	TotalProcessingTimeMs int64 `json:"total_processing_time_ms"`
	DiscoveryTimeMs       int64 `json:"discovery_time_ms"`
	DownloadTimeMs        int64 `json:"download_time_ms"`

	ProcessedDates []time.Time `json:"processed_dates,omitempty"`
	FailedDates    []time.Time `json:"failed_dates,omitempty"`
}

// NewBulkCrawlProgress creates a campaign record in the INITIALIZING state.
func NewBulkCrawlProgress(operationID string, startDate, endDate time.Time) *BulkCrawlProgress {
	return &BulkCrawlProgress{
		OperationID:            operationID,
		Status:                 BulkInitializing,
		StartDate:              startDate,
		EndDate:                endDate,
		CreatedAt:              time.Now().UTC(),
		RateLimitMs:            2000,
		MaxConcurrentDownloads: 5,
	}
}

// ProgressPercentage estimates completion. Falls back to date progress when
// no document estimate is available.
func (p *BulkCrawlProgress) ProgressPercentage() float64 {
	if p.EstimatedTotalDocuments == 0 {
		if p.TotalDatesDiscovered == 0 {
			return 0
		}
		return float64(p.DatesProcessed) / float64(p.TotalDatesDiscovered) * 100.0
	}
	return float64(p.DocumentsProcessed) / float64(p.EstimatedTotalDocuments) * 100.0
}

// IsRunning reports whether the coordinator currently owns the record.
func (p *BulkCrawlProgress) IsRunning() bool {
	return p.Status == BulkDiscovering || p.Status == BulkCrawling || p.Status == BulkResuming
}

// IsCompleted reports whether the campaign reached a terminal state.
func (p *BulkCrawlProgress) IsCompleted() bool {
	return p.Status == BulkCompleted || p.Status == BulkCancelled || p.Status == BulkFailed
}

// IsPaused reports whether the campaign is paused.
func (p *BulkCrawlProgress) IsPaused() bool {
	return p.Status == BulkPaused
}

// AddProcessedDate records a date as processed, once.
func (p *BulkCrawlProgress) AddProcessedDate(date time.Time) {
	for _, d := range p.ProcessedDates {
		if SameDay(d, date) {
			return
		}
	}
	p.ProcessedDates = append(p.ProcessedDates, Day(date))
}

// AddFailedDate records a date as failed, once.
func (p *BulkCrawlProgress) AddFailedDate(date time.Time) {
	for _, d := range p.FailedDates {
		if SameDay(d, date) {
			return
		}
	}
	p.FailedDates = append(p.FailedDates, Day(date))
}

// HasProcessedDate reports whether the date was already processed or failed.
func (p *BulkCrawlProgress) HasProcessedDate(date time.Time) bool {
	for _, d := range p.ProcessedDates {
		if SameDay(d, date) {
			return true
		}
	}
	for _, d := range p.FailedDates {
		if SameDay(d, date) {
			return true
		}
	}
	return false
}

// DurationMs returns elapsed wall time since StartedAt, frozen at
// CompletedAt for finished campaigns.
func (p *BulkCrawlProgress) DurationMs() int64 {
	if p.StartedAt.IsZero() {
		return 0
	}
	end := time.Now().UTC()
	if !p.CompletedAt.IsZero() {
		end = p.CompletedAt
	}
	return end.Sub(p.StartedAt).Milliseconds()
}

// UpdateProcessingRate recomputes the documents-per-minute rate from the
// campaign duration.
func (p *BulkCrawlProgress) UpdateProcessingRate() {
	durationMs := p.DurationMs()
	if durationMs > 0 && p.DocumentsProcessed > 0 {
		minutes := float64(durationMs) / (1000.0 * 60.0)
		p.ProcessingRatePerMinute = float64(p.DocumentsProcessed) / minutes
	}
}

// UpdateEstimatedCompletion recomputes the ETA from the current rate and
// the document estimate.
func (p *BulkCrawlProgress) UpdateEstimatedCompletion() {
	if p.ProcessingRatePerMinute > 0 && p.EstimatedTotalDocuments > int64(p.DocumentsProcessed) {
		remaining := p.EstimatedTotalDocuments - int64(p.DocumentsProcessed)
		remainingMinutes := float64(remaining) / p.ProcessingRatePerMinute
		p.EstimatedCompletionTimeMs = time.Now().UnixMilli() + int64(remainingMinutes*60*1000)
	}
}

// BulkStatistics aggregates campaign outcomes across the progress store.
type BulkStatistics struct {
	TotalOperations     int64 `json:"total_operations"`
	CompletedOperations int64 `json:"completed_operations"`
	FailedOperations    int64 `json:"failed_operations"`
	CancelledOperations int64 `json:"cancelled_operations"`
	ActiveOperations    int64 `json:"active_operations"`
	DocumentsSucceeded  int64 `json:"documents_succeeded"`
	DocumentsFailed     int64 `json:"documents_failed"`
}
