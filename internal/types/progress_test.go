package types

import (
	"testing"
	"time"
)

func TestProgressPercentage(t *testing.T) {
	p := NewBulkCrawlProgress("bulk-test0001", time.Time{}, time.Time{})
	if got := p.ProgressPercentage(); got != 0 {
		t.Errorf("empty progress = %v", got)
	}

	// Date-based fallback before any document estimate exists.
	p.TotalDatesDiscovered = 10
	p.DatesProcessed = 4
	if got := p.ProgressPercentage(); got != 40 {
		t.Errorf("date-based progress = %v, want 40", got)
	}

	// Document estimates win once present.
	p.EstimatedTotalDocuments = 200
	p.DocumentsProcessed = 50
	if got := p.ProgressPercentage(); got != 25 {
		t.Errorf("document-based progress = %v, want 25", got)
	}
}

func TestAddProcessedDateDeduplicates(t *testing.T) {
	p := NewBulkCrawlProgress("bulk-test0001", time.Time{}, time.Time{})
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	p.AddProcessedDate(date)
	p.AddProcessedDate(date.Add(14 * time.Hour))
	if len(p.ProcessedDates) != 1 {
		t.Errorf("same day recorded twice: %v", p.ProcessedDates)
	}

	p.AddFailedDate(date.AddDate(0, 0, 1))
	p.AddFailedDate(date.AddDate(0, 0, 1))
	if len(p.FailedDates) != 1 {
		t.Errorf("same failed day recorded twice: %v", p.FailedDates)
	}

	if !p.HasProcessedDate(date) {
		t.Error("processed date not found")
	}
	if !p.HasProcessedDate(date.AddDate(0, 0, 1)) {
		t.Error("failed dates also count as processed")
	}
	if p.HasProcessedDate(date.AddDate(0, 0, 2)) {
		t.Error("unseen date reported as processed")
	}
}

func TestDurationMsFrozenAtCompletion(t *testing.T) {
	p := NewBulkCrawlProgress("bulk-test0001", time.Time{}, time.Time{})
	if p.DurationMs() != 0 {
		t.Error("duration before start should be zero")
	}

	p.StartedAt = time.Now().UTC().Add(-10 * time.Minute)
	if d := p.DurationMs(); d < 9*60*1000 {
		t.Errorf("running duration = %dms", d)
	}

	p.CompletedAt = p.StartedAt.Add(5 * time.Minute)
	want := int64(5 * 60 * 1000)
	if d := p.DurationMs(); d != want {
		t.Errorf("frozen duration = %dms, want %d", d, want)
	}
	// It stays frozen no matter when it is read.
	time.Sleep(5 * time.Millisecond)
	if d := p.DurationMs(); d != want {
		t.Errorf("duration drifted to %dms", d)
	}
}

func TestStatusPredicates(t *testing.T) {
	p := NewBulkCrawlProgress("bulk-test0001", time.Time{}, time.Time{})

	running := []BulkCrawlStatus{BulkDiscovering, BulkCrawling, BulkResuming}
	for _, st := range running {
		p.Status = st
		if !p.IsRunning() || p.IsCompleted() || p.IsPaused() {
			t.Errorf("%s misclassified", st)
		}
	}

	terminal := []BulkCrawlStatus{BulkCompleted, BulkFailed, BulkCancelled}
	for _, st := range terminal {
		p.Status = st
		if p.IsRunning() || !p.IsCompleted() {
			t.Errorf("%s misclassified", st)
		}
	}

	p.Status = BulkPaused
	if !p.IsPaused() || p.IsRunning() || p.IsCompleted() {
		t.Error("PAUSED misclassified")
	}

	p.Status = BulkInitializing
	if p.IsRunning() || p.IsCompleted() || p.IsPaused() {
		t.Error("INITIALIZING misclassified")
	}
}

func TestUpdateProcessingRate(t *testing.T) {
	p := NewBulkCrawlProgress("bulk-test0001", time.Time{}, time.Time{})
	p.StartedAt = time.Now().UTC().Add(-2 * time.Minute)
	p.DocumentsProcessed = 120

	p.UpdateProcessingRate()
	if p.ProcessingRatePerMinute < 55 || p.ProcessingRatePerMinute > 65 {
		t.Errorf("rate = %v docs/min, want about 60", p.ProcessingRatePerMinute)
	}

	p.EstimatedTotalDocuments = 240
	p.UpdateEstimatedCompletion()
	if p.EstimatedCompletionTimeMs <= time.Now().UnixMilli() {
		t.Errorf("ETA in the past: %d", p.EstimatedCompletionTimeMs)
	}
}

func TestDayAndSameDay(t *testing.T) {
	a := time.Date(2024, 3, 5, 23, 45, 0, 0, time.UTC)
	b := time.Date(2024, 3, 5, 0, 1, 0, 0, time.UTC)
	if !SameDay(a, b) {
		t.Error("same UTC date not recognized")
	}
	if SameDay(a, a.Add(time.Hour)) {
		t.Error("dates across midnight treated as the same day")
	}
	if got := Day(a); got.Hour() != 0 || got.Day() != 5 {
		t.Errorf("Day = %v", got)
	}
}

func TestCrawlResultTotals(t *testing.T) {
	r := CrawlResult{NewDocuments: 3, UpdatedDocuments: 2, FailedDocuments: 4}
	if r.TotalProcessed() != 5 {
		t.Errorf("TotalProcessed = %d", r.TotalProcessed())
	}
}
