package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"eclicrawler/internal/types"
)

func newProgress(t *testing.T) *ProgressStore {
	t.Helper()
	s, err := NewProgressStore(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("NewProgressStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleProgress(id string, status types.BulkCrawlStatus) *types.BulkCrawlProgress {
	p := types.NewBulkCrawlProgress(id,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
	p.Status = status
	return p
}

func TestProgressSaveRoundTrip(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	p := sampleProgress("bulk-abc12345", types.BulkCrawling)
	p.StartedAt = time.Now().UTC()
	p.DatesProcessed = 7
	p.DocumentsSucceeded = 280
	p.DocumentsFailed = 3
	p.CurrentPhase = types.PhaseCrawling
	p.AddProcessedDate(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.FindByOperationID(ctx, "bulk-abc12345")
	if err != nil {
		t.Fatalf("FindByOperationID failed: %v", err)
	}
	if got == nil {
		t.Fatal("record not found after save")
	}
	if got.DatesProcessed != 7 || got.DocumentsSucceeded != 280 || got.DocumentsFailed != 3 {
		t.Errorf("counters lost: %+v", got)
	}
	if !got.HasProcessedDate(time.Date(2023, 1, 5, 12, 0, 0, 0, time.UTC)) {
		t.Error("processed date list lost")
	}

	// Saving again overwrites in place.
	p.DatesProcessed = 8
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, _ = s.FindByOperationID(ctx, "bulk-abc12345")
	if got.DatesProcessed != 8 {
		t.Errorf("overwrite failed, DatesProcessed = %d", got.DatesProcessed)
	}

	missing, err := s.FindByOperationID(ctx, "bulk-none")
	if err != nil || missing != nil {
		t.Errorf("missing records must return nil, nil; got %v, %v", missing, err)
	}
}

func TestProgressSaveRejectsEmptyID(t *testing.T) {
	s := newProgress(t)
	if err := s.Save(context.Background(), &types.BulkCrawlProgress{}); err == nil {
		t.Fatal("expected error for empty operation ID")
	}
}

func TestProgressStatusQueries(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	records := []*types.BulkCrawlProgress{
		sampleProgress("bulk-run1", types.BulkCrawling),
		sampleProgress("bulk-run2", types.BulkDiscovering),
		sampleProgress("bulk-paused", types.BulkPaused),
		sampleProgress("bulk-done", types.BulkCompleted),
		sampleProgress("bulk-dead", types.BulkFailed),
	}
	for _, p := range records {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	active, err := s.FindActive(ctx)
	if err != nil || len(active) != 2 {
		t.Errorf("FindActive returned %d records, want 2", len(active))
	}
	paused, err := s.FindPaused(ctx)
	if err != nil || len(paused) != 1 || paused[0].OperationID != "bulk-paused" {
		t.Errorf("FindPaused: %v", paused)
	}
	n, err := s.CountByStatus(ctx, types.BulkCompleted)
	if err != nil || n != 1 {
		t.Errorf("CountByStatus = %d", n)
	}
}

func TestProgressFindStuck(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	stale := sampleProgress("bulk-stale", types.BulkCrawling)
	stale.StartedAt = time.Now().UTC().Add(-8 * time.Hour)
	fresh := sampleProgress("bulk-fresh", types.BulkCrawling)
	fresh.StartedAt = time.Now().UTC().Add(-10 * time.Minute)
	// Never started: no StartedAt, must not be reported.
	pending := sampleProgress("bulk-pending", types.BulkDiscovering)
	done := sampleProgress("bulk-done", types.BulkCompleted)
	done.StartedAt = time.Now().UTC().Add(-8 * time.Hour)
	for _, p := range []*types.BulkCrawlProgress{stale, fresh, pending, done} {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	stuck, err := s.FindStuck(ctx, time.Now().UTC().Add(-6*time.Hour))
	if err != nil {
		t.Fatalf("FindStuck failed: %v", err)
	}
	if len(stuck) != 1 || stuck[0].OperationID != "bulk-stale" {
		t.Errorf("FindStuck returned %v", stuck)
	}
}

func TestProgressFindFailedForRetry(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	retryable := sampleProgress("bulk-retry", types.BulkFailed)
	retryable.RetryCount = 1
	exhausted := sampleProgress("bulk-exhausted", types.BulkFailed)
	exhausted.RetryCount = 3
	for _, p := range []*types.BulkCrawlProgress{retryable, exhausted} {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	out, err := s.FindFailedForRetry(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("FindFailedForRetry failed: %v", err)
	}
	if len(out) != 1 || out[0].OperationID != "bulk-retry" {
		t.Errorf("FindFailedForRetry returned %v", out)
	}
}

func TestProgressStatistics(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	done := sampleProgress("bulk-done", types.BulkCompleted)
	done.DocumentsSucceeded = 100
	done.DocumentsFailed = 2
	failed := sampleProgress("bulk-dead", types.BulkFailed)
	failed.DocumentsSucceeded = 10
	cancelled := sampleProgress("bulk-gone", types.BulkCancelled)
	running := sampleProgress("bulk-run", types.BulkCrawling)
	running.DocumentsSucceeded = 40
	for _, p := range []*types.BulkCrawlProgress{done, failed, cancelled, running} {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalOperations != 4 || stats.CompletedOperations != 1 ||
		stats.FailedOperations != 1 || stats.CancelledOperations != 1 ||
		stats.ActiveOperations != 1 {
		t.Errorf("operation counts wrong: %+v", stats)
	}
	if stats.DocumentsSucceeded != 150 || stats.DocumentsFailed != 2 {
		t.Errorf("document counters wrong: %+v", stats)
	}
}

func TestProgressDeleteOldCompleted(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	old := sampleProgress("bulk-old", types.BulkCompleted)
	old.CompletedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := sampleProgress("bulk-recent", types.BulkCompleted)
	recent.CompletedAt = time.Now().UTC()
	// Old but still failed: kept for inspection.
	failed := sampleProgress("bulk-dead", types.BulkFailed)
	failed.CompletedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	for _, p := range []*types.BulkCrawlProgress{old, recent, failed} {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	n, err := s.DeleteOldCompleted(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOldCompleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d records, want 1", n)
	}
	if got, _ := s.FindByOperationID(ctx, "bulk-old"); got != nil {
		t.Error("old completed record survived cleanup")
	}
	if got, _ := s.FindByOperationID(ctx, "bulk-recent"); got == nil {
		t.Error("recent record removed by cleanup")
	}
	if got, _ := s.FindByOperationID(ctx, "bulk-dead"); got == nil {
		t.Error("failed record removed by cleanup")
	}
}

func TestProgressDelete(t *testing.T) {
	s := newProgress(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleProgress("bulk-x", types.BulkCompleted)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "bulk-x"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := s.FindByOperationID(ctx, "bulk-x"); got != nil {
		t.Error("record survived delete")
	}
}
