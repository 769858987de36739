package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eclicrawler/internal/types"
)

func testDoc(id, court string, decided time.Time) *types.LegalDocument {
	doc := types.NewLegalDocument(id, court, "https://example.com/doc?docid="+id)
	doc.DecisionDate = decided
	doc.CrawledAt = time.Now().UTC()
	doc.Status = types.StatusProcessed
	doc.Title = "Urteil " + id
	return doc
}

func newArchive(t *testing.T) *ArchiveStore {
	t.Helper()
	a, err := NewArchiveStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchiveStore failed: %v", err)
	}
	return a
}

func TestArchivePathLayout(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	doc := testDoc("KARE600012345", "BAG", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC))
	path, err := a.StoreContent(ctx, doc, "<judgment/>")
	if err != nil {
		t.Fatalf("StoreContent failed: %v", err)
	}

	want := filepath.Join(a.BasePath(), "bag", "2023", "05", "KARE600012345.xml")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if doc.FilePath != want {
		t.Errorf("FilePath not recorded on the document")
	}

	// The path is deterministic: storing again lands on the same file.
	again, err := a.StoreContent(ctx, doc, "<judgment/>")
	if err != nil {
		t.Fatalf("second StoreContent failed: %v", err)
	}
	if again != want {
		t.Errorf("second path = %q, want %q", again, want)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("stored XML unreadable: %v", err)
	}
	if string(data) != "<judgment/>" {
		t.Errorf("stored content = %q", data)
	}
}

func TestArchiveUpsertAndFind(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	doc := testDoc("KORE600054321", "BGH", time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC))
	if err := a.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := a.FindByDocumentID(ctx, "KORE600054321")
	if err != nil {
		t.Fatalf("FindByDocumentID failed: %v", err)
	}
	if got == nil || got.Title != doc.Title {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	missing, err := a.FindByDocumentID(ctx, "NOPE")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Error("missing documents must return nil, nil")
	}
}

func TestArchiveUpsertMovesRelocatedDocument(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	doc := testDoc("WBRE100000001", "UNKNOWN", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := a.StoreContent(ctx, doc, "<doc/>"); err != nil {
		t.Fatalf("StoreContent failed: %v", err)
	}
	oldMeta := filepath.Join(a.BasePath(), "unknown", "2023", "01", "WBRE100000001.json")

	// The crawl later learns the real court.
	doc.Court = "BVerwG"
	if err := a.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if _, err := os.Stat(oldMeta); !os.IsNotExist(err) {
		t.Error("old metadata sidecar should be removed after the move")
	}
	got, err := a.FindByDocumentID(ctx, "WBRE100000001")
	if err != nil || got == nil {
		t.Fatalf("document lost after move: %v", err)
	}
	if got.Court != "BVerwG" {
		t.Errorf("court = %q", got.Court)
	}

	count, err := a.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("expected exactly one document after move, got %d", count)
	}
}

func TestArchiveQueries(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	d1 := testDoc("KARE1", "BAG", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	d2 := testDoc("KARE2", "BAG", time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC))
	d3 := testDoc("KORE1", "BGH", time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC))
	d3.Status = types.StatusFailed
	d3.CrawledAt = time.Now().UTC().Add(-2 * time.Hour)
	d3.Ecli = "ECLI:DE:BGH:2023:123"
	for _, d := range []*types.LegalDocument{d1, d2, d3} {
		if err := a.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	byCourt, err := a.FindByCourt(ctx, "bag", 10, 0)
	if err != nil {
		t.Fatalf("FindByCourt failed: %v", err)
	}
	if len(byCourt) != 2 || byCourt[0].DocumentID != "KARE2" {
		t.Errorf("FindByCourt: %v", ids(byCourt))
	}

	paged, err := a.FindByCourt(ctx, "BAG", 1, 1)
	if err != nil || len(paged) != 1 || paged[0].DocumentID != "KARE1" {
		t.Errorf("paged FindByCourt: %v", ids(paged))
	}

	failed, err := a.FindByStatus(ctx, types.StatusFailed)
	if err != nil || len(failed) != 1 || failed[0].DocumentID != "KORE1" {
		t.Errorf("FindByStatus: %v", ids(failed))
	}

	ranged, err := a.FindByDateRange(ctx,
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(ranged) != 2 {
		t.Errorf("FindByDateRange: %v", ids(ranged))
	}

	byEcli, err := a.FindByEcli(ctx, "ecli:de:bgh:2023:123")
	if err != nil || byEcli == nil || byEcli.DocumentID != "KORE1" {
		t.Errorf("FindByEcli: %+v", byEcli)
	}

	exists, err := a.ExistsBySourceURL(ctx, d1.SourceURL)
	if err != nil || !exists {
		t.Error("ExistsBySourceURL should find d1")
	}

	retry, err := a.FindFailedForRetry(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil || len(retry) != 1 {
		t.Errorf("FindFailedForRetry: %v", ids(retry))
	}

	counts, err := a.CountByCourt(ctx)
	if err != nil || counts["BAG"] != 2 || counts["BGH"] != 1 {
		t.Errorf("CountByCourt: %v", counts)
	}
}

func TestArchiveSearchTitle(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	doc := testDoc("KARE9", "BAG", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	doc.Title = "Vergütung von Überstunden"
	if err := a.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := a.SearchTitle(ctx, "überstunden")
	if err != nil || len(hits) != 1 {
		t.Errorf("SearchTitle: %v", ids(hits))
	}
	none, err := a.SearchTitle(ctx, "miete")
	if err != nil || len(none) != 0 {
		t.Errorf("SearchTitle should miss: %v", ids(none))
	}
}

func TestArchiveDeleteAndStats(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	d1 := testDoc("KARE1", "BAG", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	d2 := testDoc("KORE1", "BGH", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, d := range []*types.LegalDocument{d1, d2} {
		if _, err := a.StoreContent(ctx, d, "<doc>content</doc>"); err != nil {
			t.Fatalf("StoreContent failed: %v", err)
		}
	}

	stats, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FileCount != 2 || stats.TotalSizeBytes == 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByCourt["BAG"] != 1 || stats.ByCourt["BGH"] != 1 {
		t.Errorf("per-court stats = %v", stats.ByCourt)
	}

	if err := a.Delete(ctx, "KARE1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := a.FindByDocumentID(ctx, "KARE1"); got != nil {
		t.Error("deleted document still present")
	}
	// Deleting an unknown ID is not an error.
	if err := a.Delete(ctx, "KARE1"); err != nil {
		t.Errorf("second delete errored: %v", err)
	}

	if err := a.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if count, _ := a.Count(ctx); count != 0 {
		t.Errorf("expected empty archive, got %d", count)
	}
}

func ids(docs []*types.LegalDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.DocumentID)
	}
	return out
}
