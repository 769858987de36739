package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

// ArchiveStore keeps documents on the filesystem, laid out as
// <base>/<court-lower>/<year>/<month>/<documentId>.xml with a JSON metadata
// sidecar next to each XML file. Queries walk the sidecars.
type ArchiveStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewArchiveStore creates the archive root if needed.
func NewArchiveStore(basePath string) (*ArchiveStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("archive base path must not be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root %s: %w", basePath, err)
	}
	logging.Store("Archive store ready at %s", basePath)
	return &ArchiveStore{basePath: basePath}, nil
}

// BasePath returns the archive root directory.
func (a *ArchiveStore) BasePath() string {
	return a.basePath
}

// documentDir is deterministic for a given court and decision date.
func (a *ArchiveStore) documentDir(doc *types.LegalDocument) string {
	court := strings.ToLower(doc.Court)
	if court == "" {
		court = "unknown"
	}
	return filepath.Join(a.basePath, court,
		fmt.Sprintf("%04d", doc.DecisionDate.Year()),
		fmt.Sprintf("%02d", int(doc.DecisionDate.Month())))
}

func (a *ArchiveStore) xmlPath(doc *types.LegalDocument) string {
	return filepath.Join(a.documentDir(doc), doc.DocumentID+".xml")
}

func (a *ArchiveStore) metaPath(doc *types.LegalDocument) string {
	return filepath.Join(a.documentDir(doc), doc.DocumentID+".json")
}

// Upsert writes the metadata sidecar. When the document moved (court or
// decision date changed since the last write) the old files are removed so a
// document never exists twice in the tree.
func (a *ArchiveStore) Upsert(ctx context.Context, doc *types.LegalDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.upsertLocked(doc)
}

func (a *ArchiveStore) upsertLocked(doc *types.LegalDocument) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("document ID must not be empty")
	}

	if existing := a.findLocked(doc.DocumentID); existing != nil {
		oldDir := a.documentDir(existing)
		newDir := a.documentDir(doc)
		if oldDir != newDir {
			os.Remove(filepath.Join(oldDir, doc.DocumentID+".xml"))
			os.Remove(filepath.Join(oldDir, doc.DocumentID+".json"))
		}
	}

	dir := a.documentDir(doc)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.DocumentID, err)
	}
	if err := os.WriteFile(a.metaPath(doc), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata for %s: %w", doc.DocumentID, err)
	}
	logging.StoreDebug("archived metadata for %s under %s", doc.DocumentID, dir)
	return nil
}

// StoreContent writes the raw XML next to the sidecar and records the
// resulting path on the document.
func (a *ArchiveStore) StoreContent(ctx context.Context, doc *types.LegalDocument, xmlContent string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir := a.documentDir(doc)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := a.xmlPath(doc)
	if err := os.WriteFile(path, []byte(xmlContent), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	doc.FilePath = path

	if err := a.upsertLocked(doc); err != nil {
		return "", err
	}
	return path, nil
}

func (a *ArchiveStore) findLocked(documentID string) *types.LegalDocument {
	var found *types.LegalDocument
	target := documentID + ".json"
	filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != nil {
			return fs.SkipAll
		}
		if !d.IsDir() && d.Name() == target {
			if doc := readSidecar(path); doc != nil {
				found = doc
				return fs.SkipAll
			}
		}
		return nil
	})
	return found
}

func readSidecar(path string) *types.LegalDocument {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc types.LegalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.StoreWarn("unreadable metadata sidecar %s: %v", path, err)
		return nil
	}
	return &doc
}

// loadAll walks every sidecar in the archive.
func (a *ArchiveStore) loadAll() []*types.LegalDocument {
	var docs []*types.LegalDocument
	filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			if doc := readSidecar(path); doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	return docs
}

// FindByDocumentID returns the document or nil when absent.
func (a *ArchiveStore) FindByDocumentID(ctx context.Context, documentID string) (*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findLocked(documentID), nil
}

// ExistsBySourceURL reports whether any document carries the URL.
func (a *ArchiveStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, doc := range a.loadAll() {
		if doc.SourceURL == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

func byDecisionDateDesc(docs []*types.LegalDocument) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DecisionDate.After(docs[j].DecisionDate)
	})
}

func byCrawledAtDesc(docs []*types.LegalDocument) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CrawledAt.After(docs[j].CrawledAt)
	})
}

// FindByCourt returns a page of the court's documents, newest decision first.
func (a *ArchiveStore) FindByCourt(ctx context.Context, court string, limit, offset int) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if strings.EqualFold(doc.Court, court) {
			docs = append(docs, doc)
		}
	}
	byDecisionDateDesc(docs)
	return page(docs, limit, offset), nil
}

func page(docs []*types.LegalDocument, limit, offset int) []*types.LegalDocument {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// FindByStatus returns all documents in the given status.
func (a *ArchiveStore) FindByStatus(ctx context.Context, status types.DocumentStatus) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if doc.Status == status {
			docs = append(docs, doc)
		}
	}
	byCrawledAtDesc(docs)
	return docs, nil
}

// FindByDateRange returns documents decided in [from, to], newest first.
func (a *ArchiveStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if !doc.DecisionDate.Before(from) && !doc.DecisionDate.After(to) {
			docs = append(docs, doc)
		}
	}
	byDecisionDateDesc(docs)
	return docs, nil
}

// FindByEcli returns the document with the identifier, or nil.
func (a *ArchiveStore) FindByEcli(ctx context.Context, ecli string) (*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, doc := range a.loadAll() {
		if strings.EqualFold(doc.Ecli, ecli) {
			return doc, nil
		}
	}
	return nil, nil
}

// FindByCrawledAfter returns documents crawled after the given time.
func (a *ArchiveStore) FindByCrawledAfter(ctx context.Context, after time.Time) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if doc.CrawledAt.After(after) {
			docs = append(docs, doc)
		}
	}
	byCrawledAtDesc(docs)
	return docs, nil
}

// FindRecent returns documents decided since the given time.
func (a *ArchiveStore) FindRecent(ctx context.Context, since time.Time) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if !doc.DecisionDate.Before(since) {
			docs = append(docs, doc)
		}
	}
	byDecisionDateDesc(docs)
	return docs, nil
}

// SearchTitle returns documents whose title contains the term.
func (a *ArchiveStore) SearchTitle(ctx context.Context, term string) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	term = strings.ToLower(term)
	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if strings.Contains(strings.ToLower(doc.Title), term) {
			docs = append(docs, doc)
		}
	}
	byDecisionDateDesc(docs)
	return docs, nil
}

// SearchText is a plain substring scan across the text fields. The archive
// backend has no ranking; the index backend should be preferred for search.
func (a *ArchiveStore) SearchText(ctx context.Context, term string, maxResults int) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	term = strings.ToLower(term)
	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		haystack := strings.ToLower(strings.Join([]string{
			doc.Title, doc.Summary, doc.FullText, doc.CaseNumber, doc.Ecli,
		}, " "))
		if strings.Contains(haystack, term) {
			docs = append(docs, doc)
			if maxResults > 0 && len(docs) >= maxResults {
				break
			}
		}
	}
	return docs, nil
}

// FindFailedForRetry returns FAILED documents last crawled before olderThan.
func (a *ArchiveStore) FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*types.LegalDocument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var docs []*types.LegalDocument
	for _, doc := range a.loadAll() {
		if doc.Status == types.StatusFailed && doc.CrawledAt.Before(olderThan) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// CountByCourt returns document counts grouped by court.
func (a *ArchiveStore) CountByCourt(ctx context.Context) (map[string]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]int64)
	for _, doc := range a.loadAll() {
		counts[doc.Court]++
	}
	return counts, nil
}

// CountByStatus returns document counts grouped by status.
func (a *ArchiveStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]int64)
	for _, doc := range a.loadAll() {
		counts[string(doc.Status)]++
	}
	return counts, nil
}

// Count returns the total number of documents.
func (a *ArchiveStore) Count(ctx context.Context) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.loadAll())), nil
}

// Delete removes the document's XML and sidecar.
func (a *ArchiveStore) Delete(ctx context.Context, documentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc := a.findLocked(documentID)
	if doc == nil {
		return nil
	}
	os.Remove(a.xmlPath(doc))
	if err := os.Remove(a.metaPath(doc)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", documentID, err)
	}
	return nil
}

// DeleteAll wipes the archive tree and recreates the root.
func (a *ArchiveStore) DeleteAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.RemoveAll(a.basePath); err != nil {
		return fmt.Errorf("failed to clear archive: %w", err)
	}
	return os.MkdirAll(a.basePath, 0o755)
}

// Close is a no-op for the filesystem backend.
func (a *ArchiveStore) Close() error {
	return nil
}

// Stats walks the tree and aggregates file counts and sizes per court.
func (a *ArchiveStore) Stats(ctx context.Context) (*types.StorageStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &types.StorageStats{ByCourt: make(map[string]int64)}
	err := filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".xml") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.FileCount++
		stats.TotalSizeBytes += info.Size()

		rel, err := filepath.Rel(a.basePath, path)
		if err == nil {
			if parts := strings.Split(rel, string(filepath.Separator)); len(parts) > 0 {
				stats.ByCourt[strings.ToUpper(parts[0])]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
