package store

import (
	"context"
	"time"

	"eclicrawler/internal/types"
)

// DualStore composes the archive and the index under one contract. Writes
// hit the archive first so the index can always be rebuilt from disk; reads
// and searches go to the index.
type DualStore struct {
	archive *ArchiveStore
	index   *IndexStore
}

// NewDualStore wires both backends together.
func NewDualStore(archive *ArchiveStore, index *IndexStore) *DualStore {
	return &DualStore{archive: archive, index: index}
}

// Archive exposes the filesystem backend, for stats and rebuilds.
func (d *DualStore) Archive() *ArchiveStore {
	return d.archive
}

// Upsert writes the archive sidecar first, then the index row.
func (d *DualStore) Upsert(ctx context.Context, doc *types.LegalDocument) error {
	if err := d.archive.Upsert(ctx, doc); err != nil {
		return err
	}
	return d.index.Upsert(ctx, doc)
}

// StoreContent writes XML and metadata to the archive, then mirrors the
// document into the index. The returned reference is the archive file path.
func (d *DualStore) StoreContent(ctx context.Context, doc *types.LegalDocument, xmlContent string) (string, error) {
	path, err := d.archive.StoreContent(ctx, doc, xmlContent)
	if err != nil {
		return "", err
	}
	if _, err := d.index.StoreContent(ctx, doc, xmlContent); err != nil {
		return "", err
	}
	return path, nil
}

func (d *DualStore) FindByDocumentID(ctx context.Context, documentID string) (*types.LegalDocument, error) {
	return d.index.FindByDocumentID(ctx, documentID)
}

func (d *DualStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	return d.index.ExistsBySourceURL(ctx, sourceURL)
}

func (d *DualStore) FindByCourt(ctx context.Context, court string, limit, offset int) ([]*types.LegalDocument, error) {
	return d.index.FindByCourt(ctx, court, limit, offset)
}

func (d *DualStore) FindByStatus(ctx context.Context, status types.DocumentStatus) ([]*types.LegalDocument, error) {
	return d.index.FindByStatus(ctx, status)
}

func (d *DualStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]*types.LegalDocument, error) {
	return d.index.FindByDateRange(ctx, from, to)
}

func (d *DualStore) FindByEcli(ctx context.Context, ecli string) (*types.LegalDocument, error) {
	return d.index.FindByEcli(ctx, ecli)
}

func (d *DualStore) FindByCrawledAfter(ctx context.Context, after time.Time) ([]*types.LegalDocument, error) {
	return d.index.FindByCrawledAfter(ctx, after)
}

func (d *DualStore) FindRecent(ctx context.Context, since time.Time) ([]*types.LegalDocument, error) {
	return d.index.FindRecent(ctx, since)
}

func (d *DualStore) SearchTitle(ctx context.Context, term string) ([]*types.LegalDocument, error) {
	return d.index.SearchTitle(ctx, term)
}

func (d *DualStore) SearchText(ctx context.Context, term string, maxResults int) ([]*types.LegalDocument, error) {
	return d.index.SearchText(ctx, term, maxResults)
}

func (d *DualStore) FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*types.LegalDocument, error) {
	return d.index.FindFailedForRetry(ctx, olderThan)
}

func (d *DualStore) CountByCourt(ctx context.Context) (map[string]int64, error) {
	return d.index.CountByCourt(ctx)
}

func (d *DualStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return d.index.CountByStatus(ctx)
}

func (d *DualStore) Count(ctx context.Context) (int64, error) {
	return d.index.Count(ctx)
}

// Delete removes the document from both backends.
func (d *DualStore) Delete(ctx context.Context, documentID string) error {
	if err := d.archive.Delete(ctx, documentID); err != nil {
		return err
	}
	return d.index.Delete(ctx, documentID)
}

// DeleteAll clears both backends.
func (d *DualStore) DeleteAll(ctx context.Context) error {
	if err := d.archive.DeleteAll(ctx); err != nil {
		return err
	}
	return d.index.DeleteAll(ctx)
}

// Close closes both backends.
func (d *DualStore) Close() error {
	aErr := d.archive.Close()
	iErr := d.index.Close()
	if aErr != nil {
		return aErr
	}
	return iErr
}
