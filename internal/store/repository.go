// Package store persists legal documents and bulk campaign progress.
// One repository contract, two backends: a filesystem archive laid out by
// court/year/month, and a SQLite FTS5 search index. A dual store composes
// both, writing the archive first so the index can always be rebuilt from
// disk.
package store

import (
	"context"
	"time"

	"eclicrawler/internal/types"
)

// Repository is the storage contract for legal documents. Upsert is
// idempotent by document ID; lookups for unknown IDs return nil, not an
// error.
type Repository interface {
	// Upsert inserts or replaces the document keyed by its DocumentID.
	Upsert(ctx context.Context, doc *types.LegalDocument) error

	// FindByDocumentID returns the document, or nil when absent.
	FindByDocumentID(ctx context.Context, documentID string) (*types.LegalDocument, error)

	// ExistsBySourceURL reports whether any document carries the URL.
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)

	// FindByCourt returns documents for a court ordered by decision date
	// descending, paged by limit and offset.
	FindByCourt(ctx context.Context, court string, limit, offset int) ([]*types.LegalDocument, error)

	// FindByStatus returns all documents in the given status.
	FindByStatus(ctx context.Context, status types.DocumentStatus) ([]*types.LegalDocument, error)

	// FindByDateRange returns documents whose decision date falls in
	// [from, to], newest first.
	FindByDateRange(ctx context.Context, from, to time.Time) ([]*types.LegalDocument, error)

	// FindByEcli returns the document with the identifier, or nil.
	FindByEcli(ctx context.Context, ecli string) (*types.LegalDocument, error)

	// FindByCrawledAfter returns documents crawled after the given time,
	// newest first.
	FindByCrawledAfter(ctx context.Context, after time.Time) ([]*types.LegalDocument, error)

	// FindRecent returns documents decided since the given time, newest
	// first.
	FindRecent(ctx context.Context, since time.Time) ([]*types.LegalDocument, error)

	// SearchTitle returns documents whose title contains the term,
	// case-insensitively.
	SearchTitle(ctx context.Context, term string) ([]*types.LegalDocument, error)

	// SearchText runs a ranked full-text query across the text fields.
	SearchText(ctx context.Context, term string, maxResults int) ([]*types.LegalDocument, error)

	// FindFailedForRetry returns FAILED documents last crawled before the
	// given time.
	FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*types.LegalDocument, error)

	// CountByCourt returns document counts grouped by court.
	CountByCourt(ctx context.Context) (map[string]int64, error)

	// CountByStatus returns document counts grouped by status.
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Count returns the total number of documents.
	Count(ctx context.Context) (int64, error)

	// Delete removes the document with the given ID.
	Delete(ctx context.Context, documentID string) error

	// DeleteAll removes every document.
	DeleteAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// DocumentStore extends the repository with raw-content persistence.
type DocumentStore interface {
	Repository

	// StoreContent persists the raw XML body of a document and returns a
	// location reference: a file path for the archive backend, an index
	// reference otherwise.
	StoreContent(ctx context.Context, doc *types.LegalDocument, xmlContent string) (string, error)
}
