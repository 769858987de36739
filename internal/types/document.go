// Package types defines the persisted and transient entities shared across
// the crawl pipeline: legal documents, bulk campaign progress, sitemap
// entries, and per-crawl result tallies.
package types

import "time"

// DocumentStatus tracks a document through the crawl lifecycle.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusDownloaded DocumentStatus = "DOWNLOADED"
	StatusProcessed  DocumentStatus = "PROCESSED"
	StatusFailed     DocumentStatus = "FAILED"
)

// LegalDocument represents a court decision from the portal.
// DocumentID (the portal's opaque KARE/KORE/KSRE/WBRE identifier) is the
// natural key; exactly one record exists per ID.
type LegalDocument struct {
	DocumentID   string         `json:"document_id"`
	Court        string         `json:"court"`
	Ecli         string         `json:"ecli_identifier,omitempty"`
	SourceURL    string         `json:"source_url"`
	Title        string         `json:"title,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	CaseNumber   string         `json:"case_number,omitempty"`
	DocumentType string         `json:"document_type,omitempty"`
	Norms        string         `json:"norms,omitempty"`
	Leitsatz     string         `json:"leitsatz,omitempty"`
	Tenor        string         `json:"tenor,omitempty"`
	Gruende      string         `json:"gruende,omitempty"`
	FullText     string         `json:"full_text,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	DecisionDate time.Time      `json:"decision_date"`
	CrawledAt    time.Time      `json:"crawled_at,omitempty"`
	Status       DocumentStatus `json:"status"`
}

// NewLegalDocument creates a document in the PENDING state.
// The decision date starts as the creation time; the downloader overwrites
// it from extracted content.
func NewLegalDocument(documentID, court, sourceURL string) *LegalDocument {
	return &LegalDocument{
		DocumentID:   documentID,
		Court:        court,
		SourceURL:    sourceURL,
		DecisionDate: time.Now().UTC(),
		Status:       StatusPending,
	}
}

// IsTerminalSuccess reports whether the document has been fetched, with or
// without passing validation.
func (d *LegalDocument) IsTerminalSuccess() bool {
	return d.Status == StatusDownloaded || d.Status == StatusProcessed
}

// StorageStats summarizes the filesystem archive.
type StorageStats struct {
	FileCount      int64            `json:"file_count"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	ByCourt        map[string]int64 `json:"by_court,omitempty"`
}

// TotalSizeMiB returns the archive size in mebibytes.
func (s StorageStats) TotalSizeMiB() float64 {
	return float64(s.TotalSizeBytes) / (1024.0 * 1024.0)
}

// CrawlResult tallies the outcome of one per-date crawl.
type CrawlResult struct {
	Date             time.Time `json:"date"`
	NewDocuments     int       `json:"new_documents"`
	UpdatedDocuments int       `json:"updated_documents"`
	FailedDocuments  int       `json:"failed_documents"`
}

// TotalProcessed returns the number of documents the crawl touched
// successfully.
func (r CrawlResult) TotalProcessed() int {
	return r.NewDocuments + r.UpdatedDocuments
}
