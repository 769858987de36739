// Package crawler downloads, validates, and stores individual documents,
// and orchestrates full per-date crawls against the portal's sitemaps.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"eclicrawler/internal/extract"
	"eclicrawler/internal/logging"
	"eclicrawler/internal/store"
	"eclicrawler/internal/types"
	"eclicrawler/internal/validation"
)

// maxDocumentBytes caps a single document download.
const maxDocumentBytes = 32 * 1024 * 1024

var urlWhitespacePattern = regexp.MustCompile(`\s+`)

// DownloadResult is the outcome of a single document download.
type DownloadResult struct {
	Document   *types.LegalDocument
	XMLContent string
	FilePath   string
	Validation *validation.Report
	Success    bool
	Err        error
}

// DownloaderOptions configures the downloader.
type DownloaderOptions struct {
	UserAgent   string
	RateLimitMs int64
	StrictMode  bool

	// AsyncValidation stores the document as soon as the fetch succeeds
	// and wires the validation verdict in afterwards. Ignored in strict
	// mode, which always gates on the verdict.
	AsyncValidation bool

	// ValidationTimeoutSeconds bounds a synchronous validation. Zero
	// means no bound.
	ValidationTimeoutSeconds int
}

// Downloader fetches one document at a time per document ID. Concurrent
// calls for different documents proceed in parallel, paced by a shared rate
// limiter; calls for the same document serialize on a per-ID mutex.
type Downloader struct {
	client    *http.Client
	opts      DownloaderOptions
	limiter   *rate.Limiter
	validator *validation.Service
	extractor *extract.Extractor
	docs      store.DocumentStore

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	validations sync.WaitGroup
}

// NewDownloader creates a Downloader writing into the given store.
func NewDownloader(docs store.DocumentStore, validator *validation.Service, opts DownloaderOptions) *Downloader {
	interval := time.Duration(opts.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Downloader{
		client:    &http.Client{Timeout: 30 * time.Second},
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		validator: validator,
		extractor: extract.NewExtractor(),
		docs:      docs,
	}
}

// SetRateLimit adjusts the download pacing at runtime, for campaigns that
// carry their own rate limit.
func (d *Downloader) SetRateLimit(rateLimitMs int64) {
	interval := time.Duration(rateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	d.limiter.SetLimit(rate.Every(interval))
}

// lockFor returns the mutex guarding one document ID, creating it on first
// use. Lock entries are never removed; the ID space is small enough.
func (d *Downloader) lockFor(documentID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locks == nil {
		d.locks = make(map[string]*sync.Mutex)
	}
	l, ok := d.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[documentID] = l
	}
	return l
}

// Download fetches the document's source URL, validates and extracts its
// content, persists it, and returns the result. The document's status is
// updated in place: PROCESSED when validation passes, DOWNLOADED when the
// fetch succeeded but validation found problems in lenient mode, FAILED on
// fetch errors or strict validation failure.
func (d *Downloader) Download(ctx context.Context, doc *types.LegalDocument) *DownloadResult {
	lock := d.lockFor(doc.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	result := &DownloadResult{Document: doc}

	if err := d.limiter.Wait(ctx); err != nil {
		result.Err = err
		return d.fail(ctx, result, err)
	}

	content, err := d.fetch(ctx, doc.SourceURL)
	if err != nil {
		logging.DownloadError("fetch failed for %s: %v", doc.DocumentID, err)
		return d.fail(ctx, result, err)
	}
	result.XMLContent = content

	if d.opts.AsyncValidation && !d.opts.StrictMode {
		return d.finishAsync(ctx, result, content)
	}

	report, err := d.validate(content)
	if err != nil {
		if d.opts.StrictMode {
			logging.DownloadError("validation of %s: %v", doc.DocumentID, err)
			return d.fail(ctx, result, err)
		}
		logging.DownloadWarn("validation of %s: %v, keeping as DOWNLOADED", doc.DocumentID, err)
	}
	result.Validation = report
	if report != nil && !report.Valid && d.opts.StrictMode {
		err := fmt.Errorf("validation failed for %s: %v", doc.DocumentID, report.Errors)
		logging.DownloadError("%v", err)
		return d.fail(ctx, result, err)
	}

	d.applyExtraction(doc, content)
	if doc.Ecli == "" && report != nil && len(report.EcliIdentifiers) > 0 {
		doc.Ecli = report.EcliIdentifiers[0]
	}

	doc.CrawledAt = time.Now().UTC()
	if report != nil && report.Valid {
		doc.Status = types.StatusProcessed
	} else {
		doc.Status = types.StatusDownloaded
	}

	path, err := d.docs.StoreContent(ctx, doc, content)
	if err != nil {
		logging.DownloadError("store failed for %s: %v", doc.DocumentID, err)
		return d.fail(ctx, result, err)
	}
	result.FilePath = path
	result.Success = true

	logging.Download("stored %s (court=%s status=%s, %d bytes)",
		doc.DocumentID, doc.Court, doc.Status, len(content))
	return result
}

// validate runs the pipeline, bounded by the configured timeout.
func (d *Downloader) validate(content string) (*validation.Report, error) {
	timeout := time.Duration(d.opts.ValidationTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return d.validator.Comprehensive(content), nil
	}
	ch := make(chan *validation.Report, 1)
	go func() { ch <- d.validator.Comprehensive(content) }()
	select {
	case report := <-ch:
		return report, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("validation timed out after %s", timeout)
	}
}

// finishAsync persists the document as DOWNLOADED immediately and promotes
// it to PROCESSED from a background goroutine once validation passes. The
// goroutine takes the document's lock, so it runs after Download returns.
func (d *Downloader) finishAsync(ctx context.Context, result *DownloadResult, content string) *DownloadResult {
	doc := result.Document
	d.applyExtraction(doc, content)
	doc.CrawledAt = time.Now().UTC()
	doc.Status = types.StatusDownloaded

	path, err := d.docs.StoreContent(ctx, doc, content)
	if err != nil {
		logging.DownloadError("store failed for %s: %v", doc.DocumentID, err)
		return d.fail(ctx, result, err)
	}
	result.FilePath = path
	result.Success = true

	d.validations.Add(1)
	go func() {
		defer d.validations.Done()
		report := d.validator.Comprehensive(content)

		lock := d.lockFor(doc.DocumentID)
		lock.Lock()
		defer lock.Unlock()
		if doc.Ecli == "" && len(report.EcliIdentifiers) > 0 {
			doc.Ecli = report.EcliIdentifiers[0]
		}
		if report.Valid {
			doc.Status = types.StatusProcessed
		}
		if err := d.docs.Upsert(context.WithoutCancel(ctx), doc); err != nil {
			logging.DownloadError("could not record validation verdict for %s: %v", doc.DocumentID, err)
		}
	}()
	return result
}

// WaitPendingValidations blocks until all background validations have
// written their verdicts.
func (d *Downloader) WaitPendingValidations() {
	d.validations.Wait()
}

// fail marks the document FAILED and persists the state so the retry sweep
// can find it later. Persistence errors here are logged, not returned; the
// original failure is what the caller needs.
func (d *Downloader) fail(ctx context.Context, result *DownloadResult, err error) *DownloadResult {
	result.Err = err
	doc := result.Document
	doc.Status = types.StatusFailed
	doc.CrawledAt = time.Now().UTC()
	if upErr := d.docs.Upsert(ctx, doc); upErr != nil {
		logging.DownloadError("could not persist failure for %s: %v", doc.DocumentID, upErr)
	}
	return result
}

func (d *Downloader) fetch(ctx context.Context, sourceURL string) (string, error) {
	url := urlWhitespacePattern.ReplaceAllString(sourceURL, "")
	if url == "" {
		return "", fmt.Errorf("empty source URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid document URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml, */*")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	return string(body), nil
}

// applyExtraction merges extracted fields into the document. Extraction is
// best-effort; existing values are only overwritten by non-empty ones.
func (d *Downloader) applyExtraction(doc *types.LegalDocument, content string) {
	ex := d.extractor.Extract(content)

	setIfPresent(&doc.Title, ex.Title)
	setIfPresent(&doc.CaseNumber, ex.CaseNumber)
	setIfPresent(&doc.Ecli, ex.Ecli)
	setIfPresent(&doc.DocumentType, ex.DocumentType)
	setIfPresent(&doc.Norms, ex.Norms)
	setIfPresent(&doc.Subject, ex.Subject)
	setIfPresent(&doc.Leitsatz, ex.Leitsatz)
	setIfPresent(&doc.Tenor, ex.Tenor)
	setIfPresent(&doc.Gruende, ex.Gruende)
	setIfPresent(&doc.FullText, ex.FullText)
	if doc.Summary == "" {
		doc.Summary = ex.Subject
	}

	if ex.Court != "" && ex.Court != "UNKNOWN" {
		doc.Court = ex.Court
	}
	if ex.DecisionDate != nil {
		doc.DecisionDate = *ex.DecisionDate
	}
}

func setIfPresent(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}
