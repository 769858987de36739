package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/sitemap"
	"eclicrawler/internal/store"
	"eclicrawler/internal/types"
)

// courtPrefixes maps the portal's document ID prefixes to courts.
var courtPrefixes = map[string]string{
	"KARE": "BAG",
	"KORE": "BGH",
	"KSRE": "BSG",
	"WBRE": "BVerwG",
}

// InferCourt derives the court from a document ID prefix, falling back to
// UNKNOWN for unrecognized prefixes.
func InferCourt(documentID string) string {
	if len(documentID) >= 4 {
		if court, ok := courtPrefixes[strings.ToUpper(documentID[:4])]; ok {
			return court
		}
	}
	return "UNKNOWN"
}

// failedRetryAge is how old a FAILED document must be before the retry
// sweep picks it up again.
const failedRetryAge = time.Hour

// Orchestrator runs complete per-date crawls: sitemap index, leaf sitemaps,
// then each document through the downloader.
type Orchestrator struct {
	fetcher        *sitemap.Fetcher
	downloader     *Downloader
	docs           store.DocumentStore
	maxConcurrency int
}

// NewOrchestrator wires a per-date crawl pipeline.
func NewOrchestrator(fetcher *sitemap.Fetcher, downloader *Downloader, docs store.DocumentStore, maxConcurrency int) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Orchestrator{
		fetcher:        fetcher,
		downloader:     downloader,
		docs:           docs,
		maxConcurrency: maxConcurrency,
	}
}

// Crawl processes every document listed in the date's sitemaps. Documents
// already fetched successfully are skipped unless force is set. The result
// tallies new, updated, and failed documents; a missing daily index is an
// error, a failing individual document is not.
func (o *Orchestrator) Crawl(ctx context.Context, date time.Time, force bool) (*types.CrawlResult, error) {
	timer := logging.StartTimer(logging.CategoryCrawler, "crawl "+date.Format("2006-01-02"))
	defer timer.Stop()

	leafURLs, err := o.fetcher.FetchIndex(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("crawl for %s failed: %w", date.Format("2006-01-02"), err)
	}

	result := &types.CrawlResult{Date: types.Day(date)}
	var mu sync.Mutex

	for _, leafURL := range leafURLs {
		entries, err := o.fetcher.FetchLeaf(ctx, leafURL)
		if err != nil {
			logging.CrawlerError("leaf sitemap %s failed: %v", leafURL, err)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.maxConcurrency)
		for _, entry := range entries {
			entry := entry
			g.Go(func() error {
				outcome := o.processEntry(gctx, entry, force)
				mu.Lock()
				switch outcome {
				case outcomeNew:
					result.NewDocuments++
				case outcomeUpdated:
					result.UpdatedDocuments++
				case outcomeFailed:
					result.FailedDocuments++
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	logging.Crawler("crawl %s done: %d new, %d updated, %d failed",
		date.Format("2006-01-02"), result.NewDocuments, result.UpdatedDocuments, result.FailedDocuments)
	return result, nil
}

type entryOutcome int

const (
	outcomeSkipped entryOutcome = iota
	outcomeNew
	outcomeUpdated
	outcomeFailed
)

func (o *Orchestrator) processEntry(ctx context.Context, entry types.SitemapEntry, force bool) entryOutcome {
	if entry.DocumentID == "" {
		logging.CrawlerDebug("skipping sitemap entry without docid: %s", entry.URL)
		return outcomeSkipped
	}

	existing, err := o.docs.FindByDocumentID(ctx, entry.DocumentID)
	if err != nil {
		logging.CrawlerError("lookup failed for %s: %v", entry.DocumentID, err)
		return outcomeFailed
	}
	if existing != nil && existing.IsTerminalSuccess() && !force {
		logging.CrawlerDebug("skipping already fetched document %s", entry.DocumentID)
		return outcomeSkipped
	}

	doc := existing
	isNew := doc == nil
	if isNew {
		doc = types.NewLegalDocument(entry.DocumentID, InferCourt(entry.DocumentID), entry.URL)
	} else {
		doc.SourceURL = entry.URL
	}

	// The record goes in before the download starts, so an interrupted
	// fetch still leaves a PENDING document for the next crawl to pick up.
	if err := o.docs.Upsert(ctx, doc); err != nil {
		logging.CrawlerError("could not record %s before download: %v", entry.DocumentID, err)
		return outcomeFailed
	}

	res := o.downloader.Download(ctx, doc)
	if !res.Success {
		return outcomeFailed
	}
	if isNew {
		return outcomeNew
	}
	return outcomeUpdated
}

// RetryFailed re-downloads FAILED documents older than one hour. Each is
// reset to PENDING before the attempt so a crash leaves it eligible for the
// next sweep. Returns how many documents were retried successfully.
func (o *Orchestrator) RetryFailed(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-failedRetryAge)
	failed, err := o.docs.FindFailedForRetry(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retry sweep query failed: %w", err)
	}
	if len(failed) == 0 {
		return 0, nil
	}

	logging.Crawler("retry sweep: %d failed documents eligible", len(failed))
	succeeded := 0
	for _, doc := range failed {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		doc.Status = types.StatusPending
		if err := o.docs.Upsert(ctx, doc); err != nil {
			logging.CrawlerError("could not reset %s for retry: %v", doc.DocumentID, err)
			continue
		}
		if res := o.downloader.Download(ctx, doc); res.Success {
			succeeded++
		}
	}
	logging.Crawler("retry sweep done: %d/%d recovered", succeeded, len(failed))
	return succeeded, nil
}
