// Package sitemap fetches the portal's daily ECLI sitemap indices and leaf
// sitemaps, and discovers which dates carry usable sitemap content.
package sitemap

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

// IndexURL builds the daily sitemap index URL for a date.
func IndexURL(baseURL string, date time.Time) string {
	return fmt.Sprintf("%s/jportal/docs/eclicrawler/%04d/%02d/%02d/sitemap_index_1.xml",
		strings.TrimSuffix(baseURL, "/"), date.Year(), int(date.Month()), date.Day())
}

// ParseDocumentID extracts the docid query parameter from a document URL.
// Returns "" when the URL carries no docid.
func ParseDocumentID(loc string) string {
	_, after, found := strings.Cut(loc, "docid=")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// Fetcher retrieves and parses sitemap index and leaf documents.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

// NewFetcher creates a Fetcher. Leaf fetches are paced at one request per
// rateLimitMs; index fetches are not throttled.
func NewFetcher(baseURL, userAgent string, rateLimitMs int64) *Fetcher {
	interval := time.Duration(rateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   baseURL,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
	}
}

// SetRateLimit adjusts the leaf-fetch pacing at runtime.
func (f *Fetcher) SetRateLimit(rateLimitMs int64) {
	interval := time.Duration(rateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	f.limiter.SetLimit(rate.Every(interval))
}

// FetchIndex retrieves the daily sitemap index for a date and returns the
// leaf sitemap URLs it lists.
func (f *Fetcher) FetchIndex(ctx context.Context, date time.Time) ([]string, error) {
	url := IndexURL(f.baseURL, date)
	logging.Sitemap("Fetching sitemap index: %s", url)

	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap index for %s: %w", date.Format("2006-01-02"), err)
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	logging.SitemapDebug("sitemap index for %s lists %d leaf sitemaps", date.Format("2006-01-02"), len(urls))
	return urls, nil
}

// FetchLeaf retrieves one leaf sitemap and returns its document entries.
// The call waits for the rate limiter before issuing the request.
func (f *Fetcher) FetchLeaf(ctx context.Context, url string) ([]types.SitemapEntry, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaf sitemap %s: %w", url, err)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse leaf sitemap %s: %w", url, err)
	}

	entries := make([]types.SitemapEntry, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		entry := types.SitemapEntry{
			URL:        loc,
			DocumentID: ParseDocumentID(loc),
		}
		if u.LastMod != "" {
			if t, err := parseLastMod(u.LastMod); err == nil {
				entry.LastModified = &t
			}
		}
		entries = append(entries, entry)
	}
	logging.SitemapDebug("leaf sitemap %s lists %d entries", url, len(entries))
	return entries, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	return readBody(resp)
}

// readBody reads a response body, transparently decoding gzip when the
// server declares it.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, 64*1024*1024))
}

func parseLastMod(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable lastmod %q", s)
}
