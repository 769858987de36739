package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

// earliestSearchStart anchors the binary search for the first date with
// sitemap content. The portal started publishing daily indices in 2020.
var earliestSearchStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	headProbeTimeout    = 10 * time.Second
	contentProbeTimeout = 15 * time.Second
	maxSearchIterations = 100
	maxSampleDates      = 10
	latestScanBackDays  = 30
)

// DiscoveryConfig tunes the discovery strategies.
type DiscoveryConfig struct {
	MaxConcurrentChecks int
	RateLimitMs         int64
	TimeoutHours        int
	FallbackToFullScan  bool
}

// Discovery answers which dates in a range have sitemaps with real content.
type Discovery struct {
	client    *http.Client
	baseURL   string
	userAgent string
	cfg       DiscoveryConfig
}

// NewDiscovery creates a Discovery service.
func NewDiscovery(baseURL, userAgent string, cfg DiscoveryConfig) *Discovery {
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 10
	}
	if cfg.TimeoutHours <= 0 {
		cfg.TimeoutHours = 2
	}
	return &Discovery{
		client:    &http.Client{Timeout: contentProbeTimeout},
		baseURL:   baseURL,
		userAgent: userAgent,
		cfg:       cfg,
	}
}

func (d *Discovery) rateDelay() time.Duration {
	return time.Duration(d.cfg.RateLimitMs) * time.Millisecond
}

// Exists probes a date with a HEAD request; a 200 means the daily index is
// present.
func (d *Discovery) Exists(ctx context.Context, date time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, headProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, IndexURL(d.baseURL, date), nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ExistsWithContent fetches the daily index and confirms it actually lists
// leaf sitemaps, not just an empty shell.
func (d *Discovery) ExistsWithContent(ctx context.Context, date time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, contentProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, IndexURL(d.baseURL, date), nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := readBody(resp)
	if err != nil {
		return false
	}
	content := string(body)
	return containsSitemapContent(content)
}

func containsSitemapContent(content string) bool {
	return strings.Contains(content, "<sitemap>") && strings.Contains(content, "<loc>")
}

// DiscoverRange probes every date in [start, end] with HEAD requests, in
// batches of MaxConcurrentChecks. The whole operation is bounded by the
// configured timeout; on deadline a partial result is returned without
// error.
func (d *Discovery) DiscoverRange(ctx context.Context, start, end time.Time) (*types.DiscoveryResult, error) {
	start, end = types.Day(start), types.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.TimeoutHours)*time.Hour)
	defer cancel()

	var dates []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day)
	}

	logging.Discovery("Range discovery: %s .. %s (%d dates, batches of %d)",
		start.Format("2006-01-02"), end.Format("2006-01-02"), len(dates), d.cfg.MaxConcurrentChecks)

	began := time.Now()
	available := make([]bool, len(dates))
	checked := make([]bool, len(dates))

	for batchStart := 0; batchStart < len(dates); batchStart += d.cfg.MaxConcurrentChecks {
		if ctx.Err() != nil {
			logging.DiscoveryWarn("range discovery deadline reached after %d dates", batchStart)
			break
		}
		batchEnd := batchStart + d.cfg.MaxConcurrentChecks
		if batchEnd > len(dates) {
			batchEnd = len(dates)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := batchStart; i < batchEnd; i++ {
			i := i
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(d.rateDelay()):
				}
				available[i] = d.Exists(gctx, dates[i])
				checked[i] = true
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &types.DiscoveryResult{DurationMs: time.Since(began).Milliseconds()}
	for i, date := range dates {
		if !checked[i] {
			continue
		}
		result.TotalChecked++
		if available[i] {
			result.AvailableDates = append(result.AvailableDates, date)
		} else {
			result.FailedDates = append(result.FailedDates, date)
		}
	}
	result.SortDates()

	logging.Discovery("Range discovery done: %d/%d available in %dms",
		len(result.AvailableDates), result.TotalChecked, result.DurationMs)
	return result, nil
}

// DiscoverRecent samples up to ten dates from the last daysBack days,
// biased toward the most recent, and content-checks each. When sampling
// finds nothing and fallback is enabled, it degrades to a full scan.
func (d *Discovery) DiscoverRecent(ctx context.Context, daysBack int) (*types.DiscoveryResult, error) {
	if daysBack <= 0 {
		return nil, fmt.Errorf("daysBack must be positive, got %d", daysBack)
	}

	end := types.Day(time.Now().UTC()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(daysBack - 1))
	samples := sampleDates(start, end, maxSampleDates)

	logging.Discovery("Recent discovery: sampling %d of %d dates", len(samples), daysBack)

	began := time.Now()
	result := &types.DiscoveryResult{}
	for _, date := range samples {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.rateDelay()):
		}
		result.TotalChecked++
		if d.ExistsWithContent(ctx, date) {
			result.AvailableDates = append(result.AvailableDates, date)
		} else {
			result.FailedDates = append(result.FailedDates, date)
		}
	}
	result.DurationMs = time.Since(began).Milliseconds()
	result.SortDates()

	if len(result.AvailableDates) == 0 && d.cfg.FallbackToFullScan {
		logging.DiscoveryWarn("sampling found no content, falling back to full range scan")
		return d.DiscoverRange(ctx, start, end)
	}
	return result, nil
}

// sampleDates picks up to max dates from [start, end], walking backward
// from the end so recent dates are preferred, and always including start.
func sampleDates(start, end time.Time, max int) []time.Time {
	totalDays := int(end.Sub(start).Hours()/24) + 1
	if totalDays <= max {
		var all []time.Time
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			all = append(all, day)
		}
		return all
	}

	step := totalDays / max
	if step < 1 {
		step = 1
	}
	var samples []time.Time
	for day := end; !day.Before(start) && len(samples) < max; day = day.AddDate(0, 0, -step) {
		samples = append([]time.Time{day}, samples...)
	}
	if len(samples) == 0 || !types.SameDay(samples[0], start) {
		samples = append([]time.Time{start}, samples...)
	}
	return samples
}

// DiscoverFull locates the earliest and latest dates carrying content and
// delegates to range discovery between them.
func (d *Discovery) DiscoverFull(ctx context.Context) (*types.DiscoveryResult, error) {
	earliest, err := d.findEarliest(ctx)
	if err != nil {
		return nil, err
	}
	latest := d.findLatest(ctx)

	logging.Discovery("Full discovery range: %s .. %s",
		earliest.Format("2006-01-02"), latest.Format("2006-01-02"))
	return d.DiscoverRange(ctx, earliest, latest)
}

// findEarliest binary-searches forward from the anchor date for the first
// date with sitemap content.
func (d *Discovery) findEarliest(ctx context.Context) (time.Time, error) {
	lo := earliestSearchStart
	hi := types.Day(time.Now().UTC()).AddDate(0, 0, -1)

	for i := 0; i < maxSearchIterations && lo.Before(hi); i++ {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(d.rateDelay()):
		}
		mid := lo.Add(hi.Sub(lo) / 2)
		mid = types.Day(mid)
		if d.ExistsWithContent(ctx, mid) {
			hi = mid
		} else {
			lo = mid.AddDate(0, 0, 1)
		}
	}
	logging.DiscoveryDebug("earliest date with content: %s", lo.Format("2006-01-02"))
	return lo, nil
}

// findLatest scans backward from yesterday, up to thirty days, for the
// most recent date with content. Falls back to a week ago when nothing is
// found.
func (d *Discovery) findLatest(ctx context.Context) time.Time {
	yesterday := types.Day(time.Now().UTC()).AddDate(0, 0, -1)
	for i := 0; i < latestScanBackDays; i++ {
		select {
		case <-ctx.Done():
			return yesterday
		case <-time.After(d.rateDelay() / 2):
		}
		date := yesterday.AddDate(0, 0, -i)
		if d.ExistsWithContent(ctx, date) {
			logging.DiscoveryDebug("latest date with content: %s", date.Format("2006-01-02"))
			return date
		}
	}
	return types.Day(time.Now().UTC()).AddDate(0, 0, -7)
}
