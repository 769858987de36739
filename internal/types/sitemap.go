package types

import (
	"sort"
	"time"
)

// SitemapEntry is one document reference from a leaf sitemap.
type SitemapEntry struct {
	URL          string     `json:"url"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	DocumentID   string     `json:"document_id"`
}

// DiscoveryResult reports which dates in a probed range carry usable
// sitemaps. Date lists are sorted ascending.
type DiscoveryResult struct {
	AvailableDates []time.Time `json:"available_dates"`
	FailedDates    []time.Time `json:"failed_dates"`
	DurationMs     int64       `json:"duration_ms"`
	TotalChecked   int         `json:"total_checked"`
}

// Earliest returns the first available date, or the zero time when none.
func (r *DiscoveryResult) Earliest() time.Time {
	if len(r.AvailableDates) == 0 {
		return time.Time{}
	}
	return r.AvailableDates[0]
}

// Latest returns the last available date, or the zero time when none.
func (r *DiscoveryResult) Latest() time.Time {
	if len(r.AvailableDates) == 0 {
		return time.Time{}
	}
	return r.AvailableDates[len(r.AvailableDates)-1]
}

// SuccessRate returns the fraction of probed dates that were available.
func (r *DiscoveryResult) SuccessRate() float64 {
	if r.TotalChecked == 0 {
		return 0
	}
	return float64(len(r.AvailableDates)) / float64(r.TotalChecked)
}

// SortDates normalizes both date lists to ascending order.
func (r *DiscoveryResult) SortDates() {
	sort.Slice(r.AvailableDates, func(i, j int) bool { return r.AvailableDates[i].Before(r.AvailableDates[j]) })
	sort.Slice(r.FailedDates, func(i, j int) bool { return r.FailedDates[i].Before(r.FailedDates[j]) })
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
