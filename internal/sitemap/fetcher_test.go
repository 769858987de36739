package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIndexURL(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	want := "https://example.com/jportal/docs/eclicrawler/2024/03/05/sitemap_index_1.xml"
	if got := IndexURL("https://example.com", date); got != want {
		t.Errorf("IndexURL = %q, want %q", got, want)
	}
	// Trailing slash on the base is tolerated.
	if got := IndexURL("https://example.com/", date); got != want {
		t.Errorf("IndexURL with trailing slash = %q, want %q", got, want)
	}
}

func TestParseDocumentID(t *testing.T) {
	cases := map[string]string{
		"https://example.com/doc.xml?docid=KARE600012345":        "KARE600012345",
		"https://example.com/doc.xml?docid=KORE1&format=xml":     "KORE1",
		"https://example.com/doc.xml?format=xml&docid=WBRE2&x=1": "WBRE2",
		"https://example.com/doc.xml":                            "",
	}
	for in, want := range cases {
		if got := ParseDocumentID(in); got != want {
			t.Errorf("ParseDocumentID(%q) = %q, want %q", in, got, want)
		}
	}
}

const indexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap_1.xml</loc></sitemap>
  <sitemap><loc> https://example.com/sitemap_2.xml </loc></sitemap>
  <sitemap><loc></loc></sitemap>
</sitemapindex>`

const leafXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/doc?docid=KARE600012345</loc>
    <lastmod>2024-03-05</lastmod>
  </url>
  <url>
    <loc>https://example.com/doc?docid=KORE600054321</loc>
    <lastmod>2024-03-05T10:30:00Z</lastmod>
  </url>
  <url><loc></loc></url>
</urlset>`

func TestFetchIndex(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(indexXML))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "TestCrawler/1.0", 1)
	urls, err := f.FetchIndex(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchIndex failed: %v", err)
	}

	if len(urls) != 2 {
		t.Fatalf("expected 2 leaf URLs, got %d: %v", len(urls), urls)
	}
	if urls[1] != "https://example.com/sitemap_2.xml" {
		t.Errorf("whitespace not trimmed: %q", urls[1])
	}
	if gotPath != "/jportal/docs/eclicrawler/2024/03/05/sitemap_index_1.xml" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotUA != "TestCrawler/1.0" {
		t.Errorf("unexpected user agent %q", gotUA)
	}
}

func TestFetchIndexNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "TestCrawler/1.0", 1)
	if _, err := f.FetchIndex(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchLeaf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(leafXML))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "TestCrawler/1.0", 1)
	entries, err := f.FetchLeaf(context.Background(), srv.URL+"/sitemap_1.xml")
	if err != nil {
		t.Fatalf("FetchLeaf failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].DocumentID != "KARE600012345" {
		t.Errorf("document ID = %q", entries[0].DocumentID)
	}
	if entries[0].LastModified == nil {
		t.Error("expected parsed lastmod date")
	}
	if entries[1].LastModified == nil || entries[1].LastModified.Hour() != 10 {
		t.Errorf("expected RFC3339 lastmod, got %v", entries[1].LastModified)
	}
}

func TestFetchLeafGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(leafXML))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "TestCrawler/1.0", 1)
	entries, err := f.FetchLeaf(context.Background(), srv.URL+"/sitemap_1.xml.gz")
	if err != nil {
		t.Fatalf("FetchLeaf failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries from gzip body, got %d", len(entries))
	}
}

func TestFetchLeafRespectsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(leafXML))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "TestCrawler/1.0", 50)
	began := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.FetchLeaf(context.Background(), srv.URL); err != nil {
			t.Fatalf("FetchLeaf failed: %v", err)
		}
	}
	// Three paced fetches at 50ms apart take at least 100ms beyond the
	// first immediate token.
	if elapsed := time.Since(began); elapsed < 100*time.Millisecond {
		t.Errorf("rate limiter not applied, took %v", elapsed)
	}
}
