// Package extract pulls structured metadata out of the portal's HTML/XML
// document pages: title, court, decision date, case number, ECLI, norms,
// subject, the Leitsatz/Tenor/Gruende sections, and a cleaned full text.
// Extraction is best-effort and never fails; unparseable fields stay empty.
package extract

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"eclicrawler/internal/logging"
)

// ExtractedContent holds the fields recovered from a document page.
type ExtractedContent struct {
	Title            string
	Court            string
	CourtRaw         string
	DecisionDate     *time.Time
	CaseNumber       string
	Ecli             string
	DocumentType     string
	Norms            string
	Subject          string
	Leitsatz         string
	Tenor            string
	Gruende          string
	FullText         string
	AdditionalFields map[string]string
}

// courtTokens are the federal court abbreviations recognized during court
// name normalization.
var courtTokens = []string{"BVerfG", "BVerwG", "BPatG", "BGH", "BAG", "BSG", "BFH"}

const maxFullTextLen = 50000

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	charRefPattern    = regexp.MustCompile(`&#x[0-9a-fA-F]+;`)
)

// Extractor parses portal pages.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses the content and recovers all fields it can find.
func (e *Extractor) Extract(content string) *ExtractedContent {
	out := &ExtractedContent{AdditionalFields: make(map[string]string)}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		logging.ExtractDebug("HTML parse failed: %v", err)
		return out
	}

	out.Title = cleanText(findTitle(doc))
	e.extractMetadataTable(doc, out)
	out.Subject = cleanText(findSubject(doc))
	out.Leitsatz = cleanText(findSection(doc, "Leitsatz"))
	out.Tenor = cleanText(findSection(doc, "Tenor"))
	out.Gruende = cleanText(findSection(doc, "Gründe"))
	out.FullText = e.buildFullText(doc, out)

	logging.ExtractDebug("extracted: title=%q court=%q case=%q ecli=%q",
		out.Title, out.Court, out.CaseNumber, out.Ecli)
	return out
}

// extractMetadataTable reads the standard key/value table: a TD30 label
// cell followed by a TD70 or TD70BREAK value cell.
func (e *Extractor) extractMetadataTable(doc *html.Node, out *ExtractedContent) {
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" && hasClass(n, "TD30") {
			label := strings.ToLower(strings.TrimSpace(textContent(n)))
			if value := siblingValue(n); value != "" {
				e.assignField(label, cleanText(value), out)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
}

func (e *Extractor) assignField(label, value string, out *ExtractedContent) {
	switch label {
	case "gericht:":
		out.CourtRaw = value
		out.Court = NormalizeCourt(value)
	case "entscheidungsdatum:":
		if t, err := time.Parse("02.01.2006", value); err == nil {
			t = t.UTC()
			out.DecisionDate = &t
		} else {
			logging.ExtractDebug("unparseable decision date %q", value)
		}
	case "aktenzeichen:":
		out.CaseNumber = value
	case "ecli:":
		out.Ecli = value
	case "dokumenttyp:":
		out.DocumentType = value
	case "normen:":
		out.Norms = value
	default:
		label = strings.TrimSuffix(label, ":")
		if label != "" {
			out.AdditionalFields[label] = value
		}
	}
}

// NormalizeCourt maps a free-form court name to its federal court token,
// or UNKNOWN when no token matches.
func NormalizeCourt(raw string) string {
	lower := strings.ToLower(raw)
	for _, token := range courtTokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return token
		}
	}
	return "UNKNOWN"
}

func (e *Extractor) buildFullText(doc *html.Node, out *ExtractedContent) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(out.Title)
	add(out.Subject)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode &&
			(hasClass(n, "docLayoutText") || hasClass(n, "docLayoutTitel") || hasClass(n, "RspDL")) {
			if text := cleanText(textContent(n)); len(text) > 10 {
				parts = append(parts, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if out.CourtRaw != "" {
		add("Gericht: " + out.CourtRaw)
	}
	if out.DecisionDate != nil {
		add("Entscheidungsdatum: " + out.DecisionDate.Format("02.01.2006"))
	}
	if out.CaseNumber != "" {
		add("Aktenzeichen: " + out.CaseNumber)
	}

	full := cleanText(strings.Join(parts, " "))
	if len(full) > maxFullTextLen {
		full = full[:maxFullTextLen] + "…"
	}
	return full
}

// findTitle returns the text of the first title element.
func findTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			title = textContent(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title
}

// findSubject returns the first paragraph under the document layout title
// block, falling back to the first dd paragraph of an RspDL list.
func findSubject(doc *html.Node) string {
	var subject string
	var traverse func(n *html.Node, inTitel, inRspDL bool)
	traverse = func(n *html.Node, inTitel, inRspDL bool) {
		if subject != "" {
			return
		}
		if n.Type == html.ElementNode {
			if hasClass(n, "docLayoutTitel") {
				inTitel = true
			}
			if hasClass(n, "RspDL") {
				inRspDL = true
			}
			if n.Data == "p" && (inTitel || inRspDL) {
				subject = textContent(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c, inTitel, inRspDL)
		}
	}
	traverse(doc, false, false)
	return subject
}

// findSection locates a heading whose text equals the section name and
// returns the text of the following container element.
func findSection(doc *html.Node, name string) string {
	var section string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if section != "" {
			return
		}
		if n.Type == html.ElementNode && isHeading(n.Data) {
			if strings.EqualFold(strings.TrimSpace(textContent(n)), name) {
				if next := nextElementSibling(n); next != nil {
					section = textContent(next)
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return section
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "dt", "strong":
		return true
	}
	return false
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// siblingValue returns the text of the next TD70 or TD70BREAK cell after a
// label cell.
func siblingValue(td *html.Node) string {
	for s := td.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.Data == "td" {
			if hasClass(s, "TD70") || hasClass(s, "TD70BREAK") {
				return textContent(s)
			}
			return ""
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return sb.String()
}

// cleanText collapses whitespace and strips separator pipes and leftover
// numeric character references.
func cleanText(s string) string {
	s = charRefPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "|", " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
