// Package ecli validates, normalizes, and extracts European Case Law
// Identifiers. The grammar is ECLI:<country>:<court>:<year>:<ordinal>, with
// an alternative EU:C:<year>:<ordinal> form used by the Court of Justice.
package ecli

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"eclicrawler/internal/logging"
)

var (
	ecliPattern = regexp.MustCompile(`(?i)^ECLI:[A-Z]{2}:[A-Z][A-Z0-9]{0,6}:\d{4}:[A-Z0-9.]{1,25}$`)
	euPattern   = regexp.MustCompile(`(?i)^[A-Z]{2}:[A-Z]:\d{4}:[A-Z0-9.]{1,25}$`)

	extractPattern = regexp.MustCompile(`(?:ECLI:)?[A-Z]{2}:[A-Z][A-Z0-9]{0,6}:\d{4}:[A-Z0-9.]{1,25}`)
)

// countryCodes holds the accepted jurisdiction codes: the EU member states
// plus the EL/UK aliases and the EU institutions themselves.
var countryCodes = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true,
	"EL": true, "UK": true, "EU": true,
}

// germanCourtCodes are the federal and state court abbreviations expected
// in German ECLIs. Unknown codes are logged, not rejected.
var germanCourtCodes = map[string]bool{
	"BAG": true, "BGH": true, "BSG": true, "BVERWG": true, "BPATG": true,
	"BFH": true, "BVERFG": true, "LAG": true, "OLG": true, "LSG": true,
	"OVG": true, "VG": true, "SG": true, "FG": true, "AG": true,
}

// Components are the parsed parts of a validated ECLI.
type Components struct {
	CountryCode string
	CourtCode   string
	Year        int
	Ordinal     string
}

// Result is the outcome of validating one identifier.
type Result struct {
	Normalized string
	Components Components
	Valid      bool
}

// Normalize trims, upper-cases, and prefixes the identifier with "ECLI:"
// unless it already carries the prefix or uses the EU court form.
func Normalize(s string) string {
	n := strings.ToUpper(strings.TrimSpace(s))
	if n == "" {
		return n
	}
	if strings.HasPrefix(n, "ECLI:") || strings.HasPrefix(n, "EU:") {
		return n
	}
	return "ECLI:" + n
}

// Validate checks an identifier against the ECLI grammar and returns its
// normalized form and components.
func Validate(s string) (Result, error) {
	if strings.TrimSpace(s) == "" {
		return Result{}, fmt.Errorf("ECLI identifier is empty")
	}

	normalized := Normalize(s)

	var parts []string
	switch {
	case ecliPattern.MatchString(normalized):
		parts = strings.Split(normalized, ":")[1:]
	case euPattern.MatchString(normalized):
		parts = strings.Split(normalized, ":")
	default:
		return Result{}, fmt.Errorf("identifier %q does not match the ECLI grammar", normalized)
	}

	comp := Components{
		CountryCode: parts[0],
		CourtCode:   parts[1],
		Ordinal:     parts[3],
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return Result{}, fmt.Errorf("invalid year in %q: %w", normalized, err)
	}
	comp.Year = year

	if !countryCodes[comp.CountryCode] {
		return Result{}, fmt.Errorf("unknown country code %q in %q", comp.CountryCode, normalized)
	}

	maxYear := time.Now().Year() + 1
	if year < 1900 || year > maxYear {
		return Result{}, fmt.Errorf("year %d out of range [1900, %d]", year, maxYear)
	}

	if comp.CountryCode == "DE" && !germanCourtCodes[comp.CourtCode] {
		logging.EcliDebug("unrecognized German court code %q in %s", comp.CourtCode, normalized)
	}

	return Result{Normalized: normalized, Components: comp, Valid: true}, nil
}

// IsValid reports whether the identifier passes validation.
func IsValid(s string) bool {
	_, err := Validate(s)
	return err == nil
}

// IsGerman reports whether a valid identifier names a German court.
func IsGerman(s string) bool {
	res, err := Validate(s)
	return err == nil && res.Components.CountryCode == "DE"
}

// ExtractAll scans free text for ECLI identifiers and returns the sorted
// set of normalized, valid matches. Invalid matches are dropped silently.
func ExtractAll(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	for _, match := range extractPattern.FindAllString(text, -1) {
		res, err := Validate(match)
		if err != nil {
			continue
		}
		seen[res.Normalized] = true
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
