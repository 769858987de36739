// Package validation composes the sanitizer, the LegalDocML validator, and
// the ECLI extractor into a single validation call producing a structured
// report. Strict mode fails a document on any error; lenient mode fails only
// on sanitization and records everything else.
package validation

import (
	"encoding/xml"
	"io"
	"regexp"
	"strings"

	"eclicrawler/internal/ecli"
	"eclicrawler/internal/legaldocml"
	"eclicrawler/internal/logging"
	"eclicrawler/internal/sanitizer"
)

// Report is the outcome of a comprehensive validation run.
type Report struct {
	Valid              bool     `json:"valid"`
	SanitizationPassed bool     `json:"sanitization_passed"`
	StructureValid     bool     `json:"structure_valid"`
	LegalDocMLFormat   bool     `json:"legaldocml_format"`
	DocumentType       string   `json:"document_type,omitempty"`
	EcliIdentifiers    []string `json:"ecli_identifiers,omitempty"`
	ElementCount       int      `json:"element_count"`
	HasSubstantialContent bool  `json:"has_substantial_content"`
	Validations        []string `json:"validations,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	Errors             []string `json:"errors,omitempty"`
	OriginalSize       int      `json:"original_size"`
	SanitizedSize      int      `json:"sanitized_size"`
}

// QuickReport is the outcome of the fast validation path.
type QuickReport struct {
	Valid              bool `json:"valid"`
	SanitizationPassed bool `json:"sanitization_passed"`
	StructureValid     bool `json:"structure_valid"`
	LegalDocMLFormat   bool `json:"legaldocml_format"`
	EcliCount          int  `json:"ecli_count"`
}

// Options configures the pipeline.
type Options struct {
	SchemaEnabled     bool
	LegalDocMLEnabled bool
	EcliEnabled       bool
	StrictMode        bool
	MaxSizeBytes      int
}

// Service runs the validation pipeline.
type Service struct {
	opts       Options
	sanitizer  *sanitizer.Sanitizer
	legaldocml *legaldocml.Validator
}

// NewService creates a validation service.
func NewService(opts Options) *Service {
	return &Service{
		opts:       opts,
		sanitizer:  sanitizer.New(opts.MaxSizeBytes),
		legaldocml: legaldocml.NewValidator(),
	}
}

var (
	openTagPattern  = regexp.MustCompile(`<[^/!?]`)
	stripTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// Comprehensive validates the content through every stage and returns the
// full report. It never returns a Go error; all failures land in the report.
func (s *Service) Comprehensive(content string) *Report {
	timer := logging.StartTimer(logging.CategoryValidation, "comprehensive validation")
	defer timer.Stop()

	report := &Report{OriginalSize: len(content)}

	sanitized, err := s.sanitizer.Sanitize(content)
	if err != nil {
		report.SanitizationPassed = false
		report.Errors = append(report.Errors, "sanitization failed: "+err.Error())
		if s.opts.StrictMode {
			report.Valid = false
			return report
		}
		// Lenient mode continues with the original content.
		sanitized = content
	} else {
		report.SanitizationPassed = true
	}
	report.SanitizedSize = len(sanitized)

	report.StructureValid = structureParses(sanitized)
	if !report.StructureValid {
		report.Errors = append(report.Errors, "XML structure parse failed")
	}

	if s.opts.SchemaEnabled {
		report.Warnings = append(report.Warnings, "schema validation requested but no schema is configured")
	}

	report.LegalDocMLFormat = legaldocml.IsLegalDocMLFormat(sanitized)
	if report.LegalDocMLFormat && s.opts.LegalDocMLEnabled {
		ldmlReport := s.legaldocml.Validate(sanitized)
		for _, e := range ldmlReport.Errors {
			// Non-fatal in lenient mode, so surfaced as warnings there.
			if s.opts.StrictMode {
				report.Errors = append(report.Errors, "LegalDocML: "+e)
			} else {
				report.Warnings = append(report.Warnings, "LegalDocML: "+e)
			}
		}
		for _, w := range ldmlReport.Warnings {
			report.Warnings = append(report.Warnings, "LegalDocML: "+w)
		}
		report.Validations = append(report.Validations, ldmlReport.Validations...)
		report.DocumentType = s.legaldocml.ExtractDocumentType(sanitized)
	}

	if s.opts.EcliEnabled {
		report.EcliIdentifiers = ecli.ExtractAll(sanitized)
		for _, id := range report.EcliIdentifiers {
			if ecli.IsGerman(id) {
				report.Validations = append(report.Validations, "German ECLI identifier: "+id)
			}
		}
	}

	report.ElementCount = countElements(sanitized)
	report.HasSubstantialContent = hasSubstantialContent(sanitized)

	report.Valid = report.SanitizationPassed && report.StructureValid
	if s.opts.StrictMode {
		report.Valid = report.Valid && len(report.Errors) == 0
	}

	logging.ValidationDebug("validation result: valid=%v elements=%d eclis=%d errors=%d warnings=%d",
		report.Valid, report.ElementCount, len(report.EcliIdentifiers), len(report.Errors), len(report.Warnings))
	return report
}

// Quick runs the fast validation path: sanitize, structure parse, format
// detect, ECLI count. Deep LegalDocML checks are skipped.
func (s *Service) Quick(content string) *QuickReport {
	report := &QuickReport{}

	sanitized, err := s.sanitizer.Sanitize(content)
	if err != nil {
		return report
	}
	report.SanitizationPassed = true

	report.StructureValid = structureParses(sanitized)
	report.LegalDocMLFormat = legaldocml.IsLegalDocMLFormat(sanitized)
	report.EcliCount = len(ecli.ExtractAll(sanitized))
	report.Valid = report.StructureValid

	return report
}

func structureParses(content string) bool {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = true
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	return sawElement
}

func countElements(content string) int {
	return len(openTagPattern.FindAllStringIndex(content, -1))
}

func hasSubstantialContent(content string) bool {
	text := strings.TrimSpace(stripTagPattern.ReplaceAllString(content, " "))
	return len(text) > 100
}
