// Package sanitizer cleans and security-checks XML content before it enters
// the validation pipeline. It guards against XXE, DOCTYPE injection,
// entity-expansion bombs, oversized payloads, and invalid encodings.
package sanitizer

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"eclicrawler/internal/logging"
)

// ErrorKind classifies a sanitization failure.
type ErrorKind string

const (
	KindGeneric            ErrorKind = "GENERIC_VALIDATION_ERROR"
	KindExternalEntity     ErrorKind = "EXTERNAL_ENTITY_DETECTED"
	KindDoctypeDeclaration ErrorKind = "DOCTYPE_DECLARATION_DETECTED"
	KindXMLBomb            ErrorKind = "XML_BOMB_DETECTED"
	KindInvalidEncoding    ErrorKind = "INVALID_ENCODING"
	KindMalformedXML       ErrorKind = "MALFORMED_XML"
	KindSecurityViolation  ErrorKind = "SECURITY_VIOLATION"
)

// Error is a sanitization failure with its classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind of err, or KindGeneric when err is not a
// sanitizer error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindGeneric
}

var (
	externalEntityPattern = regexp.MustCompile(`(?is)<!ENTITY\s+[^>]+\s+(SYSTEM|PUBLIC)\s+[^>]+>`)
	doctypePattern        = regexp.MustCompile(`(?is)<!DOCTYPE\s+[^>]+>`)
	xmlBombPattern        = regexp.MustCompile(`(?is)<!ENTITY\s+\w+\s+["'][^"']*(&\w+;[^"']*){10,}["']>`)
	entityRefPattern      = regexp.MustCompile(`&\w+;`)
	invalidControlChars   = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
)

const (
	// DefaultMaxSize bounds accepted XML payloads.
	DefaultMaxSize = 10 * 1024 * 1024

	// DefaultMaxEntityExpansionRatio bounds len(xml)/entityCount.
	DefaultMaxEntityExpansionRatio = 10
)

// Sanitizer validates and cleans XML content.
type Sanitizer struct {
	maxSize                 int
	maxEntityExpansionRatio int
}

// New creates a sanitizer with the given size limit in bytes. Zero or
// negative limits fall back to the defaults.
func New(maxSize int) *Sanitizer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Sanitizer{
		maxSize:                 maxSize,
		maxEntityExpansionRatio: DefaultMaxEntityExpansionRatio,
	}
}

// Sanitize checks xmlContent for security issues and returns the cleaned
// content. The returned error is always a *Error carrying the failure kind.
func (s *Sanitizer) Sanitize(xmlContent string) (string, error) {
	if strings.TrimSpace(xmlContent) == "" {
		return "", fail(KindGeneric, "XML content cannot be empty")
	}

	if len(xmlContent) > s.maxSize {
		return "", fail(KindSecurityViolation, "XML content exceeds maximum allowed size: %d bytes", len(xmlContent))
	}

	xmlContent = strings.TrimPrefix(xmlContent, "\uFEFF")

	if !utf8.ValidString(xmlContent) {
		return "", fail(KindInvalidEncoding, "content is not valid UTF-8")
	}

	if err := s.checkThreats(xmlContent); err != nil {
		return "", err
	}

	xmlContent = invalidControlChars.ReplaceAllString(xmlContent, "")

	if err := checkStructure(xmlContent); err != nil {
		return "", err
	}

	logging.SanitizerDebug("XML content sanitized, size: %d bytes", len(xmlContent))
	return xmlContent, nil
}

func (s *Sanitizer) checkThreats(xmlContent string) error {
	if externalEntityPattern.MatchString(xmlContent) {
		return fail(KindExternalEntity, "external entity declaration detected")
	}

	if doctypePattern.MatchString(xmlContent) {
		return fail(KindDoctypeDeclaration, "DOCTYPE declaration detected")
	}

	if xmlBombPattern.MatchString(xmlContent) {
		return fail(KindXMLBomb, "potential XML bomb attack pattern detected")
	}

	if entityCount := len(entityRefPattern.FindAllStringIndex(xmlContent, -1)); entityCount > 0 {
		ratio := len(xmlContent) / entityCount
		if ratio > s.maxEntityExpansionRatio {
			return fail(KindXMLBomb, "suspicious entity expansion ratio detected: %d", ratio)
		}
	}

	return nil
}

// checkStructure parses the content through a strict decoder. The decoder
// never resolves external entities, so parsing itself is XXE-safe.
func checkStructure(xmlContent string) error {
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	dec.Strict = true

	depth := 0
	sawRoot := false
	rootClosed := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &Error{Kind: KindMalformedXML, Message: "XML structure validation failed", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return fail(KindMalformedXML, "content after document root")
			}
			sawRoot = true
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				rootClosed = true
			}
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return fail(KindMalformedXML, "text outside document root")
			}
		}
	}
	if !sawRoot {
		return fail(KindMalformedXML, "no document root element")
	}
	return nil
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// ForTextContent escapes a string for safe inclusion as XML text.
func ForTextContent(text string) string {
	return textEscaper.Replace(text)
}

// ForAttributeValue escapes a string for safe inclusion as an XML attribute.
func ForAttributeValue(value string) string {
	return attrEscaper.Replace(value)
}
