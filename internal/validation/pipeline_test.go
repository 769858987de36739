package validation

import (
	"strings"
	"testing"
)

const judgmentDoc = `<?xml version="1.0" encoding="UTF-8"?>
<akomaNtoso xmlns="http://docs.oasis-open.org/legaldocml/ns/akn/3.0">
  <judgment>
    <meta>
      <identification/>
    </meta>
    <body>
      <p>Die Revision der Beklagten gegen das Urteil des Landesarbeitsgerichts
      wird auf ihre Kosten zurückgewiesen. ECLI:DE:BAG:2023:100523.U.5AZR123.22.0
      bleibt massgeblich fuer die Veroeffentlichung der Entscheidung.</p>
    </body>
  </judgment>
</akomaNtoso>`

func defaultOptions() Options {
	return Options{
		LegalDocMLEnabled: true,
		EcliEnabled:       true,
	}
}

func TestComprehensiveValidDocument(t *testing.T) {
	report := NewService(defaultOptions()).Comprehensive(judgmentDoc)

	if !report.Valid {
		t.Fatalf("expected valid, errors: %v", report.Errors)
	}
	if !report.SanitizationPassed {
		t.Error("sanitization should pass")
	}
	if !report.StructureValid {
		t.Error("structure should parse")
	}
	if !report.LegalDocMLFormat {
		t.Error("document should be recognized as LegalDocML")
	}
	if len(report.EcliIdentifiers) != 1 ||
		report.EcliIdentifiers[0] != "ECLI:DE:BAG:2023:100523.U.5AZR123.22.0" {
		t.Errorf("unexpected ECLI identifiers: %v", report.EcliIdentifiers)
	}
	if report.ElementCount == 0 {
		t.Error("expected a positive element count")
	}
	if !report.HasSubstantialContent {
		t.Error("expected substantial content")
	}
	if report.OriginalSize != len(judgmentDoc) {
		t.Errorf("original size %d, want %d", report.OriginalSize, len(judgmentDoc))
	}
}

func TestComprehensiveStrictFailsOnSanitization(t *testing.T) {
	opts := defaultOptions()
	opts.StrictMode = true
	report := NewService(opts).Comprehensive(`<!DOCTYPE x><root>y</root>`)

	if report.Valid {
		t.Fatal("strict mode must fail on sanitization errors")
	}
	if report.SanitizationPassed {
		t.Error("sanitization should have failed")
	}
	// Strict mode stops at sanitization; no later stages run.
	if report.StructureValid {
		t.Error("structure check should not have run")
	}
}

func TestComprehensiveLenientContinuesPastSanitization(t *testing.T) {
	report := NewService(defaultOptions()).Comprehensive(`<!DOCTYPE x><root>content here</root>`)

	if report.Valid {
		t.Fatal("lenient mode still marks the document invalid")
	}
	if report.SanitizationPassed {
		t.Error("sanitization should have failed")
	}
	// But later stages ran against the original content.
	if !report.StructureValid {
		t.Error("lenient mode should still structure-check the original content")
	}
}

func TestComprehensiveStrictFailsOnLegalDocMLErrors(t *testing.T) {
	// Recognizable format, but no namespace and no meta.
	content := `<akomaNtoso><judgment><body><p>` +
		strings.Repeat("text ", 40) + `</p></body></judgment></akomaNtoso>`

	lenient := NewService(defaultOptions()).Comprehensive(content)
	if !lenient.Valid {
		t.Fatalf("lenient mode passes structural LegalDocML errors through: %v", lenient.Errors)
	}
	if len(lenient.Errors) != 0 {
		t.Errorf("lenient mode demotes LegalDocML errors, got %v", lenient.Errors)
	}
	found := false
	for _, w := range lenient.Warnings {
		if strings.HasPrefix(w, "LegalDocML: ") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected LegalDocML warnings, got %v", lenient.Warnings)
	}

	opts := defaultOptions()
	opts.StrictMode = true
	strict := NewService(opts).Comprehensive(content)
	if strict.Valid {
		t.Error("strict mode must fail on LegalDocML errors")
	}
}

func TestComprehensiveSchemaStubWarning(t *testing.T) {
	opts := defaultOptions()
	opts.SchemaEnabled = true
	report := NewService(opts).Comprehensive(`<root>plain</root>`)

	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "schema") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected schema warning, got %v", report.Warnings)
	}
}

func TestComprehensiveNonLegalDocMLSkipsDeepChecks(t *testing.T) {
	report := NewService(defaultOptions()).Comprehensive(`<plain><doc>text</doc></plain>`)
	if report.LegalDocMLFormat {
		t.Error("plain XML should not be detected as LegalDocML")
	}
	if report.DocumentType != "" {
		t.Errorf("no document type expected, got %q", report.DocumentType)
	}
	if !report.Valid {
		t.Errorf("plain well-formed XML is valid: %v", report.Errors)
	}
}

func TestQuick(t *testing.T) {
	report := NewService(defaultOptions()).Quick(judgmentDoc)
	if !report.Valid {
		t.Fatal("expected valid quick report")
	}
	if !report.SanitizationPassed || !report.StructureValid {
		t.Error("quick path should pass sanitization and structure")
	}
	if !report.LegalDocMLFormat {
		t.Error("quick path should detect the format")
	}
	if report.EcliCount != 1 {
		t.Errorf("expected 1 ECLI, got %d", report.EcliCount)
	}
}

func TestQuickFailsClosed(t *testing.T) {
	report := NewService(defaultOptions()).Quick(`<!DOCTYPE x><root/>`)
	if report.Valid || report.SanitizationPassed {
		t.Error("quick path must fail on sanitization errors")
	}
}

func TestCountElements(t *testing.T) {
	if n := countElements(`<a><b/><c>x</c></a>`); n != 3 {
		t.Errorf("expected 3 elements, got %d", n)
	}
	// Closing tags, comments, and declarations do not count.
	if n := countElements(`<?xml version="1.0"?><!-- note --><a></a>`); n != 1 {
		t.Errorf("expected 1 element, got %d", n)
	}
}

func TestHasSubstantialContent(t *testing.T) {
	if hasSubstantialContent(`<a>short</a>`) {
		t.Error("short text is not substantial")
	}
	long := `<a>` + strings.Repeat("wort ", 30) + `</a>`
	if !hasSubstantialContent(long) {
		t.Error("long text is substantial")
	}
}
