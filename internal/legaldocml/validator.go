// Package legaldocml performs structural validation of LegalDocML.de and
// Akoma Ntoso documents: namespace and root checks, metadata and FRBR
// presence, identifier formats, and German judgment element probes.
package legaldocml

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"eclicrawler/internal/logging"
)

const (
	// AkomaNtosoNS is the OASIS Akoma Ntoso 3.0 namespace.
	AkomaNtosoNS = "http://docs.oasis-open.org/legaldocml/ns/akn/3.0"

	// LegalDocMLDeNS is the German LegalDocML.de profile namespace.
	LegalDocMLDeNS = "http://www.legaldocml.de/1.0/"
)

var validRootElements = map[string]bool{
	"akomaNtoso":         true,
	"act":                true,
	"bill":               true,
	"doc":                true,
	"judgment":           true,
	"portion":            true,
	"documentCollection": true,
}

var (
	metaSubElements    = []string{"identification", "publication", "lifecycle"}
	frbrLevels         = []string{"FRBRWork", "FRBRExpression", "FRBRManifestation"}
	structuralElements = []string{"preface", "preamble", "body", "conclusions"}
	judgmentElements   = []string{"courtType", "docketNumber", "decisionDate", "judges", "procedure"}
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	guidPattern       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Report is the outcome of a structural validation run. Valid is true iff
// there are no errors; warnings never fail a document.
type Report struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Validations []string `json:"validations,omitempty"`
}

func (r *Report) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) addValidation(format string, args ...interface{}) {
	r.Validations = append(r.Validations, fmt.Sprintf(format, args...))
}

// node is a minimal element tree for structural checks.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*node
}

func (n *node) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// find returns the first descendant with the given local name, or nil.
func (n *node) find(local string) *node {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
		if found := c.find(local); found != nil {
			return found
		}
	}
	return nil
}

func (n *node) walk(fn func(*node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

func parse(content string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	return root, nil
}

// IsLegalDocMLFormat reports whether the content looks like a LegalDocML or
// Akoma Ntoso document.
func IsLegalDocMLFormat(content string) bool {
	return strings.Contains(content, AkomaNtosoNS) ||
		strings.Contains(content, LegalDocMLDeNS) ||
		strings.Contains(content, "akomaNtoso") ||
		strings.Contains(content, "akn:")
}

// Validator performs LegalDocML structural checks.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all structural checks and returns the report. Malformed XML
// is reported as an error in the report, not as a Go error.
func (v *Validator) Validate(content string) *Report {
	report := &Report{}

	root, err := parse(content)
	if err != nil {
		report.addError("document is not well-formed XML: %v", err)
		report.Valid = false
		return report
	}

	v.checkRoot(root, report)
	v.checkMetadata(root, report)
	v.checkStructure(root, report)
	v.checkGermanJudgment(root, report)
	v.checkIdentifiers(root, report)

	report.Valid = len(report.Errors) == 0
	logging.ValidationDebug("LegalDocML check: valid=%v errors=%d warnings=%d",
		report.Valid, len(report.Errors), len(report.Warnings))
	return report
}

func (v *Validator) checkRoot(root *node, report *Report) {
	if !validRootElements[root.name.Local] {
		report.addWarning("unexpected root element: %s", root.name.Local)
	}

	ns := root.name.Space
	if ns != AkomaNtosoNS && ns != LegalDocMLDeNS {
		report.addError("root element carries no LegalDocML namespace (found %q)", ns)
	} else {
		report.addValidation("root namespace: %s", ns)
	}
}

func (v *Validator) checkMetadata(root *node, report *Report) {
	meta := root.find("meta")
	if meta == nil {
		report.addError("required meta element is missing")
		return
	}
	report.addValidation("meta element present")

	for _, sub := range metaSubElements {
		if meta.find(sub) == nil {
			report.addWarning("meta is missing %s", sub)
		}
	}

	for _, level := range frbrLevels {
		if meta.find(level) == nil {
			report.addWarning("FRBR level %s is missing", level)
		} else {
			report.addValidation("FRBR level %s present", level)
		}
	}
}

func (v *Validator) checkStructure(root *node, report *Report) {
	for _, elem := range structuralElements {
		if root.find(elem) != nil {
			report.addValidation("structural element %s present", elem)
		} else if elem == "body" {
			report.addWarning("document has no body element")
		}
	}
}

func (v *Validator) checkGermanJudgment(root *node, report *Report) {
	if root.name.Local != "judgment" && root.find("judgment") == nil {
		return
	}
	for _, elem := range judgmentElements {
		if root.find(elem) != nil {
			report.addValidation("judgment element %s present", elem)
		}
	}
}

func (v *Validator) checkIdentifiers(root *node, report *Report) {
	root.walk(func(n *node) {
		if eid, ok := n.attr("eId"); ok {
			if !identifierPattern.MatchString(eid) ||
				strings.HasPrefix(eid, ".") || strings.HasSuffix(eid, ".") {
				report.addWarning("invalid eId format: %q on %s", eid, n.name.Local)
			}
		}
		if wid, ok := n.attr("wId"); ok {
			if !identifierPattern.MatchString(wid) {
				report.addWarning("invalid wId format: %q on %s", wid, n.name.Local)
			}
		}
		if guid, ok := n.attr("GUID"); ok {
			if !guidPattern.MatchString(guid) {
				report.addWarning("invalid GUID format: %q on %s", guid, n.name.Local)
			}
		}
	})
}

// ExtractDocumentType determines the document type: the root's name
// attribute, then the meta type element, then the root's local name.
func (v *Validator) ExtractDocumentType(content string) string {
	root, err := parse(content)
	if err != nil {
		return ""
	}
	if name, ok := root.attr("name"); ok && name != "" {
		return name
	}
	if meta := root.find("meta"); meta != nil {
		if t := meta.find("type"); t != nil {
			if name, ok := t.attr("value"); ok && name != "" {
				return name
			}
		}
	}
	return root.name.Local
}
