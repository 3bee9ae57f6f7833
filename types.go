package reportvault

import (
	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal"
	"github.com/heyvito/reportvault/internal/catalog"
)

type (
	// MetadataSource supplies report structure definitions.
	MetadataSource   = catalog.Source
	Catalog          = catalog.Catalog
	ReportDefinition = catalog.ReportDefinition
	LineTemplate     = internal.LineTemplate
	FieldDef         = internal.FieldDef
	TrimMode         = internal.TrimMode
	Section          = internal.Section
	SignificantValue = internal.SignificantValue
	IntegrityWarning = errors.IntegrityWarning
)

// LoadCatalog reads a YAML or JSON catalog file and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	return catalog.Load(path)
}

// Request describes a single field-value query against one report revision.
type Request struct {
	Report string
	// Revision selects the latest revision equal to or starting with it. An
	// empty Revision selects the latest revision available.
	Revision string
	Field    string
	Value    string

	// AuthorizedSections lists the section names the caller may see. It is
	// ignored for reports without sections.
	AuthorizedSections []string

	// AllLines emits every classified line of the matching pages, instead of
	// only the lines carrying the searched value.
	AllLines bool
}

type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeEmpty   Outcome = "empty"
)

// MatchedRecord is a classified report line and the field values extracted
// from it.
type MatchedRecord struct {
	Report   string            `json:"report" yaml:"report"`
	Revision string            `json:"revision" yaml:"revision"`
	Page     int               `json:"page" yaml:"page"`
	Line     int               `json:"line" yaml:"line"`
	LineID   int               `json:"line_id" yaml:"line_id"`
	LineName string            `json:"line_name,omitempty" yaml:"line_name,omitempty"`
	Score    float64           `json:"score" yaml:"score"`
	Fields   map[string]string `json:"fields" yaml:"fields"`
}

// PageFailure records a page whose contribution was dropped from a result.
type PageFailure struct {
	Page  int    `json:"page" yaml:"page"`
	Error string `json:"error" yaml:"error"`
}

type QueryStats struct {
	// IndexMatches is the number of index entries equal to the value.
	IndexMatches int `json:"index_matches" yaml:"index_matches"`
	// CandidatePages is the number of distinct pages those entries locate.
	CandidatePages int `json:"candidate_pages" yaml:"candidate_pages"`
	// AuthorizedPages is the number of candidate pages left after the
	// section filter.
	AuthorizedPages int `json:"authorized_pages" yaml:"authorized_pages"`
	PagesRead       int `json:"pages_read" yaml:"pages_read"`
	LinesClassified int `json:"lines_classified" yaml:"lines_classified"`
}

// Result is the outcome of a query. Records are ordered by page, then by line
// within a page.
type Result struct {
	Report   string             `json:"report" yaml:"report"`
	Revision string             `json:"revision" yaml:"revision"`
	Field    string             `json:"field" yaml:"field"`
	Value    string             `json:"value" yaml:"value"`
	Outcome  Outcome            `json:"outcome" yaml:"outcome"`
	Records  []MatchedRecord    `json:"records" yaml:"records"`
	Failures []PageFailure      `json:"page_failures,omitempty" yaml:"page_failures,omitempty"`
	Warnings []IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Stats    QueryStats         `json:"stats" yaml:"stats"`
}

// Cursor returns a cursor over the records of r.
func (r *Result) Cursor() Cursor {
	return &resultCursor{records: r.Records, next: 0}
}
