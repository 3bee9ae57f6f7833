package reportvault

import (
	"context"
	errs "errors"
	"fmt"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal"
)

// Inspection summarises the structure of one index file and page store pair.
type Inspection struct {
	Report    string `json:"report" yaml:"report"`
	Revision  string `json:"revision" yaml:"revision"`
	IndexPath string `json:"index_path" yaml:"index_path"`
	PagePath  string `json:"page_path" yaml:"page_path"`

	// Revisions lists every revision of the report found under the archive
	// root, oldest first.
	Revisions []string `json:"revisions" yaml:"revisions"`

	Index IndexSummary     `json:"index" yaml:"index"`
	Pages PageStoreSummary `json:"pages" yaml:"pages"`

	// DerivedSections are the sections implied by the significant values of
	// the index file.
	DerivedSections []Section          `json:"derived_sections,omitempty" yaml:"derived_sections,omitempty"`
	Warnings        []IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type IndexSummary struct {
	Version          uint16             `json:"version" yaml:"version"`
	Created          string             `json:"created" yaml:"created"`
	Modified         string             `json:"modified" yaml:"modified"`
	DeclaredSegments int                `json:"declared_segments" yaml:"declared_segments"`
	Segments         int                `json:"segments" yaml:"segments"`
	Lookups          []LookupSummary    `json:"lookups" yaml:"lookups"`
	Fields           []SegmentSummary   `json:"fields" yaml:"fields"`
	Occurrences      int                `json:"occurrences" yaml:"occurrences"`
	Significant      []SignificantValue `json:"significant,omitempty" yaml:"significant,omitempty"`
}

type LookupSummary struct {
	Segment int    `json:"segment" yaml:"segment"`
	LineID  int    `json:"line_id" yaml:"line_id"`
	FieldID int    `json:"field_id" yaml:"field_id"`
	Flags   uint8  `json:"flags" yaml:"flags"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
}

type SegmentSummary struct {
	Segment     int    `json:"segment" yaml:"segment"`
	StoredWidth int    `json:"stored_width" yaml:"stored_width"`
	EntrySize   int    `json:"entry_size" yaml:"entry_size"`
	Layout      string `json:"layout" yaml:"layout"`
	Entries     int    `json:"entries" yaml:"entries"`
	Sorted      bool   `json:"sorted" yaml:"sorted"`
}

type PageStoreSummary struct {
	Version       uint16    `json:"version" yaml:"version"`
	Created       string    `json:"created" yaml:"created"`
	Modified      string    `json:"modified" yaml:"modified"`
	Encoding      string    `json:"encoding" yaml:"encoding"`
	DeclaredPages int       `json:"declared_pages" yaml:"declared_pages"`
	PageCount     int       `json:"page_count" yaml:"page_count"`
	PagesPresent  int       `json:"pages_present" yaml:"pages_present"`
	Sections      []Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Inspect opens the pair of report selected by revision and describes it. The
// report does not need a catalog definition; without one, lookups are listed
// without field names and pages are decoded as Latin-1.
func (e *Engine) Inspect(ctx context.Context, report, revision string) (*Inspection, error) {
	var def *ReportDefinition
	enc := internal.EncodingLatin1
	d, err := e.catalog.Definition(ctx, report)
	switch {
	case err == nil:
		def = d
		if enc, err = d.TextEncoding(); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	case errs.As(err, &errors.ReportNotFound{}):
		e.log.Debug("Inspecting report without definition", "report", report)
	default:
		return nil, fmt.Errorf("resolve: %w", err)
	}

	loc, err := e.locate(report, revision)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	pair, err := e.archives.Open(loc.IndexPath, loc.PagePath, enc)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	out := describe(pair, def, loc.Report, loc.Revision)
	out.Revisions = e.revisions(loc.Report)
	return out, nil
}

func describe(pair *internal.ArchivePair, def *ReportDefinition, report, revision string) *Inspection {
	idx, pages := pair.Index, pair.Pages
	out := &Inspection{
		Report:    report,
		Revision:  revision,
		IndexPath: idx.Path,
		PagePath:  pages.Path,
		Index: IndexSummary{
			Version:          idx.Header.Version,
			Created:          idx.Header.Created,
			Modified:         idx.Header.Modified,
			DeclaredSegments: idx.DeclaredSegments,
			Segments:         idx.SegmentCount(),
			Lookups:          []LookupSummary{},
			Fields:           []SegmentSummary{},
			Occurrences:      len(idx.Master.Occurrences),
			Significant:      idx.SignificantValues(),
		},
		Pages: PageStoreSummary{
			Version:       pages.Header.Version,
			Created:       pages.Header.Created,
			Modified:      pages.Header.Modified,
			Encoding:      string(pages.Encoding),
			DeclaredPages: int(pages.Header.Count),
			PageCount:     pages.PageCount,
			PagesPresent:  pages.PagesPresent(),
			Sections:      pages.Sections(),
		},
		DerivedSections: internal.DeriveSections(idx.SignificantValues()),
	}

	for _, l := range idx.Master.Lookup {
		s := LookupSummary{Segment: l.Segment, LineID: l.LineID, FieldID: l.FieldID, Flags: l.Flags}
		if def != nil {
			if f, ok := def.FieldByID(l.LineID, l.FieldID); ok {
				s.Field = f.Name
			}
		}
		out.Index.Lookups = append(out.Index.Lookups, s)
	}
	for _, seg := range idx.Fields {
		out.Index.Fields = append(out.Index.Fields, SegmentSummary{
			Segment:     seg.Number,
			StoredWidth: seg.StoredWidth,
			EntrySize:   seg.EntrySize,
			Layout:      seg.Layout.String(),
			Entries:     seg.Len(),
			Sorted:      seg.Sorted,
		})
	}

	out.Warnings = append(out.Warnings, idx.Warnings()...)
	out.Warnings = append(out.Warnings, pages.Warnings()...)
	return out
}
