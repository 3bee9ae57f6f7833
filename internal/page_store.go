package internal

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/go-stdlog/stdlog"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/metrics"
)

// PageEntry locates a compressed page block inside the page data segment.
type PageEntry struct {
	Page   int
	Offset uint32
	Length uint32
}

// Section is a named, access-controlled page range.
type Section struct {
	ID        uint32 `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	StartPage int    `json:"start_page" yaml:"start_page"`
	PageCount int    `json:"page_count" yaml:"page_count"`
}

// EndPage returns the last page of the section, inclusive.
func (s Section) EndPage() int { return s.StartPage + s.PageCount - 1 }

// Contains reports whether page belongs to the section's range.
func (s Section) Contains(page int) bool {
	return s.PageCount > 0 && page >= s.StartPage && page <= s.EndPage()
}

// PageStore is a parsed, immutable page store. Page blocks are inflated on
// demand from the data slice passed to OpenPageStore.
type PageStore struct {
	Path     string
	Header   Header
	Encoding TextEncoding

	// PageCount is the highest page number present in the page table.
	PageCount int

	pages    []PageEntry // ordered by page, one entry per page
	present  int
	sections []Section
	body     []byte

	warnings *WarningSink
	log      stdlog.Logger
}

func OpenPageStore(path string, data []byte, enc TextEncoding, log stdlog.Logger) (*PageStore, error) {
	defer metrics.Measure(metrics.PageStoreOpenLatency)()
	if log == nil {
		log = stdlog.Discard
	}
	if enc == "" {
		enc = EncodingLatin1
	}

	header, err := ParseHeader(path, data, PageStoreSignature)
	if err != nil {
		return nil, err
	}

	bounds := ScanSegments(data, pageStoreSegments)
	if len(bounds) < pageStoreSegments {
		return nil, errors.FormatError{
			File:   path,
			Reason: fmt.Sprintf("expected %d segments, found %d", pageStoreSegments, len(bounds)),
		}
	}

	s := &PageStore{
		Path:     path,
		Header:   header,
		Encoding: enc,
		body:     data[bounds[2].Start:bounds[2].End],
		warnings: NewWarningSink(path, log),
		log:      log,
	}
	s.parsePageTable(data[bounds[0].Start:bounds[0].End])
	s.parseSectionTable(data[bounds[1].Start:bounds[1].End])

	log.Debug("Page store opened",
		"path", path,
		"pages", s.PageCount,
		"sections", len(s.sections),
		"encoding", string(enc),
	)
	return s, nil
}

func (s *PageStore) parsePageTable(table []byte) {
	usable := NearestMultiple(len(table), pageRecordSize)
	if usable != len(table) {
		s.warnings.Add(errors.WarnTruncatedTable, "page table: discarded %d trailing bytes", len(table)-usable)
	}

	var records []PageEntry
	for pos := 0; pos < usable; pos += pageRecordSize {
		rec := table[pos : pos+pageRecordSize]
		e := PageEntry{
			Page:   int(le.Uint32(rec[pageRecordOffsets.Page:])),
			Offset: le.Uint32(rec[pageRecordOffsets.Offset:]),
			Length: le.Uint32(rec[pageRecordOffsets.Length:]),
		}
		if e.Page < 1 || e.Length == 0 || uint64(e.Offset)+uint64(e.Length) > uint64(len(s.body)) {
			s.warnings.Add(errors.WarnPageOutOfRange, "page %d: block [%d, +%d) outside data segment of %d bytes", e.Page, e.Offset, e.Length, len(s.body))
			continue
		}
		records = append(records, e)
		s.PageCount = max(s.PageCount, e.Page)
	}

	// Page numbers come straight from the table, so entries stay sparse.
	slices.SortStableFunc(records, func(a, b PageEntry) int { return cmp.Compare(a.Page, b.Page) })
	s.pages = make([]PageEntry, 0, len(records))
	for _, e := range records {
		if n := len(s.pages); n > 0 && s.pages[n-1].Page == e.Page {
			s.warnings.Add(errors.WarnDuplicatePage, "page %d listed more than once, keeping first entry", e.Page)
			continue
		}
		s.pages = append(s.pages, e)
	}
	s.present = len(s.pages)

	if missing := s.PageCount - s.present; missing > 0 {
		first := 1
		for _, e := range s.pages {
			if e.Page != first {
				break
			}
			first++
		}
		s.warnings.Add(errors.WarnPageGap, "%d of %d pages missing, first missing page is %d", missing, s.PageCount, first)
	}
	if declared := int(s.Header.Count); declared > s.PageCount {
		s.warnings.Add(errors.WarnPageGap, "header declares %d pages, page table ends at %d", declared, s.PageCount)
	}
}

func (s *PageStore) parseSectionTable(table []byte) {
	if len(table) < 2 {
		return
	}
	declared := int(le.Uint16(table))
	available := (len(table) - 2) / sectionRecordSize
	count := declared
	if available < declared {
		s.warnings.Add(errors.WarnTruncatedTable, "section table declares %d records, only %d present", declared, available)
		count = available
	}

	s.sections = make([]Section, count)
	for i := range s.sections {
		rec := table[2+i*sectionRecordSize:]
		s.sections[i] = Section{
			ID:        le.Uint32(rec[sectionRecordOffsets.ID:]),
			Name:      DecodeDoubleByte(rec[sectionRecordOffsets.Name : sectionRecordOffsets.Name+sectionNameChars*2]),
			StartPage: int(le.Uint32(rec[sectionRecordOffsets.StartPage:])),
			PageCount: int(le.Uint32(rec[sectionRecordOffsets.PageCount:])),
		}
	}
	slices.SortStableFunc(s.sections, func(a, b Section) int { return a.StartPage - b.StartPage })

	for _, w := range CheckSectionCoverage(s.sections, s.PageCount) {
		s.warnings.Add(w.Kind, "%s", w.Detail)
	}
}

// CheckSectionCoverage reports overlaps and gaps between sections ordered by
// start page, along with uncovered pages at either end of 1..pageCount.
func CheckSectionCoverage(sections []Section, pageCount int) []errors.IntegrityWarning {
	if len(sections) == 0 {
		return nil
	}
	var out []errors.IntegrityWarning
	add := func(kind errors.WarningKind, format string, args ...any) {
		out = append(out, errors.IntegrityWarning{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	if first := sections[0]; first.StartPage > 1 {
		add(errors.WarnSectionGap, "pages 1-%d belong to no section", first.StartPage-1)
	}
	for _, sec := range sections {
		if sec.StartPage < 1 || uint64(sec.EndPage()) > math.MaxUint32 {
			add(errors.WarnPageOutOfRange, "section %q (%d-%d) lies outside pages 1-%d",
				sec.Name, sec.StartPage, sec.EndPage(), uint32(math.MaxUint32))
		}
	}
	for i := 1; i < len(sections); i++ {
		prev, cur := sections[i-1], sections[i]
		switch {
		case cur.StartPage <= prev.EndPage():
			add(errors.WarnSectionOverlap, "section %q (%d-%d) overlaps section %q (%d-%d)",
				cur.Name, cur.StartPage, cur.EndPage(), prev.Name, prev.StartPage, prev.EndPage())
		case cur.StartPage > prev.EndPage()+1:
			add(errors.WarnSectionGap, "pages %d-%d belong to no section", prev.EndPage()+1, cur.StartPage-1)
		}
	}
	last := sections[0].EndPage()
	for _, sec := range sections[1:] {
		last = max(last, sec.EndPage())
	}
	if pageCount > 0 && last < pageCount {
		add(errors.WarnSectionGap, "pages %d-%d belong to no section", last+1, pageCount)
	}
	return out
}

// Sections returns the section table ordered by start page. An empty result
// means the report carries no section security.
func (s *PageStore) Sections() []Section {
	return slices.Clone(s.sections)
}

// HasPage reports whether the page table holds a block for page.
func (s *PageStore) HasPage(page int) bool {
	_, ok := s.entry(page)
	return ok
}

func (s *PageStore) entry(page int) (PageEntry, bool) {
	i, ok := slices.BinarySearchFunc(s.pages, page, func(e PageEntry, p int) int { return cmp.Compare(e.Page, p) })
	if !ok {
		return PageEntry{}, false
	}
	return s.pages[i], true
}

// PagesPresent returns how many pages the page table locates.
func (s *PageStore) PagesPresent() int { return s.present }

// GetPageText inflates and decodes a page, returning its lines. Any failure is
// reported as a PageReadError for that page alone.
func (s *PageStore) GetPageText(page int) ([]string, error) {
	e, ok := s.entry(page)
	if !ok {
		metrics.Simple(metrics.PageStoreReadFailures, 1)
		return nil, errors.PageReadError{Page: page, Err: fmt.Errorf("page is not in the page table")}
	}
	block := s.body[e.Offset : e.Offset+e.Length]

	metrics.Simple(metrics.PageStoreDecompressCalls, 1)
	done := metrics.Measure(metrics.PageStoreDecompressLatency)
	raw, err := Inflate(block)
	done()
	if err != nil {
		metrics.Simple(metrics.PageStoreReadFailures, 1)
		return nil, errors.PageReadError{Page: page, Err: err}
	}

	text, err := s.Encoding.Decode(raw)
	if err != nil {
		metrics.Simple(metrics.PageStoreReadFailures, 1)
		return nil, errors.PageReadError{Page: page, Err: err}
	}
	return SplitLines(text), nil
}

func (s *PageStore) Warnings() []errors.IntegrityWarning {
	return s.warnings.List()
}
