package internal

import (
	"bytes"
	"cmp"
	"slices"
	"sort"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/metrics"
)

// LookupRecord maps a (line, field) pair to the field segment holding its
// sorted values.
type LookupRecord struct {
	Segment int
	LineID  int
	FieldID int
	Flags   uint8
}

// OccurrenceRecord maps an occurrence counter to the page it appears on.
type OccurrenceRecord struct {
	Occurrence uint32
	Page       int
	Reserved   uint16
}

// SignificantValue is a literal value of a significant, non-indexed field,
// along with the page range it governs.
type SignificantValue struct {
	LineID    int    `json:"line_id" yaml:"line_id"`
	FieldID   int    `json:"field_id" yaml:"field_id"`
	Value     string `json:"value" yaml:"value"`
	StartPage int    `json:"start_page" yaml:"start_page"`
	PageCount int    `json:"page_count" yaml:"page_count"`
}

// MasterSegment is segment zero of an index file.
type MasterSegment struct {
	Lookup      []LookupRecord
	Occurrences []OccurrenceRecord
	Significant []SignificantValue
}

func ParseMasterSegment(body []byte, sink *WarningSink) *MasterSegment {
	m := &MasterSegment{}
	pos := 0
	terminated := false
	for pos+lookupRecordSize <= len(body) {
		rec := body[pos : pos+lookupRecordSize]
		if isZero(rec) {
			if pos+2*lookupRecordSize <= len(body) && isZero(body[pos+lookupRecordSize:pos+2*lookupRecordSize]) {
				pos += 2 * lookupRecordSize
				terminated = true
				break
			}
			pos += lookupRecordSize
			continue
		}
		m.Lookup = append(m.Lookup, LookupRecord{
			Segment: int(rec[lookupRecordOffsets.Segment]),
			LineID:  int(rec[lookupRecordOffsets.Line]),
			FieldID: int(rec[lookupRecordOffsets.Field]),
			Flags:   rec[lookupRecordOffsets.Flags],
		})
		pos += lookupRecordSize
	}
	if !terminated {
		return m
	}

	pos = m.parseOccurrences(body, pos, sink)
	m.parseSignificant(body, pos, sink)
	return m
}

func (m *MasterSegment) parseOccurrences(body []byte, pos int, sink *WarningSink) int {
	if pos+4 > len(body) {
		return len(body)
	}
	declared := int(le.Uint32(body[pos:]))
	pos += 4
	available := (len(body) - pos) / occurrenceRecordSize
	count := declared
	if available < declared {
		sink.Add(errors.WarnTruncatedTable, "occurrence table declares %d records, only %d present", declared, available)
		count = available
	}

	m.Occurrences = make([]OccurrenceRecord, count)
	for i := range m.Occurrences {
		rec := body[pos+i*occurrenceRecordSize:]
		m.Occurrences[i] = OccurrenceRecord{
			Occurrence: le.Uint32(rec[occurrenceRecordOffsets.Occurrence:]),
			Page:       int(le.Uint16(rec[occurrenceRecordOffsets.Page:])),
			Reserved:   le.Uint16(rec[occurrenceRecordOffsets.Reserved:]),
		}
	}

	sorted := slices.IsSortedFunc(m.Occurrences, func(a, b OccurrenceRecord) int {
		return cmp.Compare(a.Occurrence, b.Occurrence)
	})
	if !sorted {
		sink.Add(errors.WarnNonMonotonic, "occurrence table is not ordered by occurrence")
		slices.SortStableFunc(m.Occurrences, func(a, b OccurrenceRecord) int {
			return cmp.Compare(a.Occurrence, b.Occurrence)
		})
	}
	return pos + count*occurrenceRecordSize
}

func (m *MasterSegment) parseSignificant(body []byte, pos int, sink *WarningSink) {
	if pos+2 > len(body) {
		return
	}
	declared := int(le.Uint16(body[pos:]))
	pos += 2
	for i := 0; i < declared; i++ {
		if pos+3 > len(body) {
			sink.Add(errors.WarnTruncatedTable, "significant value table declares %d records, only %d present", declared, i)
			return
		}
		width := int(body[pos+2])
		end := pos + 3 + width + 4
		if end > len(body) {
			sink.Add(errors.WarnTruncatedTable, "significant value table declares %d records, only %d present", declared, i)
			return
		}
		rest := body[pos+3+width:]
		m.Significant = append(m.Significant, SignificantValue{
			LineID:    int(body[pos]),
			FieldID:   int(body[pos+1]),
			Value:     string(TrimValue(body[pos+3 : pos+3+width])),
			StartPage: int(le.Uint16(rest[0:])),
			PageCount: int(le.Uint16(rest[2:])),
		})
		pos = end
	}
}

// LookupSegment returns the first segment registered for the given line and
// field.
func (m *MasterSegment) LookupSegment(lineID, fieldID int) (int, bool) {
	for _, rec := range m.Lookup {
		if rec.LineID == lineID && rec.FieldID == fieldID {
			return rec.Segment, true
		}
	}
	return 0, false
}

// ResolveOccurrence returns the page on which the given occurrence appears.
func (m *MasterSegment) ResolveOccurrence(occurrence uint32) (int, bool) {
	i := sort.Search(len(m.Occurrences), func(i int) bool {
		return m.Occurrences[i].Occurrence >= occurrence
	})
	if i < len(m.Occurrences) && m.Occurrences[i].Occurrence == occurrence {
		return m.Occurrences[i].Page, true
	}
	return 0, false
}

// FieldSegment holds the sorted entries of one indexed field. Entries are read
// straight from the underlying file bytes; only matches are materialised.
type FieldSegment struct {
	Number      int
	StoredWidth int
	EntrySize   int
	Layout      EntryLayout
	Sorted      bool

	entries []byte
	count   int
}

func ParseFieldSegment(number int, body []byte, sink *WarningSink) *FieldSegment {
	seg := &FieldSegment{Number: number, Sorted: true}
	if len(body) < fieldSegmentHeaderSize {
		return seg
	}
	seg.StoredWidth = int(le.Uint16(body[fieldSegmentOffsets.StoredWidth:]))
	seg.EntrySize = int(le.Uint16(body[fieldSegmentOffsets.EntrySize:]))
	if seg.StoredWidth <= 0 {
		return seg
	}

	seg.Layout = ProbeLayout(seg.StoredWidth, seg.EntrySize)
	if seg.Layout == LayoutUnknown {
		sink.Add(errors.WarnUnknownLayout, "segment %d: entry size %d does not fit field width %d", number, seg.EntrySize, seg.StoredWidth)
		return seg
	}

	region := body[fieldSegmentHeaderSize:]
	usable := NearestMultiple(len(region), seg.EntrySize)
	if usable != len(region) {
		sink.Add(errors.WarnTruncatedEntry, "segment %d: discarded %d trailing bytes", number, len(region)-usable)
	}
	seg.entries = region[:usable]
	seg.count = usable / seg.EntrySize

	for i := 1; i < seg.count; i++ {
		if bytes.Compare(seg.valueAt(i-1), seg.valueAt(i)) > 0 {
			seg.Sorted = false
			sink.Add(errors.WarnNonMonotonic, "segment %d: entry %d sorts before entry %d", number, i, i-1)
			break
		}
	}
	return seg
}

// Len returns the number of complete entries in the segment.
func (s *FieldSegment) Len() int { return s.count }

func (s *FieldSegment) valueAt(i int) []byte {
	off := i * s.EntrySize
	return TrimValue(s.entries[off : off+s.StoredWidth])
}

// Entry materialises the i-th entry.
func (s *FieldSegment) Entry(i int) IndexEntry {
	var e IndexEntry
	off := i * s.EntrySize
	e.Read(s.entries[off:off+s.EntrySize], s.StoredWidth, s.Layout)
	return e
}

// Search returns every entry whose trimmed value equals value. Segments that
// failed the ordering check are scanned linearly instead.
func (s *FieldSegment) Search(value string) []IndexEntry {
	defer metrics.Measure(metrics.IndexSearchLatency)()
	metrics.Simple(metrics.IndexSearchCalls, 1)

	want := TrimValue([]byte(value))
	if s.count == 0 || len(want) > s.StoredWidth {
		return nil
	}

	if !s.Sorted {
		return s.scan(want)
	}

	lo := sort.Search(s.count, func(i int) bool {
		return bytes.Compare(s.valueAt(i), want) >= 0
	})
	var out []IndexEntry
	for i := lo; i < s.count && bytes.Equal(s.valueAt(i), want); i++ {
		out = append(out, s.Entry(i))
	}
	return out
}

func (s *FieldSegment) scan(want []byte) []IndexEntry {
	var out []IndexEntry
	for i := 0; i < s.count; i++ {
		if bytes.Equal(s.valueAt(i), want) {
			out = append(out, s.Entry(i))
		}
	}
	return out
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
