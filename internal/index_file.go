package internal

import (
	"github.com/go-stdlog/stdlog"

	"github.com/heyvito/reportvault/errors"
	"github.com/heyvito/reportvault/internal/metrics"
)

// IndexFile is a parsed, immutable index file. Field segments reference the
// bytes of the data slice passed to OpenIndexFile.
type IndexFile struct {
	Path   string
	Header Header

	// DeclaredSegments is the advisory count stored in the header;
	// len(Segments) is what the markers actually delimit.
	DeclaredSegments int
	Master           *MasterSegment
	Fields           []*FieldSegment

	warnings *WarningSink
	log      stdlog.Logger
}

func OpenIndexFile(path string, data []byte, log stdlog.Logger) (*IndexFile, error) {
	defer metrics.Measure(metrics.IndexOpenLatency)()
	if log == nil {
		log = stdlog.Discard
	}

	header, err := ParseHeader(path, data, IndexSignature)
	if err != nil {
		return nil, err
	}

	f := &IndexFile{
		Path:             path,
		Header:           header,
		DeclaredSegments: int(header.Count),
		warnings:         NewWarningSink(path, log),
		log:              log,
	}

	bounds := ScanSegments(data, 0)
	if len(bounds) == 0 {
		return nil, errors.FormatError{File: path, Reason: "no segment marker found"}
	}
	if len(bounds) != f.DeclaredSegments {
		f.warnings.Add(errors.WarnSegmentCount, "header declares %d segments, found %d markers", f.DeclaredSegments, len(bounds))
	}

	master := bounds[0]
	f.Master = ParseMasterSegment(data[master.Start:master.End], f.warnings)
	f.Fields = make([]*FieldSegment, 0, len(bounds)-1)
	for i, b := range bounds[1:] {
		f.Fields = append(f.Fields, ParseFieldSegment(i+1, data[b.Start:b.End], f.warnings))
	}

	log.Debug("Index file opened",
		"path", path,
		"version", header.Version,
		"segments", len(bounds),
		"lookups", len(f.Master.Lookup),
		"occurrences", len(f.Master.Occurrences),
	)
	return f, nil
}

// SegmentCount returns the number of marker-delimited segments, master
// included.
func (f *IndexFile) SegmentCount() int { return len(f.Fields) + 1 }

func (f *IndexFile) LookupSegment(lineID, fieldID int) (int, bool) {
	seg, ok := f.Master.LookupSegment(lineID, fieldID)
	if !ok {
		metrics.Simple(metrics.IndexLookupMisses, 1)
	}
	return seg, ok
}

// Segment returns field segment number n (1-based).
func (f *IndexFile) Segment(n int) (*FieldSegment, bool) {
	if n < 1 || n > len(f.Fields) {
		return nil, false
	}
	return f.Fields[n-1], true
}

// Search runs a binary search over field segment n. A lookup record pointing
// past the last segment yields an empty result and a warning on sink. When
// width is positive and differs from the stored width, a warning is recorded
// and the stored width is used.
func (f *IndexFile) Search(n int, width int, value string, sink *WarningSink) []IndexEntry {
	seg, ok := f.Segment(n)
	if !ok {
		sink.Add(errors.WarnSegmentOutOfRange, "lookup references segment %d, file has %d field segments", n, len(f.Fields))
		return nil
	}
	if width > 0 && seg.StoredWidth > 0 && width != seg.StoredWidth {
		sink.Add(errors.WarnWidthMismatch, "segment %d: catalog width %d, stored width %d", n, width, seg.StoredWidth)
	}
	return seg.Search(value)
}

func (f *IndexFile) ResolveOccurrence(occurrence uint32) (int, bool) {
	return f.Master.ResolveOccurrence(occurrence)
}

func (f *IndexFile) SignificantValues() []SignificantValue {
	return f.Master.Significant
}

// Warnings returns the integrity warnings recorded while parsing.
func (f *IndexFile) Warnings() []errors.IntegrityWarning {
	return f.warnings.List()
}
