package internal

import "encoding/binary"

var le = binary.LittleEndian

const (
	HeaderSize     = 72
	SignatureSize  = 12
	DateChars      = 14
	SegmentMarkLen = 8
)

var (
	IndexSignature     = doubleByte("RPTIDX")
	PageStoreSignature = doubleByte("RPTPAG")
	SegmentMarker      = []byte{0xA5, 0x5A, 0xC3, 0x3C, 0x96, 0x69, 0xF0, 0x0F}
)

var headerOffsets = struct {
	Signature uint8
	Version   uint8
	Count     uint8
	Created   uint8
	Modified  uint8
}{
	Signature: 0,
	Version:   12,
	Count:     14,
	Created:   16,
	Modified:  44,
}

// lookupRecordSize is the size of a master lookup record: segment, line,
// field and flags, one byte each.
const lookupRecordSize = 4

var lookupRecordOffsets = struct {
	Segment uint8
	Line    uint8
	Field   uint8
	Flags   uint8
}{
	Segment: 0,
	Line:    1,
	Field:   2,
	Flags:   3,
}

const occurrenceRecordSize = 8

var occurrenceRecordOffsets = struct {
	Occurrence uint8
	Page       uint8
	Reserved   uint8
}{
	Occurrence: 0,
	Page:       4,
	Reserved:   6,
}

const fieldSegmentHeaderSize = 4

var fieldSegmentOffsets = struct {
	StoredWidth uint8
	EntrySize   uint8
}{
	StoredWidth: 0,
	EntrySize:   2,
}

// Entry layouts are identified by how many bytes follow the value.
const (
	directPageOverhead = 7
	occurrenceOverhead = 5
)

const pageRecordSize = 12

var pageRecordOffsets = struct {
	Page   uint8
	Offset uint8
	Length uint8
}{
	Page:   0,
	Offset: 4,
	Length: 8,
}

const (
	sectionNameChars  = 8
	sectionRecordSize = 4 + sectionNameChars*2 + 4 + 4
)

var sectionRecordOffsets = struct {
	ID        uint8
	Name      uint8
	StartPage uint8
	PageCount uint8
}{
	ID:        0,
	Name:      4,
	StartPage: 20,
	PageCount: 24,
}

// pageStoreSegments is the number of marker-delimited segments a page store
// carries: page table, section table and page data.
const pageStoreSegments = 3
