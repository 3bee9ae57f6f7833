package internal

import "bytes"

// EntryLayout identifies which locator encoding a field segment uses. It is
// selected once per segment, never per entry.
type EntryLayout uint8

const (
	LayoutUnknown EntryLayout = iota
	LayoutDirectPage
	LayoutOccurrenceIndex
)

func (l EntryLayout) String() string {
	switch l {
	case LayoutDirectPage:
		return "direct-page"
	case LayoutOccurrenceIndex:
		return "occurrence-index"
	default:
		return "unknown"
	}
}

// ProbeLayout selects the locator encoding from the stored field width and the
// total entry size.
func ProbeLayout(storedWidth, entrySize int) EntryLayout {
	if storedWidth <= 0 {
		return LayoutUnknown
	}
	switch entrySize - storedWidth {
	case directPageOverhead:
		return LayoutDirectPage
	case occurrenceOverhead:
		return LayoutOccurrenceIndex
	default:
		return LayoutUnknown
	}
}

// Locator references the page an index entry points to. For
// LayoutOccurrenceIndex, Page is zero until the occurrence is resolved through
// the master segment. Reserved and Trailer are carried as opaque bytes.
type Locator struct {
	Layout     EntryLayout
	Page       int
	Occurrence uint32
	Reserved   []byte
	Trailer    []byte
}

// IndexEntry is a single materialised entry of a field segment.
type IndexEntry struct {
	Value   string
	Locator Locator
}

// Read decodes an entry from b, which must hold at least width plus the
// layout's overhead bytes.
func (e *IndexEntry) Read(b []byte, width int, layout EntryLayout) {
	e.Value = string(TrimValue(b[:width]))
	rest := b[width:]
	e.Locator = Locator{Layout: layout}
	switch layout {
	case LayoutDirectPage:
		e.Locator.Page = int(le.Uint16(rest[0:]))
		e.Locator.Reserved = bytes.Clone(rest[2:4])
		e.Locator.Trailer = bytes.Clone(rest[4:7])
	case LayoutOccurrenceIndex:
		e.Locator.Occurrence = le.Uint32(rest[0:])
		e.Locator.Trailer = bytes.Clone(rest[4:5])
	}
}

// TrimValue removes trailing padding (spaces and NULs) from a fixed-width
// value.
func TrimValue(b []byte) []byte {
	return bytes.TrimRight(b, " \x00")
}
