package errors

import "fmt"

// WarningKind classifies an IntegrityWarning.
type WarningKind string

const (
	WarnSegmentCount         WarningKind = "segment_count_mismatch"
	WarnNonMonotonic         WarningKind = "non_monotonic_segment"
	WarnTruncatedEntry       WarningKind = "truncated_entry"
	WarnTruncatedTable       WarningKind = "truncated_table"
	WarnUnknownLayout        WarningKind = "unknown_entry_layout"
	WarnWidthMismatch        WarningKind = "field_width_mismatch"
	WarnSegmentOutOfRange    WarningKind = "segment_out_of_range"
	WarnOccurrenceUnresolved WarningKind = "occurrence_unresolved"
	WarnPageGap              WarningKind = "page_gap"
	WarnDuplicatePage        WarningKind = "duplicate_page"
	WarnPageOutOfRange       WarningKind = "page_out_of_range"
	WarnSectionOverlap       WarningKind = "section_overlap"
	WarnSectionGap           WarningKind = "section_gap"
	WarnOrphanFile           WarningKind = "orphan_file"
)

// IntegrityWarning describes an inconsistency found in an archive file that
// did not prevent it from being processed. Processing continues with
// best-effort data whenever one is produced.
type IntegrityWarning struct {
	File   string      `json:"file,omitempty" yaml:"file,omitempty"`
	Kind   WarningKind `json:"kind" yaml:"kind"`
	Detail string      `json:"detail" yaml:"detail"`
}

func (w IntegrityWarning) String() string {
	if w.File == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", w.File, w.Kind, w.Detail)
}
