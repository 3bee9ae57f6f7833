package internal

import (
	"math"

	"github.com/RoaringBitmap/roaring"
)

// SectionFilter narrows page sets down to the pages a caller may see. It is
// built once per query and is safe for concurrent reads afterwards.
type SectionFilter struct {
	// Open is set when the report defines no sections. Section security is
	// opt-in per report, so every page passes.
	Open bool

	allowed *roaring.Bitmap
}

// NewSectionFilter builds the union of the page ranges of every report section
// whose name is listed in authorized. A report with sections and an empty
// authorized list yields a filter that rejects everything.
func NewSectionFilter(sections []Section, authorized []string) *SectionFilter {
	if len(sections) == 0 {
		return &SectionFilter{Open: true}
	}

	names := make(map[string]struct{}, len(authorized))
	for _, a := range authorized {
		names[a] = struct{}{}
	}

	allowed := roaring.New()
	for _, s := range sections {
		if _, ok := names[s.Name]; !ok || s.PageCount <= 0 || s.StartPage < 1 || uint64(s.StartPage) > math.MaxUint32 {
			continue
		}
		// page numbers are u32; a range running past the last one is cut there
		end := min(uint64(s.EndPage()), math.MaxUint32)
		allowed.AddRange(uint64(s.StartPage), end+1)
	}
	return &SectionFilter{allowed: allowed}
}

// Allows reports whether a single page passes the filter.
func (f *SectionFilter) Allows(page int) bool {
	if page < 1 || uint64(page) > math.MaxUint32 {
		return false
	}
	if f.Open {
		return true
	}
	return f.allowed.Contains(uint32(page))
}

// Filter intersects candidates with the authorized pages. The input bitmap is
// left untouched.
func (f *SectionFilter) Filter(candidates *roaring.Bitmap) *roaring.Bitmap {
	if f.Open {
		return candidates.Clone()
	}
	return roaring.And(candidates, f.allowed)
}

// AuthorizedPages returns how many pages the filter lets through, or -1 for
// an open filter.
func (f *SectionFilter) AuthorizedPages() int64 {
	if f.Open {
		return -1
	}
	return int64(f.allowed.GetCardinality())
}

// FilterPages is a convenience over NewSectionFilter and Filter for plain page
// lists. The result is sorted ascending and free of duplicates.
func FilterPages(candidates []int, sections []Section, authorized []string) []int {
	bm := PageBitmap(candidates)
	out := NewSectionFilter(sections, authorized).Filter(bm)
	return BitmapPages(out)
}

// PageBitmap converts page numbers to a bitmap, ignoring pages outside the
// u32 range and non-positive pages.
func PageBitmap(pages []int) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range pages {
		if p >= 1 && uint64(p) <= math.MaxUint32 {
			bm.Add(uint32(p))
		}
	}
	return bm
}

func BitmapPages(bm *roaring.Bitmap) []int {
	raw := bm.ToArray()
	out := make([]int, len(raw))
	for i, p := range raw {
		out[i] = int(p)
	}
	return out
}
