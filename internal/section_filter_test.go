package internal

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"

	"github.com/heyvito/reportvault/errors"
)

var bankSections = []Section{
	{ID: 1, Name: "501", StartPage: 1, PageCount: 890},
	{ID: 2, Name: "201", StartPage: 891, PageCount: 2203},
	{ID: 3, Name: "305", StartPage: 3094, PageCount: 407},
}

func TestFilterPages(t *testing.T) {
	authorized := []string{"501", "305"}
	assert.Equal(t, []int{3200}, FilterPages([]int{117, 120, 3200}, bankSections[1:], authorized))
	assert.Equal(t, []int{117, 120, 3200}, FilterPages([]int{117, 120, 3200}, bankSections, authorized))
	assert.Empty(t, FilterPages([]int{891}, bankSections, authorized))
	assert.Equal(t, []int{890, 3094, 3500}, FilterPages([]int{890, 891, 3093, 3094, 3500, 3501}, bankSections, authorized))
}

func TestSectionFilterScenario(t *testing.T) {
	// pages 117 and 120 fall in section 501 only when it is authorized
	f := NewSectionFilter(bankSections, []string{"305"})
	assert.Equal(t, []int{3200}, BitmapPages(f.Filter(PageBitmap([]int{117, 120, 3200}))))
	assert.Empty(t, BitmapPages(f.Filter(PageBitmap([]int{891}))))
	assert.Equal(t, int64(407), f.AuthorizedPages())
}

func TestSectionFilterOptIn(t *testing.T) {
	f := NewSectionFilter(nil, nil)
	assert.True(t, f.Open)
	assert.True(t, f.Allows(42))
	assert.False(t, f.Allows(0))
	assert.Equal(t, []int{1, 5, 9}, BitmapPages(f.Filter(PageBitmap([]int{9, 5, 1, 5}))))
	assert.Equal(t, int64(-1), f.AuthorizedPages())

	// sections defined but nothing authorized fails closed
	closed := NewSectionFilter(bankSections, nil)
	assert.False(t, closed.Open)
	assert.False(t, closed.Allows(1))
	assert.Empty(t, FilterPages([]int{1, 2, 3}, bankSections, nil))

	// unknown names authorize nothing
	assert.Empty(t, FilterPages([]int{1, 2, 3}, bankSections, []string{"999"}))
}

func TestSectionFilterLeavesInputUntouched(t *testing.T) {
	in := roaring.BitmapOf(1, 900, 3200)
	f := NewSectionFilter(bankSections, []string{"501"})
	out := f.Filter(in)
	assert.Equal(t, uint64(3), in.GetCardinality())
	assert.Equal(t, []uint32{1}, out.ToArray())
	assert.True(t, f.Allows(890))
	assert.False(t, f.Allows(891))
}

func TestSectionFilterCutsRangesAtLastPage(t *testing.T) {
	sections := []Section{
		{Name: "501", StartPage: 1, PageCount: 890},
		{Name: "BAD", StartPage: 0xFFFFFFF0, PageCount: 0x100},
		{Name: "FAR", StartPage: 1 << 33, PageCount: 1},
	}
	authorized := []string{"501", "BAD", "FAR"}
	beyond := 1<<32 + 1

	f := NewSectionFilter(sections, authorized)
	assert.Equal(t, int64(906), f.AuthorizedPages())
	assert.True(t, f.Allows(0xFFFFFFFF))
	assert.False(t, f.Allows(beyond))
	assert.False(t, f.Allows(sections[2].StartPage))

	assert.Equal(t,
		[]int{1, 0xFFFFFFF0},
		FilterPages([]int{1, 891, 0xFFFFFFF0, beyond}, sections, authorized))

	warns := CheckSectionCoverage(sections, 890)
	assert.Contains(t, warningKinds(warns), errors.WarnPageOutOfRange)
}
