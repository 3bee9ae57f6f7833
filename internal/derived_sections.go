package internal

import (
	"cmp"
	"fmt"
	"slices"
)

// DeriveSections builds sections from the significant values of an index
// file, one per value, ordered by start page. IDs are assigned in that order.
func DeriveSections(values []SignificantValue) []Section {
	out := make([]Section, 0, len(values))
	for _, v := range values {
		out = append(out, Section{Name: v.Value, StartPage: v.StartPage, PageCount: v.PageCount})
	}
	slices.SortStableFunc(out, func(a, b Section) int {
		return cmp.Or(cmp.Compare(a.StartPage, b.StartPage), cmp.Compare(a.Name, b.Name))
	})
	for i := range out {
		out[i].ID = uint32(i + 1)
	}
	return out
}

// DiffSections compares two section lists by name and page range, ignoring
// IDs and order. Each difference is described by one string.
func DiffSections(want, got []Section) []string {
	type span struct{ start, count int }
	index := func(list []Section) map[string]span {
		m := make(map[string]span, len(list))
		for _, s := range list {
			m[s.Name] = span{s.StartPage, s.PageCount}
		}
		return m
	}
	w, g := index(want), index(got)

	var diffs []string
	for name, ws := range w {
		gs, ok := g[name]
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("section %q missing", name))
		case gs != ws:
			diffs = append(diffs, fmt.Sprintf("section %q covers %d+%d, expected %d+%d", name, gs.start, gs.count, ws.start, ws.count))
		}
	}
	for name := range g {
		if _, ok := w[name]; !ok {
			diffs = append(diffs, fmt.Sprintf("section %q unexpected", name))
		}
	}
	slices.Sort(diffs)
	return diffs
}
