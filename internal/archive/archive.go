// Package archive finds index file and page store pairs under an archive
// root. Files are named <REPORT>_<REVISION>.idx and <REPORT>_<REVISION>.pag,
// where the revision is a date-like string that sorts chronologically.
package archive

import (
	"cmp"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/heyvito/reportvault/errors"
)

const (
	IndexExt     = ".idx"
	PageStoreExt = ".pag"
)

// Pair is a report revision with both of its files present.
type Pair struct {
	Report    string `json:"report" yaml:"report"`
	Revision  string `json:"revision" yaml:"revision"`
	IndexPath string `json:"index_path" yaml:"index_path"`
	PagePath  string `json:"page_path" yaml:"page_path"`
}

// Orphan is a file whose counterpart is missing.
type Orphan struct {
	Report   string `json:"report" yaml:"report"`
	Revision string `json:"revision" yaml:"revision"`
	Path     string `json:"path" yaml:"path"`
}

func (o Orphan) Warning() errors.IntegrityWarning {
	missing := PageStoreExt
	if strings.EqualFold(filepath.Ext(o.Path), PageStoreExt) {
		missing = IndexExt
	}
	return errors.IntegrityWarning{
		File:   o.Path,
		Kind:   errors.WarnOrphanFile,
		Detail: "no matching " + missing + " file",
	}
}

// Inventory lists the pairs and orphans found under a root, ordered by report
// and revision.
type Inventory struct {
	Root    string
	Pairs   []Pair
	Orphans []Orphan
}

// ParseName splits a file name into report and revision. The revision follows
// the last underscore, so report identifiers may contain underscores.
func ParseName(name string) (report, revision, ext string, ok bool) {
	ext = strings.ToLower(filepath.Ext(name))
	if ext != IndexExt && ext != PageStoreExt {
		return "", "", "", false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", "", false
	}
	return base[:i], base[i+1:], ext, true
}

// Discover walks root recursively. When the same report revision appears in
// more than one directory, the first one in lexical walk order is kept.
func Discover(root string) (*Inventory, error) {
	type halves struct{ idx, pag string }
	found := map[[2]string]*halves{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		report, revision, ext, ok := ParseName(d.Name())
		if !ok {
			return nil
		}
		key := [2]string{report, revision}
		h := found[key]
		if h == nil {
			h = &halves{}
			found[key] = h
		}
		switch {
		case ext == IndexExt && h.idx == "":
			h.idx = path
		case ext == PageStoreExt && h.pag == "":
			h.pag = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv := &Inventory{Root: root}
	for key, h := range found {
		switch {
		case h.idx != "" && h.pag != "":
			inv.Pairs = append(inv.Pairs, Pair{Report: key[0], Revision: key[1], IndexPath: h.idx, PagePath: h.pag})
		case h.idx != "":
			inv.Orphans = append(inv.Orphans, Orphan{Report: key[0], Revision: key[1], Path: h.idx})
		default:
			inv.Orphans = append(inv.Orphans, Orphan{Report: key[0], Revision: key[1], Path: h.pag})
		}
	}
	slices.SortFunc(inv.Pairs, func(a, b Pair) int {
		return cmp.Or(cmp.Compare(a.Report, b.Report), cmp.Compare(a.Revision, b.Revision))
	})
	slices.SortFunc(inv.Orphans, func(a, b Orphan) int {
		return cmp.Or(cmp.Compare(a.Report, b.Report), cmp.Compare(a.Revision, b.Revision), cmp.Compare(a.Path, b.Path))
	})
	return inv, nil
}

// Revisions lists the revisions of report that have both files, oldest first.
func (inv *Inventory) Revisions(report string) []string {
	var out []string
	for _, p := range inv.Pairs {
		if p.Report == report {
			out = append(out, p.Revision)
		}
	}
	return out
}

// Resolve picks a pair for report. An empty qualifier selects the latest
// revision; otherwise the latest revision equal to, or starting with, the
// qualifier is used.
func (inv *Inventory) Resolve(report, qualifier string) (Pair, error) {
	var best *Pair
	for i := range inv.Pairs {
		p := &inv.Pairs[i]
		if p.Report != report || !strings.HasPrefix(p.Revision, qualifier) {
			continue
		}
		if best == nil || p.Revision > best.Revision {
			best = p
		}
	}
	if best == nil {
		return Pair{}, errors.ReportNotFound{Report: report, Revision: qualifier}
	}
	return *best, nil
}
