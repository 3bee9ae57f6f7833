package internal

import (
	"strings"
	"unicode"
)

// Template classification characters. Any other character is a literal that
// must appear verbatim in the line.
const (
	TemplateDigit = '9'
	TemplateAlpha = 'A'
	TemplateSpace = ' '
)

const (
	weightLiteral = 3.0
	weightDigit   = 1.0
	weightAlpha   = 1.0
	weightSpace   = 0.5
)

// MatchThreshold is the minimum score a template needs to classify a line.
const MatchThreshold = 0.55

// LineTemplate describes the expected character classes of one kind of
// report line.
type LineTemplate struct {
	LineID  int    `json:"line_id" yaml:"line_id"`
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// TrimMode selects how an extracted field value is trimmed.
type TrimMode string

const (
	TrimRight TrimMode = "right"
	TrimBoth  TrimMode = "both"
	TrimNone  TrimMode = "none"
)

// FieldDef is a named, 1-based inclusive column range of a line template.
type FieldDef struct {
	Name        string   `json:"name" yaml:"name"`
	LineID      int      `json:"line_id" yaml:"line_id"`
	FieldID     int      `json:"field_id" yaml:"field_id"`
	Start       int      `json:"start" yaml:"start"`
	End         int      `json:"end" yaml:"end"`
	Indexed     bool     `json:"indexed" yaml:"indexed"`
	Significant bool     `json:"significant" yaml:"significant"`
	Trim        TrimMode `json:"trim,omitempty" yaml:"trim,omitempty"`
}

// Width returns the number of columns the field spans.
func (f FieldDef) Width() int {
	if f.Start < 1 || f.End < f.Start {
		return 0
	}
	return f.End - f.Start + 1
}

// Classification is the outcome of a successful Classify call.
type Classification struct {
	Template LineTemplate
	Score    float64
}

// Score aligns pattern and line position by position, up to the shorter of
// both, and returns the share of weight contributed by matching positions.
// The result is always within [0, 1].
func Score(line, pattern string) float64 {
	l := []rune(line)
	p := []rune(pattern)
	n := min(len(l), len(p))

	var total, matched float64
	for i := 0; i < n; i++ {
		var w float64
		var ok bool
		switch c := p[i]; c {
		case TemplateDigit:
			w, ok = weightDigit, unicode.IsDigit(l[i])
		case TemplateAlpha:
			w, ok = weightAlpha, unicode.IsLetter(l[i])
		case TemplateSpace:
			w, ok = weightSpace, unicode.IsSpace(l[i])
		default:
			w, ok = weightLiteral, l[i] == c
		}
		total += w
		if ok {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// Classify returns the best template for line. Templates scoring below
// MatchThreshold never match; among the rest the highest score wins and ties
// go to the lowest LineID, regardless of the order of templates.
func Classify(line string, templates []LineTemplate) (Classification, bool) {
	var best Classification
	found := false
	for _, t := range templates {
		s := Score(line, t.Pattern)
		if s < MatchThreshold {
			continue
		}
		if !found || s > best.Score || (s == best.Score && t.LineID < best.Template.LineID) {
			best = Classification{Template: t, Score: s}
			found = true
		}
	}
	return best, found
}

// ExtractFields slices every field of lineID out of line. Columns past the
// end of the line read as spaces, so short lines yield empty values rather
// than errors.
func ExtractFields(line string, lineID int, fields []FieldDef) map[string]string {
	runes := []rune(line)
	out := make(map[string]string)
	for _, f := range fields {
		if f.LineID != lineID {
			continue
		}
		out[f.Name] = extractField(runes, f)
	}
	return out
}

func extractField(line []rune, f FieldDef) string {
	if f.Width() == 0 {
		return ""
	}
	start := f.Start - 1
	end := f.End
	var value string
	if start < len(line) {
		value = string(line[start:min(end, len(line))])
	}
	if f.Trim == TrimNone {
		if pad := f.Width() - len([]rune(value)); pad > 0 {
			value += strings.Repeat(" ", pad)
		}
		return value
	}
	return ApplyTrim(value, f.Trim)
}

// ApplyTrim trims value the way fields using mode are extracted. TrimNone
// leaves value untouched.
func ApplyTrim(value string, mode TrimMode) string {
	switch mode {
	case TrimNone:
		return value
	case TrimBoth:
		return strings.TrimSpace(value)
	default:
		return strings.TrimRightFunc(value, unicode.IsSpace)
	}
}
