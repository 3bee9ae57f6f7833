package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	statementLine     = "200-044295-001  JOHN DOE            15/04/2025  1,234.56"
	statementTemplate = "999-999999-999  AAAA AAAA            99/99/9999  9,999.99"
)

func TestScore(t *testing.T) {
	assert.InDelta(t, 0.6807, Score(statementLine, statementTemplate), 0.0001)
	assert.Equal(t, 1.0, Score("12-AB", "99-AA"))
	assert.Equal(t, 0.0, Score("", "999"))
	assert.Equal(t, 0.0, Score("abc", ""))

	// literal mismatch costs three times a digit mismatch
	assert.InDelta(t, 2.0/5.0, Score("12X", "99-"), 0.0001)
	assert.InDelta(t, 4.0/5.0, Score("-1X", "-99"), 0.0001)

	// space positions accept any whitespace
	assert.Equal(t, 1.0, Score("\t", " "))
}

func TestClassifyPrefersAnchoredTemplate(t *testing.T) {
	templates := []LineTemplate{
		{LineID: 1, Name: "inverted", Pattern: "AAAAAAAAAAAAAA  9999 9999            AAAAAAAAAA  AAAAAAAA"},
		{LineID: 2, Name: "detail", Pattern: statementTemplate},
	}
	c, ok := Classify(statementLine, templates)
	require.True(t, ok)
	assert.Equal(t, 2, c.Template.LineID)
	assert.Greater(t, c.Score, MatchThreshold)
	assert.Less(t, Score(statementLine, templates[0].Pattern), MatchThreshold)
}

func TestClassifyNoMatch(t *testing.T) {
	_, ok := Classify("--------", []LineTemplate{{LineID: 1, Pattern: "99999999"}})
	assert.False(t, ok)

	_, ok = Classify("anything", nil)
	assert.False(t, ok)
}

func TestClassifyTieBreaksOnLineID(t *testing.T) {
	templates := []LineTemplate{
		{LineID: 9, Name: "late", Pattern: "99/99"},
		{LineID: 4, Name: "early", Pattern: "99/99"},
		{LineID: 6, Name: "middle", Pattern: "99/99"},
	}
	c, ok := Classify("15/04", templates)
	require.True(t, ok)
	assert.Equal(t, 4, c.Template.LineID)

	// reversing the declaration order does not change the winner
	reversed := []LineTemplate{templates[2], templates[1], templates[0]}
	c2, ok := Classify("15/04", reversed)
	require.True(t, ok)
	assert.Equal(t, c, c2)
}

func TestClassifyIsDeterministic(t *testing.T) {
	templates := []LineTemplate{
		{LineID: 1, Pattern: "AAAAAAAAA"},
		{LineID: 2, Pattern: statementTemplate},
		{LineID: 3, Pattern: "999-999999-999"},
	}
	first, ok := Classify(statementLine, templates)
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		c, ok := Classify(statementLine, templates)
		require.True(t, ok)
		assert.Equal(t, first, c)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
	// the account-only template aligns perfectly over its 14 columns
	assert.Equal(t, 3, first.Template.LineID)
	assert.Equal(t, 1.0, first.Score)
}

func TestExtractFields(t *testing.T) {
	fields := []FieldDef{
		{Name: "account", LineID: 2, FieldID: 1, Start: 1, End: 14},
		{Name: "name", LineID: 2, FieldID: 2, Start: 17, End: 36},
		{Name: "date", LineID: 2, FieldID: 3, Start: 37, End: 46},
		{Name: "amount", LineID: 2, FieldID: 4, Start: 49, End: 56, Trim: TrimBoth},
		{Name: "other", LineID: 3, FieldID: 1, Start: 1, End: 3},
	}
	got := ExtractFields(statementLine, 2, fields)
	assert.Equal(t, map[string]string{
		"account": "200-044295-001",
		"name":    "JOHN DOE",
		"date":    "15/04/2025",
		"amount":  "1,234.56",
	}, got)
}

func TestExtractFieldsShortLine(t *testing.T) {
	fields := []FieldDef{
		{Name: "head", LineID: 1, Start: 1, End: 4},
		{Name: "tail", LineID: 1, Start: 6, End: 12},
		{Name: "beyond", LineID: 1, Start: 40, End: 45},
		{Name: "raw", LineID: 1, Start: 6, End: 12, Trim: TrimNone},
		{Name: "padded", LineID: 1, Start: 1, End: 4, Trim: TrimBoth},
		{Name: "invalid", LineID: 1, Start: 5, End: 2},
	}
	got := ExtractFields(" AB  XY", 1, fields)
	assert.Equal(t, map[string]string{
		"head":    " AB",
		"tail":    "XY",
		"beyond":  "",
		"raw":     "XY     ",
		"padded":  "AB",
		"invalid": "",
	}, got)
}
