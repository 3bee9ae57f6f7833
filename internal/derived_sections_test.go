package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSections(t *testing.T) {
	derived := DeriveSections([]SignificantValue{
		{Value: "305", StartPage: 3094, PageCount: 407},
		{Value: "501", StartPage: 1, PageCount: 890},
		{Value: "201", StartPage: 891, PageCount: 2203},
	})
	assert.Equal(t, bankSections, derived)
	assert.Empty(t, DiffSections(bankSections, derived))
	assert.Empty(t, DeriveSections(nil))
}

func TestDiffSections(t *testing.T) {
	got := []Section{
		{Name: "501", StartPage: 1, PageCount: 800},
		{Name: "999", StartPage: 801, PageCount: 10},
	}
	assert.Equal(t, []string{
		`section "201" missing`,
		`section "305" missing`,
		`section "501" covers 1+800, expected 1+890`,
		`section "999" unexpected`,
	}, DiffSections(bankSections, got))
}
