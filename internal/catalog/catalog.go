// Package catalog loads report structure definitions: line templates, field
// column ranges and sections. Catalog files are YAML or JSON documents
// validated against an embedded JSON schema before use.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/heyvito/reportvault/internal"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "catalog.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("failed to load catalog schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// ReportDefinition is the structure of one report: how its lines look, where
// its fields sit and which sections guard its pages.
type ReportDefinition struct {
	ID           string                  `json:"id" yaml:"id"`
	Structure    string                  `json:"structure,omitempty" yaml:"structure,omitempty"`
	Encoding     string                  `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	SegmentCount int                     `json:"segment_count,omitempty" yaml:"segment_count,omitempty"`
	Templates    []internal.LineTemplate `json:"templates" yaml:"templates"`
	Fields       []internal.FieldDef     `json:"fields" yaml:"fields"`
	Sections     []internal.Section      `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Field returns the field named name.
func (r *ReportDefinition) Field(name string) (internal.FieldDef, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return internal.FieldDef{}, false
}

// FieldByID returns the field identified by lineID and fieldID.
func (r *ReportDefinition) FieldByID(lineID, fieldID int) (internal.FieldDef, bool) {
	for _, f := range r.Fields {
		if f.LineID == lineID && f.FieldID == fieldID {
			return f, true
		}
	}
	return internal.FieldDef{}, false
}

// TextEncoding resolves the report's encoding hint.
func (r *ReportDefinition) TextEncoding() (internal.TextEncoding, error) {
	return internal.ParseTextEncoding(r.Encoding)
}

// Validate checks the rules the schema cannot express.
func (r *ReportDefinition) Validate() error {
	var problems []string
	lines := map[int]bool{}
	for _, t := range r.Templates {
		if lines[t.LineID] {
			problems = append(problems, fmt.Sprintf("line %d is defined twice", t.LineID))
		}
		lines[t.LineID] = true
	}

	names := map[string]bool{}
	ids := map[[2]int]bool{}
	byLine := map[int][]internal.FieldDef{}
	for _, f := range r.Fields {
		if names[f.Name] {
			problems = append(problems, fmt.Sprintf("field %q is defined twice", f.Name))
		}
		names[f.Name] = true
		key := [2]int{f.LineID, f.FieldID}
		if ids[key] {
			problems = append(problems, fmt.Sprintf("field %q reuses line %d field %d", f.Name, f.LineID, f.FieldID))
		}
		ids[key] = true
		if !lines[f.LineID] {
			problems = append(problems, fmt.Sprintf("field %q references undefined line %d", f.Name, f.LineID))
		}
		if f.End < f.Start {
			problems = append(problems, fmt.Sprintf("field %q ends (%d) before it starts (%d)", f.Name, f.End, f.Start))
		}
		byLine[f.LineID] = append(byLine[f.LineID], f)
	}

	for line, fields := range byLine {
		slices.SortFunc(fields, func(a, b internal.FieldDef) int { return a.Start - b.Start })
		for i := 1; i < len(fields); i++ {
			if fields[i].Start <= fields[i-1].End {
				problems = append(problems, fmt.Sprintf("fields %q and %q overlap on line %d", fields[i-1].Name, fields[i].Name, line))
			}
		}
	}

	if _, err := r.TextEncoding(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return fmt.Errorf("report %s: %s", r.ID, strings.Join(problems, "; "))
}

// Catalog is a set of report definitions. It is read-only once loaded.
type Catalog struct {
	Reports []ReportDefinition `json:"reports" yaml:"reports"`
}

// Report returns the definition of id.
func (c *Catalog) Report(id string) (*ReportDefinition, bool) {
	for i := range c.Reports {
		if c.Reports[i].ID == id {
			return &c.Reports[i], true
		}
	}
	return nil, false
}

// Load reads and validates a catalog file. Files ending in .json are decoded
// as JSON, anything else as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document in the given format, either
// "json" or "yaml".
func Parse(data []byte, format string) (*Catalog, error) {
	var generic any
	switch format {
	case "json":
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
		// round-trip through JSON so the validator sees JSON types only
		raw, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
		if err = json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
		data = raw
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	s, err := schema()
	if err != nil {
		return nil, err
	}
	if err = s.Validate(generic); err != nil {
		return nil, fmt.Errorf("catalog does not match schema: %w", err)
	}

	var c Catalog
	if err = json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	seen := map[string]bool{}
	for i := range c.Reports {
		r := &c.Reports[i]
		if seen[r.ID] {
			return nil, fmt.Errorf("report %s is defined twice", r.ID)
		}
		seen[r.ID] = true
		if err = r.Validate(); err != nil {
			return nil, err
		}
		slices.SortStableFunc(r.Sections, func(a, b internal.Section) int { return a.StartPage - b.StartPage })
	}
	return &c, nil
}
