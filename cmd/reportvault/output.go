package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/heyvito/reportvault"
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
	formatCSV  outputFormat = "csv"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case formatJSON, formatYAML, formatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

func outputTo(w io.Writer, format outputFormat, data any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case formatCSV:
		res, ok := data.(*reportvault.Result)
		if !ok {
			return fmt.Errorf("csv output is only available for query results")
		}
		return writeRecordsCSV(w, res)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// writeRecordsCSV writes one row per record. Field columns are the sorted
// union of the field names of every record.
func writeRecordsCSV(w io.Writer, res *reportvault.Result) error {
	var fields []string
	for _, r := range res.Records {
		for name := range r.Fields {
			if !slices.Contains(fields, name) {
				fields = append(fields, name)
			}
		}
	}
	slices.Sort(fields)

	out := csv.NewWriter(w)
	header := append([]string{"report", "revision", "page", "line", "line_id", "line_name", "score"}, fields...)
	if err := out.Write(header); err != nil {
		return err
	}
	for cur := res.Cursor(); cur.Next(); {
		r := cur.Record()
		row := []string{
			r.Report,
			r.Revision,
			strconv.Itoa(r.Page),
			strconv.Itoa(r.Line),
			strconv.Itoa(r.LineID),
			r.LineName,
			strconv.FormatFloat(r.Score, 'f', 4, 64),
		}
		for _, name := range fields {
			row = append(row, r.Fields[name])
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
