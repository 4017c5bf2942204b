package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/astranetix/bms/common/errors"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var contentTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatJSON: "application/json",
	FormatYAML: "application/yaml",
}

func validFormat(format string) bool {
	_, ok := contentTypes[format]
	return ok
}

// ContentType returns the MIME type served for format.
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

func unsupportedFormat(format string) error {
	return errors.Invalid.Explain("unsupported file format %q", format).
		WithField("file_format", "file_format", "must be one of csv json yaml")
}

// Render encodes r in format.
func Render(r *Report, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatCSV:
		return renderCSV(r)
	}
	return nil, unsupportedFormat(format)
}

// renderCSV writes the summary as metric,value pairs in key order followed
// by the table with its own header row.
func renderCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	records := [][]string{
		{"metric", "value"},
		{"report_type", r.ReportType},
		{"template", r.Template},
		{"period_start", r.PeriodStart.Format(time.RFC3339)},
		{"period_end", r.PeriodEnd.Format(time.RFC3339)},
	}
	keys := make([]string, 0, len(r.Summary))
	for k := range r.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		records = append(records, []string{k, cell(r.Summary[k])})
	}
	if len(r.Columns) > 0 {
		records = append(records, r.Columns)
		for _, row := range r.Rows {
			rec := make([]string, len(r.Columns))
			for i, c := range r.Columns {
				rec[i] = cell(row[c])
			}
			records = append(records, rec)
		}
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
