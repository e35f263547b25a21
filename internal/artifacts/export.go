package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/buffquant/simrun/internal/apierr"
)

// Format is a streaming export output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a requested export format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatNDJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", apierr.InvalidExportFormat(fmt.Sprintf("unsupported export format: %s", s))
	}
}

// injectionPrefixes are the leading characters that trigger formula
// execution in common spreadsheet applications (spec.md §4.K, §9).
var injectionPrefixes = []byte{'=', '+', '-', '@'}

func neutralizeCell(s string) string {
	if s == "" {
		return s
	}
	for _, p := range injectionPrefixes {
		if s[0] == p {
			return "'" + s
		}
	}
	return s
}

// WriteExport streams rows (each a map[string]any, already JSON-shaped) to w
// in the requested format. CSV headers are the union of keys across all
// rows in stable (first-seen, then sorted) order.
func WriteExport(w io.Writer, format Format, rows []map[string]any) error {
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(rows)
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		return writeCSV(w, rows)
	default:
		return apierr.InvalidExportFormat("unsupported export format")
	}
}

func writeCSV(w io.Writer, rows []map[string]any) error {
	headers := unionKeys(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = neutralizeCell(cellString(row[h]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func unionKeys(rows []map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// ContentDisposition builds the attachment header value for an export.
func ContentDisposition(runID, what, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s-%s.%s"`, runID, what, ext)
}
