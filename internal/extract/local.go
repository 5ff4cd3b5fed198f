package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/tidwall/gjson"
)

// MaxHeaderSearchRows is how many leading CSV rows are scanned for a header
// row. Exports often carry title or note rows above the real header.
var MaxHeaderSearchRows = 20

// contextCheckInterval is how many rows to process between cancellation checks.
var contextCheckInterval = 500

// FileSource resolves an uploaded file URL back to its bytes.
// The in-memory upload transport implements this for offline operation.
type FileSource interface {
	Fetch(url string) (name string, data []byte, err error)
}

// Local extracts candidate records from CSV and JSON files directly, without
// the external mapping service.
type Local struct {
	files FileSource
}

// NewLocal builds a local extractor reading file bytes from files.
func NewLocal(files FileSource) *Local {
	return &Local{files: files}
}

// Extract parses the file as JSON when it starts with an object or array,
// as CSV otherwise. An empty result is an error: a file with no usable rows
// cannot seed a review.
func (l *Local) Extract(ctx context.Context, fileURL string, def catalog.Definition) ([]catalog.Record, error) {
	_, data, err := l.files.Fetch(fileURL)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}

	data = sanitizeUTF8(stripBOM(data))

	var records []catalog.Record
	if looksLikeJSON(data) {
		records, err = parseJSONRecords(data, def)
	} else {
		records, err = parseCSVRecords(ctx, data, def)
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file contains no data rows")
	}
	return records, nil
}

// looksLikeJSON sniffs the first non-space byte.
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// parseJSONRecords accepts an array of objects or, tolerantly, a single
// object treated as a one-element array. Non-object array elements are
// skipped.
func parseJSONRecords(data []byte, def catalog.Definition) ([]catalog.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	parsed := gjson.ParseBytes(data)

	var records []catalog.Record
	switch {
	case parsed.IsArray():
		parsed.ForEach(func(_, element gjson.Result) bool {
			if element.IsObject() {
				records = append(records, toRecord(element, def))
			}
			return true
		})
	case parsed.IsObject():
		records = append(records, toRecord(parsed, def))
	default:
		return nil, fmt.Errorf("JSON root must be an object or array")
	}

	return records, nil
}

// parseCSVRecords locates the header row, maps schema fields to columns by
// name (case-insensitive), and builds one record per non-empty data row.
func parseCSVRecords(ctx context.Context, data []byte, def catalog.Definition) ([]catalog.Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headerRow := findHeaderRow(rows, def)
	if headerRow < 0 {
		return nil, fmt.Errorf("no header row matching the %s schema found", def.Key)
	}

	// Positions of schema fields among the header columns.
	columns := make(map[string]int, len(def.Fields))
	for pos, cell := range rows[headerRow] {
		name := strings.ToLower(cleanCell(cell))
		if _, taken := columns[name]; !taken && def.HasField(name) {
			columns[name] = pos
		}
	}

	var records []catalog.Record
	for i, row := range rows[headerRow+1:] {
		if i%contextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isEmptyRow(row) {
			continue
		}

		rec := make(catalog.Record, len(columns))
		for _, f := range def.Fields {
			pos, ok := columns[strings.ToLower(f.Name)]
			if !ok || pos >= len(row) {
				continue
			}
			if v := cleanCell(row[pos]); v != "" {
				rec[f.Name] = v
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	return records, nil
}

// findHeaderRow returns the index of the first row within the search window
// that names at least one schema field, or -1.
func findHeaderRow(rows [][]string, def catalog.Definition) int {
	limit := MaxHeaderSearchRows
	if len(rows) < limit {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			if def.HasField(cleanCell(cell)) {
				return i
			}
		}
	}
	return -1
}

// PeekHeaders returns the probable column headers of a file, for schema
// inference before extraction: the first non-empty CSV row, or the keys of
// the first object in a JSON file. ok is false when nothing header-like
// exists.
func PeekHeaders(data []byte) ([]string, bool) {
	data = sanitizeUTF8(stripBOM(data))

	if looksLikeJSON(data) {
		if !gjson.ValidBytes(data) {
			return nil, false
		}
		parsed := gjson.ParseBytes(data)
		if parsed.IsArray() {
			elements := parsed.Array()
			if len(elements) == 0 {
				return nil, false
			}
			parsed = elements[0]
		}
		if !parsed.IsObject() {
			return nil, false
		}
		var keys []string
		parsed.ForEach(func(key, _ gjson.Result) bool {
			keys = append(keys, key.String())
			return true
		})
		return keys, len(keys) > 0
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		row, err := r.Read()
		if err != nil {
			return nil, false
		}
		if isEmptyRow(row) {
			continue
		}
		headers := make([]string, len(row))
		for i, cell := range row {
			headers[i] = cleanCell(cell)
		}
		return headers, true
	}
}
