// Package rows adapts tabular inputs into the column-keyed rows the upload
// engine consumes. The first non-empty record is taken as the header; every
// later record becomes one Row keyed by those headers.
package rows

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JulianTonti/specify7/internal/upload"
)

// FromCSV reads a delimited file into rows keyed by its header line.
func FromCSV(r io.Reader) ([]upload.Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = sanitizeUTF8(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]upload.Row, error) {
	header := -1
	for i, rec := range records {
		if !isEmptyRecord(rec) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("no header row found")
	}

	columns := make([]string, len(records[header]))
	for i, cell := range records[header] {
		columns[i] = CleanCell(cell)
	}

	var out []upload.Row
	for _, rec := range records[header+1:] {
		if isEmptyRecord(rec) {
			continue
		}
		row := make(upload.Row, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(rec) {
				row[col] = CleanCell(rec[i])
			} else {
				row[col] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// CleanCell strips the artifacts spreadsheets leave in exported cells: byte
// order marks, Excel's ="value" formula wrapper, and surrounding whitespace.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func isEmptyRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// the csv reader never chokes on mixed encodings.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}
