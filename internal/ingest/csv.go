package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// utf8BOM is written by spreadsheet exports at the start of CSV files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvLoader holds a single table named after the file. Cells are strings.
type csvLoader struct {
	table Table
}

func openCSV(path string) (Loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := Table{Name: name}
	if len(records) > 0 {
		t.Headers = make([]string, len(records[0]))
		for i, h := range records[0] {
			t.Headers[i] = strings.TrimSpace(h)
		}
		t.Rows = make([][]any, 0, len(records)-1)
		for _, rec := range records[1:] {
			if blank(rec) {
				continue
			}
			row := make([]any, len(rec))
			for i, v := range rec {
				row[i] = v
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return &csvLoader{table: t}, nil
}

// sniffDelimiter picks ';' when the header line has more semicolons than
// commas, as written by spreadsheets in locales using a decimal comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (l *csvLoader) Tables() []string {
	return []string{l.table.Name}
}

func (l *csvLoader) Headers(table string) ([]string, error) {
	t, err := l.Load(table)
	if err != nil {
		return nil, err
	}
	return t.Headers, nil
}

func (l *csvLoader) Load(table string) (Table, error) {
	if table != l.table.Name {
		return Table{}, tableNotFound(table, l.Tables())
	}
	return l.table, nil
}

func (l *csvLoader) Close() error { return nil }
