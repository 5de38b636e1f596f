package ingest

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/emsplot/runtime/internal/logger"
)

// xlsxTable locates a table inside a workbook. Coordinates are 1-based and
// inclusive; fromSheet tables span the used area of the whole sheet.
type xlsxTable struct {
	sheet                  string
	col1, row1, col2, row2 int
	fromSheet              bool
}

// xlsxLoader exposes the Excel tables of a workbook. Workbooks without
// any table expose each sheet as a table instead.
type xlsxLoader struct {
	f      *excelize.File
	names  []string
	tables map[string]xlsxTable
}

func openXLSX(path string) (Loader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	l := &xlsxLoader{f: f, tables: make(map[string]xlsxTable)}
	for _, sheet := range f.GetSheetList() {
		tables, err := f.GetTables(sheet)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read tables of sheet %q: %w", sheet, err)
		}
		for _, t := range tables {
			area, err := parseRange(t.Range)
			if err != nil {
				logger.Warn("ignoring table with invalid range",
					slog.String("table", t.Name),
					slog.String("range", t.Range),
					slog.String("error", err.Error()),
				)
				continue
			}
			area.sheet = sheet
			l.add(t.Name, area)
		}
	}

	if len(l.names) == 0 {
		for _, sheet := range f.GetSheetList() {
			l.add(sheet, xlsxTable{sheet: sheet, fromSheet: true})
		}
	}

	logger.Debug("workbook opened",
		slog.String("path", path),
		slog.Any("tables", l.names),
	)
	return l, nil
}

func (l *xlsxLoader) add(name string, t xlsxTable) {
	if _, dup := l.tables[name]; dup {
		return
	}
	l.names = append(l.names, name)
	l.tables[name] = t
}

func parseRange(ref string) (xlsxTable, error) {
	from, to, ok := strings.Cut(ref, ":")
	if !ok {
		return xlsxTable{}, fmt.Errorf("range %q has no end cell", ref)
	}
	c1, r1, err := excelize.CellNameToCoordinates(from)
	if err != nil {
		return xlsxTable{}, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(to)
	if err != nil {
		return xlsxTable{}, err
	}
	return xlsxTable{col1: c1, row1: r1, col2: c2, row2: r2}, nil
}

func (l *xlsxLoader) Tables() []string {
	return append([]string(nil), l.names...)
}

func (l *xlsxLoader) Headers(table string) ([]string, error) {
	t, err := l.Load(table)
	if err != nil {
		return nil, err
	}
	return t.Headers, nil
}

func (l *xlsxLoader) Load(table string) (Table, error) {
	t, ok := l.tables[table]
	if !ok {
		return Table{}, tableNotFound(table, l.names)
	}

	rows, err := l.f.GetRows(t.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("failed to read sheet %q: %w", t.sheet, err)
	}

	if t.fromSheet {
		width := 0
		for _, r := range rows {
			width = max(width, len(r))
		}
		t.col1, t.row1, t.col2, t.row2 = 1, 1, width, len(rows)
	}

	out := Table{Name: table}
	for r := t.row1; r <= t.row2; r++ {
		var raw []string
		if r-1 < len(rows) {
			raw = rows[r-1]
		}
		if r == t.row1 {
			out.Headers = make([]string, 0, t.col2-t.col1+1)
			for c := t.col1; c <= t.col2; c++ {
				out.Headers = append(out.Headers, strings.TrimSpace(cellAt(raw, c)))
			}
			continue
		}

		row := make([]any, 0, t.col2-t.col1+1)
		empty := true
		for c := t.col1; c <= t.col2; c++ {
			v := cellValue(cellAt(raw, c))
			if v != nil {
				empty = false
			}
			row = append(row, v)
		}
		if !empty {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func (l *xlsxLoader) Close() error {
	return l.f.Close()
}

func cellAt(row []string, col int) string {
	if col-1 < len(row) {
		return row[col-1]
	}
	return ""
}

// cellValue types a raw cell: integers (date serials included) become int,
// other numbers float64, blanks nil. Text keeps leading zeros.
func cellValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !leadingZero(s) {
		return f
	}
	return raw
}

func leadingZero(s string) bool {
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}
