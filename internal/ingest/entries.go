// Package ingest turns source tables into entries.
//
// A loader exposes the tables of one file as headers plus rows of raw cell
// values. BuildEntries maps the configured column names onto those headers
// and converts every row into a record.Entry. A configured column that the
// headers lack is fatal; a row that cannot become an entry is logged and
// dropped.
package ingest

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Table is one named table of a source file.
// Rows hold raw cell values: string, int, float64, time.Time or nil.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// Stats counts what BuildEntries did with the rows of a table.
type Stats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// positions holds the header index of each entry field.
type positions struct {
	dateStart, dateEnd, role, institution, institutionType, location int
}

// BuildEntries converts the rows of table into a batch of entries.
// Dates are read with parser; districts maps a location to its district.
func BuildEntries(table Table, columns pipeline.Columns, parser record.DateParser, districts map[string]string) (record.Entries, Stats, error) {
	pos, err := locate(table, columns)
	if err != nil {
		return record.Entries{}, Stats{}, err
	}

	stats := Stats{Rows: len(table.Rows)}
	items := make([]record.Entry, 0, len(table.Rows))
	for i, row := range table.Rows {
		e, err := buildEntry(row, pos, parser)
		if err != nil {
			stats.Dropped++
			rowErr := &errhandling.RowError{Row: i, Err: err}
			logger.Warn("dropping invalid row",
				slog.String("table", table.Name),
				slog.Int("row", i),
				slog.String("error", rowErr.Error()),
			)
			continue
		}
		if d, ok := districts[e.Location]; ok {
			e = e.WithDistrict(d)
		}
		items = append(items, e)
	}
	stats.Kept = len(items)

	logger.Info("entries built",
		slog.String("table", table.Name),
		slog.Int("rows", stats.Rows),
		slog.Int("kept", stats.Kept),
		slog.Int("dropped", stats.Dropped),
	)
	return record.NewEntries(table.Name, items), stats, nil
}

func locate(table Table, columns pipeline.Columns) (positions, error) {
	index := make(map[string]int, len(table.Headers))
	for i, h := range table.Headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	find := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, &errhandling.LookupError{Column: name, Table: table.Name, Available: table.Headers}
		}
		return i, nil
	}

	var p positions
	var err error
	for _, f := range []struct {
		dst  *int
		name string
	}{
		{&p.dateStart, columns.DateStart},
		{&p.dateEnd, columns.DateEnd},
		{&p.role, columns.Role},
		{&p.institution, columns.Institution},
		{&p.institutionType, columns.InstitutionType},
		{&p.location, columns.Location},
	} {
		if *f.dst, err = find(f.name); err != nil {
			return positions{}, err
		}
	}
	return p, nil
}

func buildEntry(row []any, pos positions, parser record.DateParser) (record.Entry, error) {
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	start, err := parseDate(parser, cell(pos.dateStart))
	if err != nil {
		return record.Entry{}, fmt.Errorf("start date: %w", err)
	}
	end, err := parseDate(parser, cell(pos.dateEnd))
	if err != nil {
		return record.Entry{}, fmt.Errorf("end date: %w", err)
	}

	return record.NewEntry(start, end,
		text(cell(pos.role)),
		text(cell(pos.institution)),
		text(cell(pos.institutionType)),
		text(cell(pos.location)),
	)
}

// parseDate reads a date cell. Spreadsheet date-times carry the time of day
// as the fraction of a serial number, which is dropped.
func parseDate(parser record.DateParser, v any) (time.Time, error) {
	if f, ok := v.(float64); ok {
		v = math.Floor(f)
	}
	return parser.Parse(v)
}

// text renders a non-date cell as a trimmed string.
func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.DateOnly)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
