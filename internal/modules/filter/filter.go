// Package filter provides the filter stage of a process.
// A filter decides, entry by entry, whether an entry is kept; the process
// keeps an entry only when every configured filter matches it.
package filter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Module is a predicate over entries.
type Module interface {
	// Match reports whether the entry is kept. An error aborts the run.
	Match(entry record.Entry) (bool, error)
}

// Membership keeps entries whose column value is (include) or is not
// (exclude) one of a fixed set of values.
type Membership struct {
	column  string
	values  map[string]struct{}
	exclude bool
}

// NewMembershipFromConfig builds an include or exclude filter.
// It reads "column" and either "values" (a list) or "value".
func NewMembershipFromConfig(cfg pipeline.StageConfig, exclude bool) (*Membership, error) {
	p := params.New(pipeline.StageFilter, cfg)

	column, err := p.Column("column")
	if err != nil {
		return nil, err
	}

	values, err := p.Strings("values")
	if err != nil {
		return nil, err
	}
	if p.Has("value") {
		single, err := p.String("value")
		if err != nil {
			return nil, err
		}
		values = append(values, single)
	}
	if len(values) == 0 {
		return nil, p.Errorf(errhandling.ErrMissingParameter, "one of 'values' or 'value' is required")
	}

	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}

	logger.Debug("membership filter initialized",
		slog.String("name", cfg.Name),
		slog.String("column", column),
		slog.Int("values", len(set)),
		slog.Bool("exclude", exclude),
	)
	return &Membership{column: column, values: set, exclude: exclude}, nil
}

// Match implements Module.
func (m *Membership) Match(entry record.Entry) (bool, error) {
	v, _ := entry.Field(m.column)
	_, found := m.values[v]
	return found != m.exclude, nil
}

// DateBound keeps entries whose date column is on or before (or on or
// after) a fixed day.
type DateBound struct {
	column string
	bound  time.Time
	before bool
}

// NewDateBoundFromConfig builds a date_before or date_after filter.
// It reads "column" (a date column) and "date", parsed with parser.
func NewDateBoundFromConfig(cfg pipeline.StageConfig, parser record.DateParser, before bool) (*DateBound, error) {
	p := params.New(pipeline.StageFilter, cfg)

	column, err := p.Column("column")
	if err != nil {
		return nil, err
	}
	if !record.IsDateColumn(column) {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "column %q is not a date column", column)
	}

	raw, ok := cfg.Config["date"]
	if !ok {
		return nil, p.Errorf(errhandling.ErrMissingParameter, "parameter 'date' is required")
	}
	bound, err := parser.Parse(raw)
	if err != nil {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "parameter 'date': %v", err)
	}

	return &DateBound{column: column, bound: record.Day(bound), before: before}, nil
}

// Match implements Module.
func (d *DateBound) Match(entry record.Entry) (bool, error) {
	v, ok := entry.Date(d.column)
	if !ok {
		return false, fmt.Errorf("entry has no date column %q", d.column)
	}
	if d.before {
		return !v.After(d.bound), nil
	}
	return !v.Before(d.bound), nil
}

// All matches every entry.
type All struct{}

// Match implements Module.
func (All) Match(record.Entry) (bool, error) {
	return true, nil
}

var (
	_ Module = (*Membership)(nil)
	_ Module = (*DateBound)(nil)
	_ Module = All{}
)
