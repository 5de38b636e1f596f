// Package record provides the public data model of the emsplot runtime.
// It defines isolation entries, the batches that carry them through a
// process, the provenance report attached to in-flight data, and the
// plot-ready series and datasets a process produces.
//
// This package is intended to be importable by rendering front-ends that
// consume datasets produced by the runtime.
package record

import (
	"errors"
	"fmt"
	"time"
)

// Column names usable by filters and splitters.
const (
	ColumnDateStart       = "date_start"
	ColumnDateEnd         = "date_end"
	ColumnRole            = "role"
	ColumnInstitution     = "institution"
	ColumnInstitutionType = "institution_type"
	ColumnLocation        = "location"
	ColumnDistrict        = "district"
)

// dateLayout is the layout used when a date column is read as a string.
const dateLayout = "2006-01-02"

// ErrMissingField is returned when an entry is built with an empty required field.
var ErrMissingField = errors.New("missing value")

// requiredColumns lists the six fields every entry must carry, in source order.
var requiredColumns = []string{
	ColumnDateStart,
	ColumnDateEnd,
	ColumnRole,
	ColumnInstitution,
	ColumnInstitutionType,
	ColumnLocation,
}

// RequiredColumns returns the names of the fields every entry must carry.
func RequiredColumns() []string {
	out := make([]string, len(requiredColumns))
	copy(out, requiredColumns)
	return out
}

// Columns returns every column name an entry exposes, derived columns included.
func Columns() []string {
	return append(RequiredColumns(), ColumnDistrict)
}

// IsColumn reports whether name is a column of Entry.
func IsColumn(name string) bool {
	for _, c := range Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// IsDateColumn reports whether name is one of the date columns.
func IsDateColumn(name string) bool {
	return name == ColumnDateStart || name == ColumnDateEnd
}

// Entry is one validated isolation or quarantine record.
// Entries are immutable once built.
type Entry struct {
	DateStart       time.Time `json:"dateStart"`
	DateEnd         time.Time `json:"dateEnd"`
	Role            string    `json:"role"`
	Institution     string    `json:"institution"`
	InstitutionType string    `json:"institutionType"`
	Location        string    `json:"location"`

	// District is derived from Location through a user supplied lookup.
	// It is empty when the location is unknown.
	District string `json:"district,omitempty"`
}

// NewEntry builds an Entry, normalising both dates to calendar days.
// It fails when any of the six required fields is empty.
func NewEntry(start, end time.Time, role, institution, institutionType, location string) (Entry, error) {
	e := Entry{
		DateStart:       Day(start),
		DateEnd:         Day(end),
		Role:            role,
		Institution:     institution,
		InstitutionType: institutionType,
		Location:        location,
	}
	for _, col := range requiredColumns {
		if !e.has(col) {
			return Entry{}, fmt.Errorf("cannot build entry, %w for %s", ErrMissingField, col)
		}
	}
	return e, nil
}

// WithDistrict returns a copy of the entry with its derived district set.
func (e Entry) WithDistrict(district string) Entry {
	e.District = district
	return e
}

func (e Entry) has(col string) bool {
	switch col {
	case ColumnDateStart:
		return !e.DateStart.IsZero()
	case ColumnDateEnd:
		return !e.DateEnd.IsZero()
	default:
		v, _ := e.Field(col)
		return v != ""
	}
}

// Field returns the value of the named column as a string.
// Dates are rendered as YYYY-MM-DD. The boolean is false for unknown columns.
func (e Entry) Field(column string) (string, bool) {
	switch column {
	case ColumnDateStart:
		return e.DateStart.Format(dateLayout), true
	case ColumnDateEnd:
		return e.DateEnd.Format(dateLayout), true
	case ColumnRole:
		return e.Role, true
	case ColumnInstitution:
		return e.Institution, true
	case ColumnInstitutionType:
		return e.InstitutionType, true
	case ColumnLocation:
		return e.Location, true
	case ColumnDistrict:
		return e.District, true
	default:
		return "", false
	}
}

// Date returns the value of a date column.
func (e Entry) Date(column string) (time.Time, bool) {
	switch column {
	case ColumnDateStart:
		return e.DateStart, true
	case ColumnDateEnd:
		return e.DateEnd, true
	default:
		return time.Time{}, false
	}
}

// DurationDays is the number of calendar days the entry spans, both ends included.
func (e Entry) DurationDays() int {
	return DaysBetween(e.DateStart, e.DateEnd) + 1
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a).
// Both arguments are expected to be normalised with Day.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Entries is an ordered batch of entries with its provenance report.
// A batch exclusively owns its items and its report.
type Entries struct {
	// Label identifies the batch in logs.
	Label string `json:"label"`
	// Items are the entries of the batch.
	Items []Entry `json:"items"`
	// Report records the splitter values that produced the batch.
	Report DataReport `json:"report"`
}

// NewEntries creates a batch with an empty report.
func NewEntries(label string, items []Entry) Entries {
	return Entries{Label: label, Items: items, Report: NewDataReport()}
}

// Len returns the number of entries in the batch.
func (b Entries) Len() int {
	return len(b.Items)
}

// Derive returns an empty batch owning a copy of this batch's report.
func (b Entries) Derive(label string) Entries {
	return Entries{Label: label, Report: b.Report.Copy()}
}
