package record

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNotADate is returned when a value cannot be interpreted as a date.
var ErrNotADate = errors.New("cannot be interpreted as a date")

// Spreadsheet serial numbers outside (serialMin, serialMax) are not treated as dates.
// The range covers 2010 through 2029.
const (
	serialMin = 40177
	serialMax = 47482
)

// Supported spreadsheet epochs.
const (
	Epoch1900 = 1900
	Epoch1904 = 1904
)

// isoLayouts are tried, in order, before any configured format.
var isoLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// DateParser turns raw cell values into calendar days.
// The zero value uses the 1900 spreadsheet epoch and no fallback formats.
type DateParser struct {
	// EpochYear is the spreadsheet epoch, 1900 or 1904.
	EpochYear int
	// Formats are tried in order after ISO-8601. Entries containing '%' are
	// read as strptime directives, anything else as a Go layout.
	Formats []string
}

// Parse interprets v as a date and returns it truncated to its calendar day.
func (p DateParser) Parse(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, fmt.Errorf("%v %w", v, ErrNotADate)
		}
		return Day(val), nil
	case *time.Time:
		if val == nil {
			break
		}
		return p.Parse(*val)
	case int:
		return p.fromSerial(int64(val), v)
	case int32:
		return p.fromSerial(int64(val), v)
	case int64:
		return p.fromSerial(val, v)
	case float64:
		if val == math.Trunc(val) {
			return p.fromSerial(int64(val), v)
		}
	case string:
		return p.parseString(val)
	}
	return time.Time{}, fmt.Errorf("%#v %w", v, ErrNotADate)
}

func (p DateParser) fromSerial(n int64, orig any) (time.Time, error) {
	if n <= serialMin || n >= serialMax {
		return time.Time{}, fmt.Errorf("%v %w", orig, ErrNotADate)
	}
	var base time.Time
	if p.EpochYear == Epoch1904 {
		base = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)
	} else {
		// Day 60 of the 1900 system is the fictitious 29 February 1900, so
		// every serial in range counts from 30 December 1899.
		base = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	}
	return base.AddDate(0, 0, int(n)), nil
}

func (p DateParser) parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%q %w", s, ErrNotADate)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	for _, f := range p.Formats {
		layout := f
		if strings.Contains(f, "%") {
			layout = StrptimeLayout(f)
		}
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q %w", s, ErrNotADate)
}

var strptimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "1",
	'd': "2",
	'H': "15",
	'M': "4",
	'S': "5",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'p': "PM",
	'%': "%",
}

// StrptimeLayout converts a strptime style format such as "%d.%m.%Y" into the
// equivalent Go layout. Unknown directives are kept verbatim.
func StrptimeLayout(format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i == len(format)-1 {
			sb.WriteByte(c)
			continue
		}
		i++
		if layout, ok := strptimeDirectives[format[i]]; ok {
			sb.WriteString(layout)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}
	return sb.String()
}
