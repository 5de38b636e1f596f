// Package transformer provides the transformer stage of a process.
// A transformer reduces one leaf batch to one plottable series and stamps
// its own name on the series' report.
//
// All transformers are pure: they never modify the input batch, and equal
// inputs give equal outputs. An empty batch gives an empty series.
package transformer

import (
	"log/slog"
	"sort"
	"time"

	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Series descriptions.
const (
	DescriptionNew        = "New cases"
	DescriptionCumulative = "People in confinement"
	DescriptionPeriods    = "Period in question"
)

// DefaultWindowDays is the default outbreak window of the periods transformer.
const DefaultWindowDays = 9

// Module aggregates a batch into a series.
type Module interface {
	// Name is the configured transformer name recorded in reports.
	Name() string
	// Transform aggregates batch.
	Transform(batch record.Entries) record.Series
}

func newSeries(batch record.Entries, name string, kind record.Kind, description string) record.Series {
	return record.Series{
		X:           []time.Time{},
		Y:           []int{},
		Kind:        kind,
		Description: description,
		Report:      batch.Report.WithTransformer(name),
	}
}

// =============================================================================
// New cases
// =============================================================================

// New counts entries per start day over the dense range of start days.
type New struct {
	name string
}

// NewNewFromConfig builds a new-cases transformer. It takes no parameters.
func NewNewFromConfig(cfg pipeline.StageConfig) (*New, error) {
	return &New{name: cfg.Name}, nil
}

// Name implements Module.
func (t *New) Name() string { return t.name }

// Transform implements Module.
func (t *New) Transform(batch record.Entries) record.Series {
	s := newSeries(batch, t.name, record.KindBar, DescriptionNew)
	if batch.Len() == 0 {
		return s
	}

	counts := make(map[time.Time]int, batch.Len())
	first, last := batch.Items[0].DateStart, batch.Items[0].DateStart
	for _, e := range batch.Items {
		counts[e.DateStart]++
		if e.DateStart.Before(first) {
			first = e.DateStart
		}
		if e.DateStart.After(last) {
			last = e.DateStart
		}
	}

	s.X, s.Y = dense(first, last, counts)
	return s
}

// =============================================================================
// Cumulative
// =============================================================================

// Cumulative counts, for each day, the entries whose range covers it.
type Cumulative struct {
	name string
	pad  bool
}

// NewCumulativeFromConfig builds a cumulative transformer.
// "pad" (default true) adds a zero day before the first and after the last day.
func NewCumulativeFromConfig(cfg pipeline.StageConfig) (*Cumulative, error) {
	pad, err := params.New(pipeline.StageTransformer, cfg).Bool("pad", true)
	if err != nil {
		return nil, err
	}
	return &Cumulative{name: cfg.Name, pad: pad}, nil
}

// Name implements Module.
func (t *Cumulative) Name() string { return t.name }

// Transform implements Module.
// An entry ending before it starts only counts on its start day.
func (t *Cumulative) Transform(batch record.Entries) record.Series {
	s := newSeries(batch, t.name, record.KindLine, DescriptionCumulative)
	if batch.Len() == 0 {
		return s
	}

	counts := make(map[time.Time]int)
	first, last := batch.Items[0].DateStart, batch.Items[0].DateStart
	for _, e := range batch.Items {
		end := e.DateEnd
		if end.Before(e.DateStart) {
			end = e.DateStart
		}
		for d := e.DateStart; !d.After(end); d = d.AddDate(0, 0, 1) {
			counts[d]++
		}
		if e.DateStart.Before(first) {
			first = e.DateStart
		}
		if end.After(last) {
			last = end
		}
	}

	if t.pad {
		first, last = first.AddDate(0, 0, -1), last.AddDate(0, 0, 1)
	}
	s.X, s.Y = dense(first, last, counts)
	return s
}

// =============================================================================
// Periods
// =============================================================================

// Periods merges entries into outbreak periods.
//
// Entries are taken in start order. An entry joins the current period when
// it starts at most window days after the start of the last entry that
// joined it, so a period keeps growing while entries keep arriving. Each
// period yields two points, (start, n) and (last start + window, n).
type Periods struct {
	name   string
	window int
}

// NewPeriodsFromConfig builds a periods transformer.
// "windowDays" (default 9) sets the merge window.
func NewPeriodsFromConfig(cfg pipeline.StageConfig) (*Periods, error) {
	window, err := params.New(pipeline.StageTransformer, cfg).PositiveInt("windowDays", DefaultWindowDays)
	if err != nil {
		return nil, err
	}
	logger.Debug("periods transformer initialized",
		slog.String("name", cfg.Name),
		slog.Int("window_days", window),
	)
	return &Periods{name: cfg.Name, window: window}, nil
}

// Name implements Module.
func (t *Periods) Name() string { return t.name }

// Window returns the merge window in days.
func (t *Periods) Window() int { return t.window }

// Transform implements Module.
func (t *Periods) Transform(batch record.Entries) record.Series {
	s := newSeries(batch, t.name, record.KindPeriod, DescriptionPeriods)
	if batch.Len() == 0 {
		return s
	}

	starts := make([]time.Time, batch.Len())
	for i, e := range batch.Items {
		starts[i] = e.DateStart
	}
	sort.SliceStable(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	emit := func(start, end time.Time, n int) {
		s.X = append(s.X, start, end)
		s.Y = append(s.Y, n, n)
	}

	start := starts[0]
	end := start.AddDate(0, 0, t.window)
	n := 1
	for _, d := range starts[1:] {
		if !d.After(end) {
			n++
			end = d.AddDate(0, 0, t.window)
			continue
		}
		emit(start, end, n)
		start, end, n = d, d.AddDate(0, 0, t.window), 1
	}
	emit(start, end, n)
	return s
}

// dense returns one point per day of [first, last], zero-filled.
func dense(first, last time.Time, counts map[time.Time]int) ([]time.Time, []int) {
	days := record.DaysBetween(first, last) + 1
	x := make([]time.Time, 0, days)
	y := make([]int, 0, days)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		x = append(x, d)
		y = append(y, counts[d])
	}
	return x, y
}

var (
	_ Module = (*New)(nil)
	_ Module = (*Cumulative)(nil)
	_ Module = (*Periods)(nil)
)
