package record

import (
	"sort"
	"strings"
	"time"
)

// DataReport records the processing steps applied to a batch or a series.
//
// Each splitter that produced a batch leaves its name and the value it split
// on. A transformer leaves its name once it has consumed the batch, and a
// grouper sets the display label. Groupers rely on this trace to put related
// series together.
//
// Reports are values: use Copy (or the With* helpers) whenever a report is
// carried over to a derived batch so that siblings never share the map.
type DataReport struct {
	// Splitters maps splitter name to the value that produced the batch.
	Splitters map[string]string `json:"splitters"`
	// SplitterOrder keeps splitter names in the order they were applied.
	SplitterOrder []string `json:"splitterOrder,omitempty"`
	// Transformer is the name of the transformer that consumed the batch.
	Transformer string `json:"transformer,omitempty"`
	// FinalLabel is the display label assigned by a grouper.
	FinalLabel string `json:"finalLabel,omitempty"`
}

// NewDataReport returns an empty report.
func NewDataReport() DataReport {
	return DataReport{Splitters: map[string]string{}}
}

// Copy returns a structural copy of the report sharing no memory with r.
func (r DataReport) Copy() DataReport {
	out := DataReport{
		Splitters:   make(map[string]string, len(r.Splitters)),
		Transformer: r.Transformer,
		FinalLabel:  r.FinalLabel,
	}
	for k, v := range r.Splitters {
		out.Splitters[k] = v
	}
	if len(r.SplitterOrder) > 0 {
		out.SplitterOrder = make([]string, len(r.SplitterOrder))
		copy(out.SplitterOrder, r.SplitterOrder)
	}
	return out
}

// WithSplitter returns a copy of the report recording value for splitter name.
func (r DataReport) WithSplitter(name, value string) DataReport {
	out := r.Copy()
	if _, seen := out.Splitters[name]; !seen {
		out.SplitterOrder = append(out.SplitterOrder, name)
	}
	out.Splitters[name] = value
	return out
}

// WithTransformer returns a copy of the report tagged with the transformer name.
func (r DataReport) WithTransformer(name string) DataReport {
	out := r.Copy()
	out.Transformer = name
	return out
}

// WithFinalLabel returns a copy of the report carrying the display label.
func (r DataReport) WithFinalLabel(label string) DataReport {
	out := r.Copy()
	out.FinalLabel = label
	return out
}

// SplitterNames returns the names of the splitters in application order.
// Names missing from SplitterOrder (reports built by hand) follow, sorted.
func (r DataReport) SplitterNames() []string {
	names := make([]string, 0, len(r.Splitters))
	seen := make(map[string]bool, len(r.Splitters))
	for _, n := range r.SplitterOrder {
		if _, ok := r.Splitters[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range r.Splitters {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Kind tells a renderer how to draw a series.
type Kind string

// Series kinds.
const (
	KindLine   Kind = "line"
	KindBar    Kind = "bar"
	KindPeriod Kind = "period"
)

// Series is the aggregated output of one transformer applied to one batch.
// X and Y always have the same length.
type Series struct {
	X           []time.Time `json:"x"`
	Y           []int       `json:"y"`
	Kind        Kind        `json:"kind"`
	Description string      `json:"description"`
	Report      DataReport  `json:"report"`
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.X)
}

// Label returns the display label of the series, falling back to its description.
func (s Series) Label() string {
	if s.Report.FinalLabel != "" {
		return s.Report.FinalLabel
	}
	return s.Description
}

// Dataset is a named group of series meant to be displayed together.
type Dataset struct {
	Title  string   `json:"title"`
	Series []Series `json:"series"`
}

// String renders the report compactly for log output.
func (r DataReport) String() string {
	var sb strings.Builder
	for i, n := range r.SplitterNames() {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(n)
		sb.WriteString("=")
		sb.WriteString(r.Splitters[n])
	}
	if r.Transformer != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("transformer=")
		sb.WriteString(r.Transformer)
	}
	return sb.String()
}
