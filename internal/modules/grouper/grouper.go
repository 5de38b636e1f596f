// Package grouper provides the grouper stage of a process.
// A grouper buckets series into datasets using the splitter values and the
// transformer name recorded in each series' report.
package grouper

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// keySeparator joins splitter values into keys and labels.
const keySeparator = ", "

// Module assembles series into datasets.
type Module interface {
	// Name is the configured grouper name.
	Name() string
	// Group buckets series into datasets. The input series are not modified.
	Group(series []record.Series) []record.Dataset
}

// Referencer is implemented by groupers that name splitters or transformers,
// so that a process can check the names exist before running.
type Referencer interface {
	Splitters() []string
	Transformers() []string
}

// StepName groups series by the values of some (or all) splitters.
//
// With no configured splitters the key uses every splitter in the series'
// report, sorted by name. Series whose transformer is not one of the
// configured transformers (when any are configured) are dropped. Each kept
// series gets a final label built from its splitter values that are not
// part of the key, so members of one dataset can be told apart.
type StepName struct {
	name             string
	splitters        []string
	transformers     map[string]bool
	transformerNames []string
}

// NewStepNameFromConfig builds a step_name grouper reading the optional
// "splitters" and "transformers" name lists.
func NewStepNameFromConfig(cfg pipeline.StageConfig) (*StepName, error) {
	p := params.New(pipeline.StageGrouper, cfg)

	splitters, err := p.Strings("splitters")
	if err != nil {
		return nil, err
	}
	transformers, err := p.Strings("transformers")
	if err != nil {
		return nil, err
	}

	logger.Debug("step_name grouper initialized",
		slog.String("name", cfg.Name),
		slog.Any("splitters", splitters),
		slog.Any("transformers", transformers),
	)
	return NewStepName(cfg.Name, splitters, transformers), nil
}

// NewStepName builds a step_name grouper directly.
func NewStepName(name string, splitters, transformers []string) *StepName {
	g := &StepName{
		name:             name,
		splitters:        dedupe(splitters),
		transformerNames: dedupe(transformers),
	}
	if len(g.transformerNames) > 0 {
		g.transformers = make(map[string]bool, len(g.transformerNames))
		for _, t := range g.transformerNames {
			g.transformers[t] = true
		}
	}
	return g
}

// Name implements Module.
func (g *StepName) Name() string { return g.name }

// Splitters implements Referencer.
func (g *StepName) Splitters() []string { return append([]string(nil), g.splitters...) }

// Transformers implements Referencer.
func (g *StepName) Transformers() []string { return append([]string(nil), g.transformerNames...) }

// Group implements Module.
func (g *StepName) Group(series []record.Series) []record.Dataset {
	index := make(map[string]int)
	var out []record.Dataset

	for _, s := range series {
		if g.transformers != nil && !g.transformers[s.Report.Transformer] {
			continue
		}

		keyNames := g.keyNames(s.Report)
		key := joinValues(s.Report, keyNames)

		labelled := s
		labelled.Report = s.Report.WithFinalLabel(g.label(s, keyNames))

		i, seen := index[key]
		if !seen {
			title := key
			if title == "" {
				title = g.name
			}
			out = append(out, record.Dataset{Title: title})
			i = len(out) - 1
			index[key] = i
		}
		out[i].Series = append(out[i].Series, labelled)
	}
	return out
}

func (g *StepName) keyNames(report record.DataReport) []string {
	if len(g.splitters) > 0 {
		return g.splitters
	}
	names := make([]string, 0, len(report.Splitters))
	for n := range report.Splitters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// label joins the splitter values outside the key, in report order.
// It falls back to the series description.
func (g *StepName) label(s record.Series, keyNames []string) string {
	inKey := make(map[string]bool, len(keyNames))
	for _, n := range keyNames {
		inKey[n] = true
	}
	var rest []string
	for _, n := range s.Report.SplitterNames() {
		if !inKey[n] {
			rest = append(rest, n)
		}
	}
	if len(rest) == 0 {
		return s.Description
	}
	return joinValues(s.Report, rest)
}

func joinValues(report record.DataReport, names []string) string {
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = report.Splitters[n]
	}
	return strings.Join(values, keySeparator)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

var (
	_ Module     = (*StepName)(nil)
	_ Referencer = (*StepName)(nil)
)
