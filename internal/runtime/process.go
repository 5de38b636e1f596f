// Package runtime provides the process execution engine.
// It orchestrates the Filter, Split, Transform and Group stages of a
// process over one in-memory batch of entries.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/factory"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Run status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options tunes how a process runs. The output never depends on them.
type Options struct {
	// Parallel transforms leaf batches concurrently
	Parallel bool
	// Workers bounds the number of concurrent transforms; 0 means unbounded
	Workers int
}

// Option configures a Process.
type Option func(*Options)

// WithParallel enables concurrent transforms with at most workers goroutines
// (0 for no limit).
func WithParallel(workers int) Option {
	return func(o *Options) {
		o.Parallel = true
		o.Workers = workers
	}
}

// Process is the compiled form of a process definition.
//
// Every stage is instantiated once by NewProcess and reused for every run.
// A Process holds no state between runs and is safe for concurrent use.
// Stages only see each other through their module interfaces.
type Process struct {
	def    pipeline.Definition
	stages *factory.Stages
	opts   Options
}

// NewProcess builds every stage of def. All configuration errors (unknown
// types, invalid parameters, duplicate or undeclared names) are returned
// here, before any data is touched.
func NewProcess(def pipeline.Definition, parser record.DateParser, opts ...Option) (*Process, error) {
	stages, err := factory.CreateStages(def, parser)
	if err != nil {
		logger.LogError("process construction failed", logger.ErrorContext{
			ProcessName: def.Name,
			Category:    string(errhandling.Classify(err)),
			Err:         err,
			Row:         -1,
		})
		return nil, err
	}

	p := &Process{def: def, stages: stages}
	for _, opt := range opts {
		opt(&p.opts)
	}

	logger.Debug("process built",
		slog.String("process", def.Name),
		slog.Int("filters", len(stages.Filters)),
		slog.Int("splitters", len(stages.Splitters)),
		slog.Int("transformers", len(stages.Transformers)),
		slog.Int("groupers", len(stages.Groupers)),
		slog.Bool("parallel", p.opts.Parallel),
	)
	return p, nil
}

// Name returns the process name.
func (p *Process) Name() string { return p.def.Name }

// Definition returns the definition the process was built from.
func (p *Process) Definition() pipeline.Definition { return p.def }

// Run executes the process on batch and returns the datasets.
// The input batch is not modified.
func (p *Process) Run(ctx context.Context, batch record.Entries) ([]record.Dataset, error) {
	datasets, _, err := p.RunWithSummary(ctx, batch)
	return datasets, err
}

// RunWithSummary executes the process and also reports what each stage produced.
func (p *Process) RunWithSummary(ctx context.Context, batch record.Entries) ([]record.Dataset, pipeline.RunSummary, error) {
	summary := pipeline.RunSummary{
		RunID:       uuid.New().String(),
		ProcessName: p.def.Name,
		StartedAt:   time.Now(),
		EntriesIn:   batch.Len(),
	}
	rc := logger.RunContext{RunID: summary.RunID, ProcessName: p.def.Name}
	logger.LogRunStart(rc, batch.Len())

	metrics := logger.RunMetrics{EntriesIn: batch.Len()}
	datasets, err := p.run(ctx, rc, batch, &metrics)

	summary.CompletedAt = time.Now()
	summary.EntriesKept = metrics.EntriesKept
	summary.Leaves = metrics.Leaves
	summary.Series = metrics.Series
	summary.Datasets = metrics.Datasets
	metrics.TotalDuration = summary.Duration()

	if err != nil {
		logger.LogError("run failed", logger.ErrorContext{
			RunID:       rc.RunID,
			ProcessName: rc.ProcessName,
			Category:    string(errhandling.Classify(err)),
			Err:         err,
			Row:         -1,
		})
		logger.LogRunEnd(rc, StatusError, 0, metrics.TotalDuration)
		return nil, summary, err
	}

	logger.LogMetrics(rc, metrics)
	logger.LogRunEnd(rc, StatusSuccess, len(datasets), metrics.TotalDuration)
	return datasets, summary, nil
}

func (p *Process) run(ctx context.Context, rc logger.RunContext, batch record.Entries, m *logger.RunMetrics) ([]record.Dataset, error) {
	start := time.Now()
	kept, err := p.filter(ctx, rc, batch)
	m.FilterDuration = time.Since(start)
	if err != nil {
		return nil, err
	}
	m.EntriesKept = kept.Len()

	start = time.Now()
	leaves, err := p.split(ctx, rc, kept)
	m.SplitDuration = time.Since(start)
	if err != nil {
		return nil, err
	}
	m.Leaves = len(leaves)

	start = time.Now()
	series, err := p.transform(ctx, rc, leaves)
	m.TransformDuration = time.Since(start)
	if err != nil {
		return nil, err
	}
	m.Series = len(series)

	start = time.Now()
	datasets, err := p.group(ctx, rc, series)
	m.GroupDuration = time.Since(start)
	if err != nil {
		return nil, err
	}
	m.Datasets = len(datasets)
	return datasets, nil
}

// filter keeps the entries every filter matches.
func (p *Process) filter(ctx context.Context, rc logger.RunContext, batch record.Entries) (record.Entries, error) {
	if err := ctx.Err(); err != nil {
		return record.Entries{}, cancelled(pipeline.StageFilter, err)
	}
	sc := stageContext(rc, pipeline.StageFilter, "")
	logger.LogStageStart(sc, batch.Len())
	start := time.Now()

	out := batch.Derive(batch.Label)
	out.Items = make([]record.Entry, 0, batch.Len())
	for _, entry := range batch.Items {
		keep := true
		for i, f := range p.stages.Filters {
			ok, err := f.Match(entry)
			if err != nil {
				err = &errhandling.RuntimeError{Stage: pipeline.StageFilter, Name: p.stages.FilterNames[i], Err: err}
				logger.LogStageEnd(sc, 0, time.Since(start), err)
				return record.Entries{}, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out.Items = append(out.Items, entry)
		}
	}

	logger.LogStageEnd(sc, out.Len(), time.Since(start), nil)
	return out, nil
}

// split applies each splitter to every current branch in turn.
// With no splitters the filtered batch is the only leaf.
func (p *Process) split(ctx context.Context, rc logger.RunContext, batch record.Entries) ([]record.Entries, error) {
	branches := []record.Entries{batch}
	for _, s := range p.stages.Splitters {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(pipeline.StageSplitter, err)
		}
		sc := stageContext(rc, pipeline.StageSplitter, s.Name())
		logger.LogStageStart(sc, len(branches))
		start := time.Now()

		var next []record.Entries
		for _, b := range branches {
			next = append(next, s.Split(b)...)
		}
		branches = next

		logger.LogStageEnd(sc, len(branches), time.Since(start), nil)
	}
	return branches, nil
}

// transform runs every transformer on every leaf. Series are ordered leaf
// first, then transformer, whether or not leaves run concurrently.
func (p *Process) transform(ctx context.Context, rc logger.RunContext, leaves []record.Entries) ([]record.Series, error) {
	sc := stageContext(rc, pipeline.StageTransformer, "")
	logger.LogStageStart(sc, len(leaves))
	start := time.Now()

	n := len(p.stages.Transformers)
	out := make([]record.Series, len(leaves)*n)

	transformLeaf := func(i int) {
		for j, t := range p.stages.Transformers {
			out[i*n+j] = t.Transform(leaves[i])
		}
	}

	if p.opts.Parallel && len(leaves) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		if p.opts.Workers > 0 {
			g.SetLimit(p.opts.Workers)
		}
		for i := range leaves {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				transformLeaf(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			err = cancelled(pipeline.StageTransformer, err)
			logger.LogStageEnd(sc, 0, time.Since(start), err)
			return nil, err
		}
	} else {
		for i := range leaves {
			if err := ctx.Err(); err != nil {
				err = cancelled(pipeline.StageTransformer, err)
				logger.LogStageEnd(sc, 0, time.Since(start), err)
				return nil, err
			}
			transformLeaf(i)
		}
	}

	logger.LogStageEnd(sc, len(out), time.Since(start), nil)
	return out, nil
}

// group runs every grouper over the full series list and concatenates the datasets.
func (p *Process) group(ctx context.Context, rc logger.RunContext, series []record.Series) ([]record.Dataset, error) {
	var out []record.Dataset
	for _, g := range p.stages.Groupers {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(pipeline.StageGrouper, err)
		}
		sc := stageContext(rc, pipeline.StageGrouper, g.Name())
		logger.LogStageStart(sc, len(series))
		start := time.Now()

		datasets := g.Group(series)
		out = append(out, datasets...)

		logger.LogStageEnd(sc, len(datasets), time.Since(start), nil)
	}
	return out, nil
}

func stageContext(rc logger.RunContext, stage, name string) logger.RunContext {
	rc.Stage = stage
	rc.StageName = name
	return rc
}

func cancelled(stage string, err error) error {
	return &errhandling.RuntimeError{Stage: stage, Name: "run", Err: err}
}
