package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

func day(n int) time.Time {
	return time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func entry(t *testing.T, start, end int, role, institution, institutionType string) record.Entry {
	t.Helper()
	e, err := record.NewEntry(day(start), day(end), role, institution, institutionType, "Lausanne")
	require.NoError(t, err)
	return e
}

func stage(name, typ string, kv ...interface{}) pipeline.StageConfig {
	cfg := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		cfg[kv[i].(string)] = kv[i+1]
	}
	return pipeline.StageConfig{Name: name, Type: typ, Config: cfg}
}

func sampleBatch(t *testing.T) record.Entries {
	return record.NewEntries("all", []record.Entry{
		entry(t, 0, 10, "staff", "Bois-Gentil", "EMS"),
		entry(t, 0, 5, "resident", "Bois-Gentil", "EMS"),
		entry(t, 2, 12, "staff", "CHUV", "Hospital"),
		entry(t, 3, 3, "staff", "La Rozavère", "EMS"),
		entry(t, 20, 25, "resident", "CHUV", "Hospital"),
		entry(t, 1, 4, "visitor", "CHUV", "Hospital"),
	})
}

func fullDefinition() pipeline.Definition {
	return pipeline.Definition{
		Name: "overview",
		Filters: []pipeline.StageConfig{
			stage("no visitors", "exclude", "column", "role", "value", "visitor"),
		},
		Splitters: []pipeline.StageConfig{
			stage("type", "value", "column", "institution_type"),
			stage("role", "value", "column", "role"),
		},
		Transformers: []pipeline.StageConfig{
			stage("new", "new"),
			stage("cum", "cumulative"),
			stage("periods", "periods"),
		},
		Groupers: []pipeline.StageConfig{
			stage("by type", "step_name", "splitters", []interface{}{"type"}, "transformers", []interface{}{"cum"}),
			stage("everything", "step_name"),
		},
	}
}

func TestProcess_RoundTrip(t *testing.T) {
	def := pipeline.Definition{
		Name:         "round trip",
		Filters:      []pipeline.StageConfig{stage("keep", "all")},
		Splitters:    []pipeline.StageConfig{stage("location", "value", "column", "location")},
		Transformers: []pipeline.StageConfig{stage("new", "new"), stage("cum", "cumulative")},
		Groupers:     []pipeline.StageConfig{stage("g", "step_name")},
	}
	p, err := NewProcess(def, record.DateParser{})
	require.NoError(t, err)

	out, err := p.Run(context.Background(), sampleBatch(t))
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "Lausanne", out[0].Title)
	assert.Len(t, out[0].Series, len(def.Transformers))
	assert.Equal(t, "new", out[0].Series[0].Report.Transformer)
	assert.Equal(t, "cum", out[0].Series[1].Report.Transformer)
}

func TestProcess_FullPipeline(t *testing.T) {
	p, err := NewProcess(fullDefinition(), record.DateParser{})
	require.NoError(t, err)

	out, summary, err := p.RunWithSummary(context.Background(), sampleBatch(t))
	require.NoError(t, err)

	assert.Equal(t, 6, summary.EntriesIn)
	assert.Equal(t, 5, summary.EntriesKept)
	// EMS/staff, EMS/resident, Hospital/staff, Hospital/resident
	assert.Equal(t, 4, summary.Leaves)
	assert.Equal(t, 12, summary.Series)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.CompletedAt.Before(summary.StartedAt))

	// "by type" keeps only cumulative series: EMS, Hospital.
	// "everything" keys on role and type: four datasets.
	require.Len(t, out, 6)
	assert.Equal(t, summary.Datasets, len(out))
	assert.Equal(t, "EMS", out[0].Title)
	assert.Equal(t, "Hospital", out[1].Title)
	for _, s := range out[0].Series {
		assert.Equal(t, "cum", s.Report.Transformer)
	}
	assert.Equal(t, []string{"staff", "resident"}, []string{out[0].Series[0].Label(), out[0].Series[1].Label()})
	assert.Equal(t, "staff, EMS", out[2].Title)
	assert.Len(t, out[2].Series, 3)
}

func TestProcess_NoSplittersSingleLeaf(t *testing.T) {
	def := pipeline.Definition{
		Name:         "flat",
		Transformers: []pipeline.StageConfig{stage("new", "new")},
		Groupers:     []pipeline.StageConfig{stage("all", "step_name")},
	}
	p, err := NewProcess(def, record.DateParser{})
	require.NoError(t, err)

	out, summary, err := p.RunWithSummary(context.Background(), sampleBatch(t))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Leaves)
	require.Len(t, out, 1)
	assert.Equal(t, "all", out[0].Title)
	total := 0
	for _, y := range out[0].Series[0].Y {
		total += y
	}
	assert.Equal(t, 6, total)
}

func TestProcess_Idempotent(t *testing.T) {
	p, err := NewProcess(fullDefinition(), record.DateParser{})
	require.NoError(t, err)
	batch := sampleBatch(t)

	first, err := p.Run(context.Background(), batch)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, sampleBatch(t), batch, "input batch must not be modified")
}

func TestProcess_ParallelMatchesSequential(t *testing.T) {
	var items []record.Entry
	for i := 0; i < 40; i++ {
		items = append(items, entry(t, i%7, i%7+i%5, fmt.Sprintf("role-%d", i%4), fmt.Sprintf("inst-%d", i%9), "EMS"))
	}
	batch := record.NewEntries("many", items)

	def := fullDefinition()
	def.Splitters = append(def.Splitters, stage("institution", "value", "column", "institution"))

	seq, err := NewProcess(def, record.DateParser{})
	require.NoError(t, err)
	par, err := NewProcess(def, record.DateParser{}, WithParallel(3))
	require.NoError(t, err)

	want, err := seq.Run(context.Background(), batch)
	require.NoError(t, err)
	got, err := par.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestNewProcess_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*pipeline.Definition)
		sentinel error
	}{
		{"unknown filter", func(d *pipeline.Definition) { d.Filters[0].Type = "regex" }, errhandling.ErrUnknownType},
		{"unknown splitter", func(d *pipeline.Definition) { d.Splitters[0].Type = "range" }, errhandling.ErrUnknownType},
		{"unknown transformer", func(d *pipeline.Definition) { d.Transformers[0].Type = "median" }, errhandling.ErrUnknownType},
		{"unknown grouper", func(d *pipeline.Definition) { d.Groupers[0].Type = "pie" }, errhandling.ErrUnknownType},
		{"undeclared splitter", func(d *pipeline.Definition) { d.Splitters = d.Splitters[1:] }, errhandling.ErrUndeclaredName},
		{"undeclared transformer", func(d *pipeline.Definition) { d.Transformers = d.Transformers[:1] }, errhandling.ErrUndeclaredName},
		{"invalid column", func(d *pipeline.Definition) { d.Filters[0].Config["column"] = "age" }, errhandling.ErrUnknownColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := fullDefinition()
			tt.mutate(&def)

			p, err := NewProcess(def, record.DateParser{})
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, errhandling.CategoryConfiguration, errhandling.Classify(err))
		})
	}
}

func TestProcess_FilterRuntimeError(t *testing.T) {
	def := pipeline.Definition{
		Name: "script",
		Filters: []pipeline.StageConfig{
			stage("broken", "script", "script", "function keep(e) { return e.missing.field; }"),
		},
	}
	p, err := NewProcess(def, record.DateParser{})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), sampleBatch(t))
	require.Error(t, err)

	var rt *errhandling.RuntimeError
	require.True(t, errors.As(err, &rt))
	assert.Equal(t, pipeline.StageFilter, rt.Stage)
	assert.Equal(t, "broken", rt.Name)
}

func TestProcess_Cancelled(t *testing.T) {
	p, err := NewProcess(fullDefinition(), record.DateParser{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, sampleBatch(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errhandling.CategoryRuntime, errhandling.Classify(err))
}

func TestProcess_EmptyBatch(t *testing.T) {
	t.Run("split yields no leaves", func(t *testing.T) {
		p, err := NewProcess(fullDefinition(), record.DateParser{})
		require.NoError(t, err)

		out, summary, err := p.RunWithSummary(context.Background(), record.NewEntries("empty", nil))
		require.NoError(t, err)
		assert.Zero(t, summary.Leaves)
		assert.Empty(t, out)
	})

	t.Run("unsplit batch yields empty series", func(t *testing.T) {
		def := fullDefinition()
		def.Splitters = nil
		def.Groupers = def.Groupers[1:]
		p, err := NewProcess(def, record.DateParser{})
		require.NoError(t, err)

		out, summary, err := p.RunWithSummary(context.Background(), record.NewEntries("empty", nil))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Leaves)
		assert.Equal(t, 3, summary.Series)
		require.Len(t, out, 1)
		for _, s := range out[0].Series {
			assert.Zero(t, s.Len())
		}
	})
}

func TestCurrent_Replace(t *testing.T) {
	var c Current

	_, err := c.Run(context.Background(), sampleBatch(t))
	assert.ErrorIs(t, err, ErrNoProcess)

	first, err := NewProcess(fullDefinition(), record.DateParser{})
	require.NoError(t, err)
	assert.Nil(t, c.Replace(first))

	def := fullDefinition()
	def.Name = "reloaded"
	def.Groupers = def.Groupers[1:]
	second, err := NewProcess(def, record.DateParser{})
	require.NoError(t, err)
	assert.Same(t, first, c.Replace(second))
	assert.Equal(t, "reloaded", c.Load().Name())

	out, err := c.Run(context.Background(), sampleBatch(t))
	require.NoError(t, err)
	assert.Len(t, out, 4)
}
