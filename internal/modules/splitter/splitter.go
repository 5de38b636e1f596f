// Package splitter provides the splitter stage of a process.
// A splitter partitions a batch into sub-batches and records, in each
// sub-batch's report, the value it was split on.
package splitter

import (
	"log/slog"

	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Module partitions a batch.
//
// Every entry of the input ends up in exactly one output batch, and the
// input batch is left unchanged.
type Module interface {
	// Name is the configured splitter name recorded in reports.
	Name() string
	// Split partitions batch. An empty batch yields no sub-batches.
	Split(batch record.Entries) []record.Entries
}

// Value splits a batch by the distinct values of one column.
// Sub-batches are returned in first-seen order.
type Value struct {
	name   string
	column string
}

// NewValueFromConfig builds a value splitter reading the "column" parameter.
func NewValueFromConfig(cfg pipeline.StageConfig) (*Value, error) {
	column, err := params.New(pipeline.StageSplitter, cfg).Column("column")
	if err != nil {
		return nil, err
	}
	logger.Debug("value splitter initialized",
		slog.String("name", cfg.Name),
		slog.String("column", column),
	)
	return &Value{name: cfg.Name, column: column}, nil
}

// NewValue builds a value splitter directly.
func NewValue(name, column string) *Value {
	return &Value{name: name, column: column}
}

// Name implements Module.
func (v *Value) Name() string { return v.name }

// Column returns the column the splitter reads.
func (v *Value) Column() string { return v.column }

// Split implements Module.
func (v *Value) Split(batch record.Entries) []record.Entries {
	index := make(map[string]int)
	var out []record.Entries

	for _, e := range batch.Items {
		key, _ := e.Field(v.column)
		i, seen := index[key]
		if !seen {
			sub := record.Entries{
				Label:  subLabel(batch.Label, key),
				Report: batch.Report.WithSplitter(v.name, key),
			}
			out = append(out, sub)
			i = len(out) - 1
			index[key] = i
		}
		out[i].Items = append(out[i].Items, e)
	}
	return out
}

func subLabel(parent, value string) string {
	if parent == "" {
		return value
	}
	return parent + " / " + value
}

var _ Module = (*Value)(nil)
