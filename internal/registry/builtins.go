package registry

import (
	"github.com/emsplot/runtime/internal/modules/filter"
	"github.com/emsplot/runtime/internal/modules/grouper"
	"github.com/emsplot/runtime/internal/modules/splitter"
	"github.com/emsplot/runtime/internal/modules/transformer"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

func init() {
	RegisterBuiltins()
}

// RegisterBuiltins registers every built-in stage type.
func RegisterBuiltins() {
	registerBuiltinFilters()
	registerBuiltinSplitters()
	registerBuiltinTransformers()
	registerBuiltinGroupers()
}

func registerBuiltinFilters() {
	// include / exclude - column value membership
	RegisterFilter("include", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
		return filter.NewMembershipFromConfig(cfg, false)
	})
	RegisterFilter("exclude", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
		return filter.NewMembershipFromConfig(cfg, true)
	})

	// date_before / date_after - inclusive date bounds
	RegisterFilter("date_before", func(cfg pipeline.StageConfig, parser record.DateParser) (filter.Module, error) {
		return filter.NewDateBoundFromConfig(cfg, parser, true)
	})
	RegisterFilter("date_after", func(cfg pipeline.StageConfig, parser record.DateParser) (filter.Module, error) {
		return filter.NewDateBoundFromConfig(cfg, parser, false)
	})

	// expression - boolean expr-lang expression over entry fields
	RegisterFilter("expression", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
		return filter.NewExpressionFromConfig(cfg)
	})

	// script - JavaScript keep(entry) function run by goja
	RegisterFilter("script", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
		return filter.NewScriptFromConfig(cfg)
	})

	// all - keeps every entry
	RegisterFilter("all", func(pipeline.StageConfig, record.DateParser) (filter.Module, error) {
		return filter.All{}, nil
	})
}

func registerBuiltinSplitters() {
	RegisterSplitter("value", func(cfg pipeline.StageConfig) (splitter.Module, error) {
		return splitter.NewValueFromConfig(cfg)
	})
}

func registerBuiltinTransformers() {
	RegisterTransformer("new", func(cfg pipeline.StageConfig) (transformer.Module, error) {
		return transformer.NewNewFromConfig(cfg)
	})
	RegisterTransformer("cumulative", func(cfg pipeline.StageConfig) (transformer.Module, error) {
		return transformer.NewCumulativeFromConfig(cfg)
	})
	RegisterTransformer("periods", func(cfg pipeline.StageConfig) (transformer.Module, error) {
		return transformer.NewPeriodsFromConfig(cfg)
	})
}

func registerBuiltinGroupers() {
	RegisterGrouper("step_name", func(cfg pipeline.StageConfig) (grouper.Module, error) {
		return grouper.NewStepNameFromConfig(cfg)
	})
}
