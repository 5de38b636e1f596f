// Package registry maps stage type names to constructors.
//
// # Overview
//
// Each stage kind (filter, splitter, transformer, grouper) has its own
// registry keyed by the "type" string of a stage configuration. The factory
// looks constructors up here instead of switching on type names, so a new
// stage type only needs to register itself.
//
// # Adding a Stage Type
//
// To add a new filter type (e.g. "weekday"):
//
//  1. Implement filter.Module
//  2. Write a constructor matching FilterConstructor
//  3. Register it from an init() function
//
// Example:
//
//	func init() {
//	    registry.RegisterFilter("weekday", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
//	        return NewWeekdayFromConfig(cfg)
//	    })
//	}
//
// # Built-in Types
//
// Built-in types are registered at package initialisation (see builtins.go).
// Unknown types have no fallback: looking one up returns nil and the
// factory reports a configuration error.
package registry

import (
	"sort"
	"sync"

	"github.com/emsplot/runtime/internal/modules/filter"
	"github.com/emsplot/runtime/internal/modules/grouper"
	"github.com/emsplot/runtime/internal/modules/splitter"
	"github.com/emsplot/runtime/internal/modules/transformer"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// FilterConstructor creates a filter. Date parameters are read with parser.
type FilterConstructor func(cfg pipeline.StageConfig, parser record.DateParser) (filter.Module, error)

// SplitterConstructor creates a splitter.
type SplitterConstructor func(cfg pipeline.StageConfig) (splitter.Module, error)

// TransformerConstructor creates a transformer.
type TransformerConstructor func(cfg pipeline.StageConfig) (transformer.Module, error)

// GrouperConstructor creates a grouper.
type GrouperConstructor func(cfg pipeline.StageConfig) (grouper.Module, error)

// table is a concurrency-safe map from type name to constructor.
type table[C any] struct {
	mu   sync.RWMutex
	ctor map[string]C
}

func newTable[C any]() *table[C] {
	return &table[C]{ctor: make(map[string]C)}
}

func (t *table[C]) register(name string, c C) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctor[name] = c
}

func (t *table[C]) get(name string) (C, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.ctor[name]
	return c, ok
}

func (t *table[C]) list() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.ctor))
	for n := range t.ctor {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *table[C]) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctor = make(map[string]C)
}

var (
	filters      = newTable[FilterConstructor]()
	splitters    = newTable[SplitterConstructor]()
	transformers = newTable[TransformerConstructor]()
	groupers     = newTable[GrouperConstructor]()
)

// RegisterFilter registers a filter constructor, replacing any previous one
// for the same type. Safe for concurrent use.
func RegisterFilter(stageType string, c FilterConstructor) { filters.register(stageType, c) }

// RegisterSplitter registers a splitter constructor.
func RegisterSplitter(stageType string, c SplitterConstructor) { splitters.register(stageType, c) }

// RegisterTransformer registers a transformer constructor.
func RegisterTransformer(stageType string, c TransformerConstructor) {
	transformers.register(stageType, c)
}

// RegisterGrouper registers a grouper constructor.
func RegisterGrouper(stageType string, c GrouperConstructor) { groupers.register(stageType, c) }

// GetFilterConstructor returns the filter constructor for stageType, or nil.
func GetFilterConstructor(stageType string) FilterConstructor {
	c, _ := filters.get(stageType)
	return c
}

// GetSplitterConstructor returns the splitter constructor for stageType, or nil.
func GetSplitterConstructor(stageType string) SplitterConstructor {
	c, _ := splitters.get(stageType)
	return c
}

// GetTransformerConstructor returns the transformer constructor for stageType, or nil.
func GetTransformerConstructor(stageType string) TransformerConstructor {
	c, _ := transformers.get(stageType)
	return c
}

// GetGrouperConstructor returns the grouper constructor for stageType, or nil.
func GetGrouperConstructor(stageType string) GrouperConstructor {
	c, _ := groupers.get(stageType)
	return c
}

// ListFilterTypes returns the registered filter types, sorted.
func ListFilterTypes() []string { return filters.list() }

// ListSplitterTypes returns the registered splitter types, sorted.
func ListSplitterTypes() []string { return splitters.list() }

// ListTransformerTypes returns the registered transformer types, sorted.
func ListTransformerTypes() []string { return transformers.list() }

// ListGrouperTypes returns the registered grouper types, sorted.
func ListGrouperTypes() []string { return groupers.list() }

// ListTypes returns the registered types of a stage kind (pipeline.StageFilter, ...).
func ListTypes(stage string) []string {
	switch stage {
	case pipeline.StageFilter:
		return ListFilterTypes()
	case pipeline.StageSplitter:
		return ListSplitterTypes()
	case pipeline.StageTransformer:
		return ListTransformerTypes()
	case pipeline.StageGrouper:
		return ListGrouperTypes()
	default:
		return nil
	}
}

// ClearRegistries removes every registered constructor.
// Intended for tests; call RegisterBuiltins to restore the defaults.
func ClearRegistries() {
	filters.clear()
	splitters.clear()
	transformers.clear()
	groupers.clear()
}
