// Package factory creates stage instances for a process.
// It looks constructors up in the registry by stage type and checks the
// referential integrity of a process definition before anything runs.
//
// # Module Creation
//
// Built-in stage types are registered by the registry package at startup.
// There is no fallback for unknown types: an unregistered type is a
// configuration error naming the offending stage.
//
// # Adding New Stage Types
//
// To add a new stage type, see the documentation in internal/registry.
// You do NOT need to modify this factory; just register your constructor.
package factory

import (
	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/modules/filter"
	"github.com/emsplot/runtime/internal/modules/grouper"
	"github.com/emsplot/runtime/internal/modules/splitter"
	"github.com/emsplot/runtime/internal/modules/transformer"
	"github.com/emsplot/runtime/internal/registry"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Stages holds every stage instance of a process, in configured order.
type Stages struct {
	FilterNames  []string
	Filters      []filter.Module
	Splitters    []splitter.Module
	Transformers []transformer.Module
	Groupers     []grouper.Module
}

// CreateStages builds every stage of def and validates it as a whole:
// stage names are unique per kind and groupers only reference declared
// splitters and transformers.
func CreateStages(def pipeline.Definition, parser record.DateParser) (*Stages, error) {
	for _, list := range []struct {
		stage string
		cfgs  []pipeline.StageConfig
	}{
		{pipeline.StageFilter, def.Filters},
		{pipeline.StageSplitter, def.Splitters},
		{pipeline.StageTransformer, def.Transformers},
		{pipeline.StageGrouper, def.Groupers},
	} {
		if err := checkNames(list.stage, list.cfgs); err != nil {
			return nil, err
		}
	}

	filters, err := CreateFilterModules(def.Filters, parser)
	if err != nil {
		return nil, err
	}
	splitters, err := CreateSplitterModules(def.Splitters)
	if err != nil {
		return nil, err
	}
	transformers, err := CreateTransformerModules(def.Transformers)
	if err != nil {
		return nil, err
	}
	groupers, err := CreateGrouperModules(def.Groupers)
	if err != nil {
		return nil, err
	}

	if err := checkReferences(def, groupers); err != nil {
		return nil, err
	}

	names := make([]string, len(def.Filters))
	for i, cfg := range def.Filters {
		names[i] = cfg.Name
	}

	return &Stages{
		FilterNames:  names,
		Filters:      filters,
		Splitters:    splitters,
		Transformers: transformers,
		Groupers:     groupers,
	}, nil
}

// CreateFilterModules creates filter instances from configuration.
func CreateFilterModules(cfgs []pipeline.StageConfig, parser record.DateParser) ([]filter.Module, error) {
	modules := make([]filter.Module, 0, len(cfgs))
	for _, cfg := range cfgs {
		constructor := registry.GetFilterConstructor(cfg.Type)
		if constructor == nil {
			return nil, unknownType(pipeline.StageFilter, cfg)
		}
		m, err := constructor(cfg, parser)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// CreateSplitterModules creates splitter instances from configuration.
func CreateSplitterModules(cfgs []pipeline.StageConfig) ([]splitter.Module, error) {
	modules := make([]splitter.Module, 0, len(cfgs))
	for _, cfg := range cfgs {
		constructor := registry.GetSplitterConstructor(cfg.Type)
		if constructor == nil {
			return nil, unknownType(pipeline.StageSplitter, cfg)
		}
		m, err := constructor(cfg)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// CreateTransformerModules creates transformer instances from configuration.
func CreateTransformerModules(cfgs []pipeline.StageConfig) ([]transformer.Module, error) {
	modules := make([]transformer.Module, 0, len(cfgs))
	for _, cfg := range cfgs {
		constructor := registry.GetTransformerConstructor(cfg.Type)
		if constructor == nil {
			return nil, unknownType(pipeline.StageTransformer, cfg)
		}
		m, err := constructor(cfg)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// CreateGrouperModules creates grouper instances from configuration.
func CreateGrouperModules(cfgs []pipeline.StageConfig) ([]grouper.Module, error) {
	modules := make([]grouper.Module, 0, len(cfgs))
	for _, cfg := range cfgs {
		constructor := registry.GetGrouperConstructor(cfg.Type)
		if constructor == nil {
			return nil, unknownType(pipeline.StageGrouper, cfg)
		}
		m, err := constructor(cfg)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func unknownType(stage string, cfg pipeline.StageConfig) error {
	return errhandling.NewConfigError(stage, cfg.Name, cfg.Type, "no such type", errhandling.ErrUnknownType)
}

// checkNames rejects empty and repeated names within one stage kind.
func checkNames(stage string, cfgs []pipeline.StageConfig) error {
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Name == "" {
			return errhandling.NewConfigError(stage, "", cfg.Type, "name is required", errhandling.ErrMissingParameter)
		}
		if seen[cfg.Name] {
			return errhandling.NewConfigError(stage, cfg.Name, cfg.Type, "name already used by another "+stage, errhandling.ErrDuplicateName)
		}
		seen[cfg.Name] = true
	}
	return nil
}

// checkReferences verifies that every splitter or transformer a grouper
// names is declared in the process.
func checkReferences(def pipeline.Definition, groupers []grouper.Module) error {
	splitters := declared(def.Splitters)
	transformers := declared(def.Transformers)

	for i, g := range groupers {
		ref, ok := g.(grouper.Referencer)
		if !ok {
			continue
		}
		cfg := def.Groupers[i]
		for _, n := range ref.Splitters() {
			if !splitters[n] {
				return errhandling.NewConfigError(pipeline.StageGrouper, cfg.Name, cfg.Type,
					"splitter \""+n+"\" is not declared", errhandling.ErrUndeclaredName)
			}
		}
		for _, n := range ref.Transformers() {
			if !transformers[n] {
				return errhandling.NewConfigError(pipeline.StageGrouper, cfg.Name, cfg.Type,
					"transformer \""+n+"\" is not declared", errhandling.ErrUndeclaredName)
			}
		}
	}
	return nil
}

func declared(cfgs []pipeline.StageConfig) map[string]bool {
	out := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		out[cfg.Name] = true
	}
	return out
}
