package registry

import (
	"testing"

	"github.com/emsplot/runtime/internal/modules/filter"
	"github.com/emsplot/runtime/internal/modules/grouper"
	"github.com/emsplot/runtime/internal/modules/splitter"
	"github.com/emsplot/runtime/internal/modules/transformer"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

func restore(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		ClearRegistries()
		RegisterBuiltins()
	})
}

func TestBuiltinsRegistered(t *testing.T) {
	tests := []struct {
		stage string
		want  []string
	}{
		{pipeline.StageFilter, []string{"all", "date_after", "date_before", "exclude", "expression", "include", "script"}},
		{pipeline.StageSplitter, []string{"value"}},
		{pipeline.StageTransformer, []string{"cumulative", "new", "periods"}},
		{pipeline.StageGrouper, []string{"step_name"}},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			got := ListTypes(tt.stage)
			if len(got) != len(tt.want) {
				t.Fatalf("ListTypes(%s) = %v, want %v", tt.stage, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ListTypes(%s)[%d] = %q, want %q", tt.stage, i, got[i], tt.want[i])
				}
			}
		})
	}
	if ListTypes("output") != nil {
		t.Error("unknown stage kind should list nothing")
	}
}

func TestRegisterFilter(t *testing.T) {
	restore(t)

	called := false
	RegisterFilter("weekday", func(cfg pipeline.StageConfig, _ record.DateParser) (filter.Module, error) {
		called = true
		return filter.All{}, nil
	})

	c := GetFilterConstructor("weekday")
	if c == nil {
		t.Fatal("expected constructor, got nil")
	}
	if _, err := c(pipeline.StageConfig{}, record.DateParser{}); err != nil || !called {
		t.Errorf("constructor not called correctly: called=%v err=%v", called, err)
	}
}

func TestRegisterOtherKinds(t *testing.T) {
	restore(t)

	RegisterSplitter("custom", func(cfg pipeline.StageConfig) (splitter.Module, error) {
		return splitter.NewValue(cfg.Name, record.ColumnRole), nil
	})
	RegisterTransformer("custom", func(cfg pipeline.StageConfig) (transformer.Module, error) {
		return transformer.NewNewFromConfig(cfg)
	})
	RegisterGrouper("custom", func(cfg pipeline.StageConfig) (grouper.Module, error) {
		return grouper.NewStepName(cfg.Name, nil, nil), nil
	})

	if GetSplitterConstructor("custom") == nil || GetTransformerConstructor("custom") == nil || GetGrouperConstructor("custom") == nil {
		t.Fatal("expected constructors for all kinds")
	}
}

func TestGetUnregisteredConstructor(t *testing.T) {
	if GetFilterConstructor("nope") != nil {
		t.Error("expected nil filter constructor")
	}
	if GetSplitterConstructor("nope") != nil {
		t.Error("expected nil splitter constructor")
	}
	if GetTransformerConstructor("nope") != nil {
		t.Error("expected nil transformer constructor")
	}
	if GetGrouperConstructor("nope") != nil {
		t.Error("expected nil grouper constructor")
	}
}

func TestOverwriteRegistration(t *testing.T) {
	restore(t)

	RegisterTransformer("new", func(cfg pipeline.StageConfig) (transformer.Module, error) {
		return transformer.NewPeriodsFromConfig(cfg)
	})

	m, err := GetTransformerConstructor("new")(pipeline.StageConfig{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*transformer.Periods); !ok {
		t.Errorf("expected overwritten constructor, got %T", m)
	}
}

func TestClearRegistries(t *testing.T) {
	restore(t)

	ClearRegistries()
	for _, stage := range []string{pipeline.StageFilter, pipeline.StageSplitter, pipeline.StageTransformer, pipeline.StageGrouper} {
		if n := len(ListTypes(stage)); n != 0 {
			t.Errorf("%s registry has %d entries after clear", stage, n)
		}
	}

	RegisterBuiltins()
	if GetGrouperConstructor("step_name") == nil {
		t.Error("RegisterBuiltins should restore defaults")
	}
}
