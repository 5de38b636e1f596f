package filter

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// envDurationDays is the extra variable exposing Entry.DurationDays.
const envDurationDays = "duration_days"

// Expression keeps entries for which a boolean expr expression is true.
//
// Every column is a variable: date columns are time.Time values (compare
// them with date("2020-03-01")), the others are strings. duration_days is
// the number of days the entry spans.
//
//	role == "staff" && (institution_type in ["EMS", "Hospital"] || duration_days > 10)
type Expression struct {
	source  string
	program *vm.Program
}

// NewExpressionFromConfig compiles the "expression" parameter.
// Unknown variables and non-boolean results fail at construction.
func NewExpressionFromConfig(cfg pipeline.StageConfig) (*Expression, error) {
	p := params.New(pipeline.StageFilter, cfg)

	source, err := p.String("expression")
	if err != nil {
		return nil, err
	}

	program, err := expr.Compile(source, expr.Env(exprEnv(record.Entry{})), expr.AsBool())
	if err != nil {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "expression does not compile: %v", err)
	}

	logger.Debug("expression filter initialized",
		slog.String("name", cfg.Name),
		slog.String("expression", source),
	)
	return &Expression{source: source, program: program}, nil
}

// Match implements Module.
func (e *Expression) Match(entry record.Entry) (bool, error) {
	out, err := expr.Run(e.program, exprEnv(entry))
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", e.source, err)
	}
	keep, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", e.source, out)
	}
	return keep, nil
}

func exprEnv(entry record.Entry) map[string]interface{} {
	env := make(map[string]interface{}, len(record.Columns())+1)
	for _, c := range record.Columns() {
		if d, ok := entry.Date(c); ok {
			env[c] = d
			continue
		}
		env[c], _ = entry.Field(c)
	}
	env[envDurationDays] = entry.DurationDays()
	return env
}

var _ Module = (*Expression)(nil)
