// Package params reads typed stage parameters from a pipeline.StageConfig.
// Every failure is an errhandling.ConfigError naming the stage.
package params

import (
	"fmt"
	"math"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Reader reads the parameters of one stage.
type Reader struct {
	stage string
	cfg   pipeline.StageConfig
}

// New returns a Reader for cfg; stage is the stage kind used in errors.
func New(stage string, cfg pipeline.StageConfig) Reader {
	return Reader{stage: stage, cfg: cfg}
}

// Errorf builds a ConfigError for this stage.
func (r Reader) Errorf(cause error, format string, args ...any) error {
	return errhandling.NewConfigError(r.stage, r.cfg.Name, r.cfg.Type, fmt.Sprintf(format, args...), cause)
}

// Has reports whether key is set.
func (r Reader) Has(key string) bool {
	_, ok := r.cfg.Config[key]
	return ok
}

// String returns a required non-empty string parameter.
func (r Reader) String(key string) (string, error) {
	v, ok := r.cfg.Config[key]
	if !ok {
		return "", r.Errorf(errhandling.ErrMissingParameter, "parameter '%s' is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be a non-empty string, got %v", key, v)
	}
	return s, nil
}

// OptionalString returns a string parameter or def when absent.
func (r Reader) OptionalString(key, def string) (string, error) {
	if !r.Has(key) {
		return def, nil
	}
	return r.String(key)
}

// Strings returns a list of strings. A single string is accepted as a one-element list.
// Absent keys yield nil.
func (r Reader) Strings(key string) ([]string, error) {
	v, ok := r.cfg.Config[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return append([]string(nil), t...), nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s[%d]' must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be a list of strings, got %T", key, v)
	}
}

// Bool returns a boolean parameter or def when absent.
func (r Reader) Bool(key string, def bool) (bool, error) {
	v, ok := r.cfg.Config[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be a boolean, got %T", key, v)
	}
	return b, nil
}

// PositiveInt returns an integer parameter >= 1, or def when absent.
// JSON numbers arrive as float64 and must be integral.
func (r Reader) PositiveInt(key string, def int) (int, error) {
	v, ok := r.cfg.Config[key]
	if !ok {
		return def, nil
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return def, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be an integer, got %v", key, t)
		}
		n = int(t)
	default:
		return def, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be an integer, got %T", key, v)
	}
	if n < 1 {
		return def, r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be at least 1, got %d", key, n)
	}
	return n, nil
}

// Column returns a required parameter naming an entry column.
func (r Reader) Column(key string) (string, error) {
	column, err := r.String(key)
	if err != nil {
		return "", err
	}
	if !record.IsColumn(column) {
		return "", r.Errorf(errhandling.ErrUnknownColumn, "column %q does not exist (known: %v)", column, record.Columns())
	}
	return column, nil
}

// OneOf returns a string parameter restricted to allowed values, or def when absent.
func (r Reader) OneOf(key, def string, allowed ...string) (string, error) {
	s, err := r.OptionalString(key, def)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", r.Errorf(errhandling.ErrInvalidParameter, "parameter '%s' must be one of %v, got %q", key, allowed, s)
}
