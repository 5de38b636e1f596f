package filter

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/modules/params"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// MaxScriptLength is the maximum script size in bytes (100KB).
const MaxScriptLength = 100 * 1024

// onError values of the script filter.
const (
	OnErrorFail = "fail"
	OnErrorSkip = "skip"
)

// ErrMissingKeepFunc is returned when a script does not define keep(entry).
var ErrMissingKeepFunc = errors.New("keep function not found in script")

// Script keeps entries for which a JavaScript keep(entry) function returns
// a truthy value. The entry is passed as a plain object with one property
// per column (dates as "YYYY-MM-DD" strings) plus duration_days.
//
//	function keep(e) { return e.role !== "visitor" && e.duration_days >= 2 }
//
// A goja runtime is not goroutine-safe; calls to Match are serialised.
type Script struct {
	onError string
	mu      sync.Mutex
	vm      *goja.Runtime
	keep    goja.Callable
}

// NewScriptFromConfig compiles the "script" parameter and resolves keep.
// "onError" selects what a thrown exception does: fail (default) aborts the
// run, skip drops the entry.
func NewScriptFromConfig(cfg pipeline.StageConfig) (*Script, error) {
	p := params.New(pipeline.StageFilter, cfg)

	source, err := p.String("script")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "script cannot be empty")
	}
	if len(source) > MaxScriptLength {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "script exceeds maximum length: %d bytes exceeds maximum %d bytes", len(source), MaxScriptLength)
	}
	onError, err := p.OneOf("onError", OnErrorFail, OnErrorFail, OnErrorSkip)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "script compilation failed: %v", err)
	}
	keepVal := vm.Get("keep")
	if keepVal == nil || goja.IsUndefined(keepVal) {
		return nil, p.Errorf(ErrMissingKeepFunc, "script must define keep(entry)")
	}
	keep, ok := goja.AssertFunction(keepVal)
	if !ok {
		return nil, p.Errorf(errhandling.ErrInvalidParameter, "keep is not a function")
	}

	logger.Debug("script filter initialized",
		slog.String("name", cfg.Name),
		slog.Int("script_length", len(source)),
		slog.String("on_error", onError),
	)
	return &Script{onError: onError, vm: vm, keep: keep}, nil
}

// Match implements Module.
func (s *Script) Match(entry record.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.keep(goja.Undefined(), s.vm.ToValue(scriptEntry(entry)))
	if err != nil {
		msg := err.Error()
		var exc *goja.Exception
		if errors.As(err, &exc) {
			msg = exc.Value().String()
		}
		if s.onError == OnErrorSkip {
			logger.Warn("dropping entry after script error",
				slog.String("error", msg),
				slog.String("institution", entry.Institution),
				slog.String("date_start", entry.DateStart.Format("2006-01-02")),
			)
			return false, nil
		}
		return false, fmt.Errorf("script keep() failed: %s", msg)
	}
	return result.ToBoolean(), nil
}

func scriptEntry(entry record.Entry) map[string]interface{} {
	obj := make(map[string]interface{}, len(record.Columns())+1)
	for _, c := range record.Columns() {
		obj[c], _ = entry.Field(c)
	}
	obj[envDurationDays] = entry.DurationDays()
	return obj
}

var _ Module = (*Script)(nil)
