// Package logger provides structured logging for the emsplot runtime.
// It wraps log/slog so that every package logs through one configurable
// logger with consistent snake_case field names.
//
// Two console formats are supported:
//   - JSON (default): machine-readable structured logging
//   - Human: short lines with a level glyph, optionally coloured
//
// A log file can be added next to the console; file output is always JSON.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

func init() {
	Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetLevel configures the logging level, keeping the JSON console format.
func SetLevel(level slog.Level) {
	SetLevelAndFormat(level, FormatJSON)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithStage returns a logger tagged with a stage kind and name.
func WithStage(stage, name string) *slog.Logger {
	return Logger.With(slog.String("stage", stage), slog.String("stage_name", name))
}

// =============================================================================
// Run Context
// =============================================================================

// RunContext identifies a process run in log records.
type RunContext struct {
	// RunID is the unique identifier of the run (required)
	RunID string
	// ProcessName is the name of the process definition
	ProcessName string
	// Stage is the current stage kind (filter, split, transform, group)
	Stage string
	// StageName is the configured name of the stage instance
	StageName string
	// StageType is the registered type of the stage instance
	StageType string
}

// RunMetrics summarises a run for the metrics log line.
type RunMetrics struct {
	TotalDuration     time.Duration
	FilterDuration    time.Duration
	SplitDuration     time.Duration
	TransformDuration time.Duration
	GroupDuration     time.Duration
	EntriesIn         int
	EntriesKept       int
	Leaves            int
	Series            int
	Datasets          int
}

// ErrorContext carries structured context for LogError.
type ErrorContext struct {
	RunID       string
	ProcessName string
	Stage       string
	StageName   string
	StageType   string

	// Category is the errhandling category of the error
	Category string
	Err      error

	// Row is the index of the offending source row, -1 when not applicable
	Row int
	// Table is the source table, when relevant
	Table string

	// Extra holds additional key-value pairs
	Extra map[string]interface{}
}

// WithRun returns a logger with the run context attached.
func WithRun(ctx RunContext) *slog.Logger {
	return Logger.With(runAttrs(ctx)...)
}

// LogRunStart logs the start of a process run.
func LogRunStart(ctx RunContext, entries int) {
	attrs := append(runAttrs(ctx), slog.Int("entries", entries))
	Logger.Info("run started", attrs...)
}

// LogRunEnd logs the completion of a process run.
func LogRunEnd(ctx RunContext, status string, datasets int, duration time.Duration) {
	attrs := append(runAttrs(ctx),
		slog.String("status", status),
		slog.Int("datasets", datasets),
		slog.Duration("duration", duration),
	)
	Logger.Info("run completed", attrs...)
}

// LogStageStart logs the start of a stage.
func LogStageStart(ctx RunContext, inputs int) {
	attrs := append(runAttrs(ctx), slog.Int("inputs", inputs))
	Logger.Debug("stage started", attrs...)
}

// LogStageEnd logs the end of a stage. A non-nil err is logged at error level.
func LogStageEnd(ctx RunContext, outputs int, duration time.Duration, err error) {
	attrs := append(runAttrs(ctx),
		slog.Int("outputs", outputs),
		slog.Duration("duration", duration),
	)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Debug("stage completed", attrs...)
}

// LogMetrics logs the metrics of a finished run.
func LogMetrics(ctx RunContext, m RunMetrics) {
	attrs := append(runAttrs(ctx),
		slog.Duration("total_duration", m.TotalDuration),
		slog.Duration("filter_duration", m.FilterDuration),
		slog.Duration("split_duration", m.SplitDuration),
		slog.Duration("transform_duration", m.TransformDuration),
		slog.Duration("group_duration", m.GroupDuration),
		slog.Int("entries_in", m.EntriesIn),
		slog.Int("entries_kept", m.EntriesKept),
		slog.Int("leaves", m.Leaves),
		slog.Int("series", m.Series),
		slog.Int("datasets", m.Datasets),
	)
	Logger.Info("run metrics", attrs...)
}

// LogError logs an error with its context and unwrapped cause chain.
func LogError(message string, ec ErrorContext) {
	attrs := runAttrs(RunContext{
		RunID:       ec.RunID,
		ProcessName: ec.ProcessName,
		Stage:       ec.Stage,
		StageName:   ec.StageName,
		StageType:   ec.StageType,
	})
	if ec.Category != "" {
		attrs = append(attrs, slog.String("error_category", ec.Category))
	}
	if ec.Err != nil {
		attrs = append(attrs,
			slog.String("error", ec.Err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", ec.Err)),
		)
		if chain := errorChain(ec.Err); len(chain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
		}
	}
	if ec.Row >= 0 {
		attrs = append(attrs, slog.Int("row", ec.Row))
	}
	if ec.Table != "" {
		attrs = append(attrs, slog.String("table", ec.Table))
	}
	for k, v := range ec.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}
	Logger.Error(message, attrs...)
}

// runAttrs builds slog attributes from a RunContext, skipping empty fields.
func runAttrs(ctx RunContext) []any {
	attrs := make([]any, 0, 5)
	if ctx.RunID != "" {
		attrs = append(attrs, slog.String("run_id", ctx.RunID))
	}
	if ctx.ProcessName != "" {
		attrs = append(attrs, slog.String("process", ctx.ProcessName))
	}
	if ctx.Stage != "" {
		attrs = append(attrs, slog.String("stage", ctx.Stage))
	}
	if ctx.StageName != "" {
		attrs = append(attrs, slog.String("stage_name", ctx.StageName))
	}
	if ctx.StageType != "" {
		attrs = append(attrs, slog.String("stage_type", ctx.StageType))
	}
	return attrs
}

type unwrapper interface {
	Unwrap() error
}

func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return chain
}
