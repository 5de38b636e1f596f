package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// OutputFormat represents the console log format.
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a short console format with level glyphs
	FormatHuman
)

// ParseFormat maps "json" or "human" (case-insensitive) to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text", "console":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q", s)
	}
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// SetFormat switches the console format at info level.
func SetFormat(format OutputFormat) {
	SetLevelAndFormat(slog.LevelInfo, format)
}

// SetLevelAndFormat sets both the log level and the console format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	Logger = slog.New(consoleHandler(os.Stderr, level, format))
}

func consoleHandler(w io.Writer, level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(w, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(w),
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// HumanHandlerOptions configures the human-readable handler.
type HumanHandlerOptions struct {
	// Level is the minimum level written
	Level slog.Level
	// UseColors enables ANSI colours on the level glyph
	UseColors bool
	// MaxInlineAttrs caps the attributes printed per line (default 6)
	MaxInlineAttrs int
}

// HumanHandler is a slog handler producing one short line per record:
//
//	15:04:05 ✓ run completed run_id=... datasets=3 duration=12ms
type HumanHandler struct {
	opts  HumanHandlerOptions
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr
	group string
}

// NewHumanHandler creates a human-readable handler writing to w.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	h := &HumanHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.MaxInlineAttrs <= 0 {
		h.opts.MaxInlineAttrs = 6
	}
	return h
}

// Enabled reports whether records at level are written.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle writes one record.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(h.glyph(r.Level, r.Message))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	fields := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields = append(fields, h.format(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.format(a))
		return true
	})
	if n := len(fields); n > 0 {
		shown := fields
		if n > h.opts.MaxInlineAttrs {
			shown = fields[:h.opts.MaxInlineAttrs]
		}
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(shown, " "))
		if n > len(shown) {
			fmt.Fprintf(&sb, " (+%d more)", n-len(shown))
		}
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs returns a handler that also writes attrs on every record.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup returns a handler that prefixes later attribute keys with name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
)

func (h *HumanHandler) glyph(level slog.Level, msg string) string {
	var g, color string
	switch {
	case level >= slog.LevelError:
		g, color = "✗", colorRed
	case level >= slog.LevelWarn:
		g, color = "⚠", colorYellow
	case level >= slog.LevelInfo && strings.Contains(strings.ToLower(msg), "completed"):
		g, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		g, color = "ℹ", colorCyan
	default:
		g, color = "·", colorReset
	}
	if h.opts.UseColors {
		return color + g + colorReset
	}
	return g
}

func (h *HumanHandler) format(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return a.Key + "=" + FormatDuration(v)
	case float64:
		return fmt.Sprintf("%s=%.2f", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

// FormatDuration renders d with a unit suited to its magnitude.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// FormatMetricsHuman renders run metrics as one sentence.
func FormatMetricsHuman(m RunMetrics) string {
	s := fmt.Sprintf("Kept %d of %d entries, %d leaf batches, %d series, %d datasets in %s",
		m.EntriesKept, m.EntriesIn, m.Leaves, m.Series, m.Datasets, FormatDuration(m.TotalDuration))
	return s
}

// =============================================================================
// Log File Output
// =============================================================================

// maxLogFileSize is the size above which the log file is rotated on open (10MB).
const maxLogFileSize = 10 * 1024 * 1024

var logFile *os.File

// rotateLogFile renames path with a timestamp suffix when it exceeds maxLogFileSize.
func rotateLogFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking log file size: %w", err)
	}
	if info.Size() < maxLogFileSize {
		return nil
	}
	rotated := path + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// SetLogFile logs to both the console (in consoleFormat) and the file at path (JSON).
func SetLogFile(path string, level slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()

	if err := rotateLogFile(path); err != nil {
		Warn("log rotation failed", slog.String("error", err.Error()))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f

	Logger = slog.New(&teeHandler{
		handlers: []slog.Handler{
			consoleHandler(os.Stderr, level, consoleFormat),
			slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
		},
	})
	Debug("log file opened", slog.String("path", path))
	return nil
}

// CloseLogFile closes the current log file, if any.
func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Sync(); err != nil {
		Warn("failed to sync log file", slog.String("error", err.Error()))
	}
	if err := logFile.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
	logFile = nil
}

// teeHandler fans records out to several handlers.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &teeHandler{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := &teeHandler{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithGroup(name)
	}
	return out
}
