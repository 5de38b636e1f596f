// Package errhandling provides error types and classification for the
// emsplot runtime.
//
// Errors fall into three categories that decide how a caller reacts:
//   - configuration: an invalid process definition (unknown stage type,
//     undeclared name, invalid column). Raised while building a process,
//     before any data is touched. Fatal.
//   - data: a single source row that cannot become an entry. Logged and
//     dropped by ingestion; never aborts a batch.
//   - lookup: a configured column missing from the source headers. Fatal.
package errhandling

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryConfiguration represents errors in the process definition or data source settings.
	CategoryConfiguration ErrorCategory = "configuration"

	// CategoryData represents errors in a single source row.
	// Data errors are recoverable: the row is dropped.
	CategoryData ErrorCategory = "data"

	// CategoryLookup represents configured names that the source does not provide.
	CategoryLookup ErrorCategory = "lookup"

	// CategoryRuntime represents failures while a process runs (script errors, cancellation).
	CategoryRuntime ErrorCategory = "runtime"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// Sentinel errors wrapped by ConfigError.
var (
	// ErrUnknownType is returned when no constructor is registered for a stage type
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownColumn is returned when a stage references a column entries do not have
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUndeclaredName is returned when a grouper references a stage the process does not define
	ErrUndeclaredName = errors.New("undeclared name")

	// ErrDuplicateName is returned when two stages of the same kind share a name
	ErrDuplicateName = errors.New("duplicate name")

	// ErrMissingParameter is returned when a required stage parameter is absent
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter is returned when a stage parameter has the wrong type or value
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ConfigError describes an invalid stage configuration.
// The message always names the offending stage so that it is actionable.
type ConfigError struct {
	// Stage is the stage kind (filter, splitter, transformer, grouper)
	Stage string
	// Name is the configured name of the stage
	Name string
	// Type is the configured type of the stage
	Type string
	// Message is a human-readable description
	Message string
	// Err is the underlying error, often one of the sentinels above
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid ")
	if e.Stage != "" {
		sb.WriteString(e.Stage)
	} else {
		sb.WriteString("configuration")
	}
	if e.Name != "" {
		sb.WriteString(fmt.Sprintf(" %q", e.Name))
	}
	if e.Type != "" {
		sb.WriteString(fmt.Sprintf(" (type %q)", e.Type))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for the given stage.
func NewConfigError(stage, name, stageType, message string, err error) *ConfigError {
	return &ConfigError{
		Stage:   stage,
		Name:    name,
		Type:    stageType,
		Message: message,
		Err:     err,
	}
}

// LookupError is returned when a configured column is absent from the source headers.
type LookupError struct {
	// Column is the configured column name that was not found
	Column string
	// Table is the table that was searched
	Table string
	// Available lists the headers that were present
	Available []string
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	msg := fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

// RowError describes a source row that could not become an entry.
type RowError struct {
	// Row is the 0-based index of the row in the data rows (headers excluded)
	Row int
	// Err is the cause
	Err error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("invalid entry at row %d: %v", e.Row, e.Err)
}

// Unwrap returns the cause.
func (e *RowError) Unwrap() error {
	return e.Err
}

// RuntimeError describes a failure while a process runs.
type RuntimeError struct {
	// Stage is the stage kind that failed
	Stage string
	// Name is the configured name of the stage
	Name string
	// Err is the cause
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Stage, e.Name, e.Err)
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Classify returns the category of err.
// Returns CategoryUnknown for nil or unclassified errors.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return CategoryConfiguration
	}

	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return CategoryLookup
	}

	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return CategoryData
	}

	var runErr *RuntimeError
	if errors.As(err, &runErr) {
		return CategoryRuntime
	}

	return CategoryUnknown
}

// IsFatal returns true if the error must stop the caller.
// Only data errors are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err) != CategoryData
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	return Classify(err) == CategoryConfiguration
}
