package config

import (
	"errors"
	"fmt"
	"strings"
)

// Format names.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseError categories.
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseResult holds the raw document produced by the JSON or YAML parser.
type ParseResult struct {
	// Data is the configuration as a generic JSON-compatible tree
	Data map[string]interface{}
	// Errors lists parsing failures
	Errors []ParseError
	// FilePath is the parsed file, empty when parsed from a string
	FilePath string
	// Format is "json" or "yaml"
	Format string
}

// IsValid returns true if no parsing errors occurred.
func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ParseError is a parsing error with its position when known.
type ParseError struct {
	Path string
	// Line and Column are 1-based; 0 when unknown
	Line   int
	Column int
	// Offset is the byte offset, 0 when unknown
	Offset  int64
	Message string
	Type    string
}

// Error implements the error interface.
func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationResult is the outcome of schema validation.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is one schema or struct validation failure.
type ValidationError struct {
	// Path is a JSON pointer to the offending value (e.g. "/process/filters/0/type")
	Path string
	// Type is a short kind: required, type, enum, pattern, ...
	Type    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Result combines parsing and schema validation of one configuration.
type Result struct {
	Data             map[string]interface{}
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
	FilePath         string
	Format           string
}

// IsValid returns true if no errors occurred.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns parsing then validation errors.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}

// Err joins all errors, or returns nil when the result is valid.
func (r *Result) Err() error {
	if r.IsValid() {
		return nil
	}
	return &InvalidError{FilePath: r.FilePath, Errs: r.AllErrors()}
}

// InvalidError reports a configuration that failed parsing or validation.
type InvalidError struct {
	FilePath string
	Errs     []error
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid configuration")
	if e.FilePath != "" {
		fmt.Fprintf(&sb, " %s", e.FilePath)
	}
	fmt.Fprintf(&sb, " (%d error(s))", len(e.Errs))
	for _, err := range e.Errs {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *InvalidError) Unwrap() []error {
	return e.Errs
}

// IsInvalid reports whether err is (or wraps) an InvalidError.
func IsInvalid(err error) bool {
	var invalid *InvalidError
	return errors.As(err, &invalid)
}
