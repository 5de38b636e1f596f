// Package cli provides CLI output formatting and display functions.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/emsplot/runtime/internal/config"
	"github.com/emsplot/runtime/internal/errhandling"
)

// PrintConfigErrors prints the parse and validation errors of an invalid configuration.
func PrintConfigErrors(w io.Writer, result *config.Result, verbose, quiet bool) {
	if len(result.ParseErrors) > 0 {
		PrintParseErrors(w, result.ParseErrors, verbose)
	}
	if len(result.ValidationErrors) > 0 {
		PrintValidationErrors(w, result.ValidationErrors, verbose, quiet)
	}
}

// PrintParseErrors prints parse errors.
func PrintParseErrors(w io.Writer, errs []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errs {
		printSingleParseError(w, err, verbose)
	}
}

// printSingleParseError prints a single parse error with location information.
func printSingleParseError(w io.Writer, err config.ParseError, verbose bool) {
	location := formatErrorLocation(err.Path, err.Line, err.Column)

	if location != "" {
		fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
	} else {
		fmt.Fprintf(w, "  %s\n", err.Message)
	}

	if verbose && err.Type != "" {
		fmt.Fprintf(w, "    Type: %s\n", err.Type)
	}
}

// formatErrorLocation formats the error location string (path:line:column).
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints validation errors.
func PrintValidationErrors(w io.Writer, errs []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errs {
		path := err.Path
		if path == "" {
			path = "/"
		}
		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
		} else {
			fmt.Fprintf(w, "  %s: %s\n", path, truncate(err.Message, 80))
		}
	}
	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

// PrintError prints a failure with a heading matching its category.
func PrintError(w io.Writer, err error) {
	var invalid *config.InvalidError
	if errors.As(err, &invalid) {
		fmt.Fprintf(w, "✗ Invalid configuration %s\n", invalid.FilePath)
		for _, e := range invalid.Errs {
			fmt.Fprintf(w, "  %v\n", e)
		}
		return
	}

	switch errhandling.Classify(err) {
	case errhandling.CategoryConfiguration:
		fmt.Fprintln(w, "✗ Configuration error")
	case errhandling.CategoryLookup:
		fmt.Fprintln(w, "✗ Source data does not match the configuration")
	case errhandling.CategoryRuntime:
		fmt.Fprintln(w, "✗ Process failed")
	default:
		fmt.Fprintln(w, "✗ Error")
	}
	fmt.Fprintf(w, "  %v\n", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
