// Package config parses, validates and converts emsplot project files.
//
// A project file (JSON or YAML) names the data source and the process to
// run on it. Parsing reports errors with their position; the parsed tree is
// validated against an embedded JSON schema and then converted into
// pipeline.Project values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a configuration file, choosing the format from its
// extension and falling back to content sniffing.
func ParseFile(filepath string) *ParseResult {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return &ParseResult{
			FilePath: filepath,
			Format:   DetectFormat(filepath),
			Errors: []ParseError{{
				Path:    filepath,
				Message: fmt.Sprintf("failed to read file: %v", err),
				Type:    ErrorTypeIO,
			}},
		}
	}

	format := DetectFormat(filepath)
	if format == "" {
		format = sniffFormat(string(content))
	}

	result := ParseString(string(content), format)
	result.FilePath = filepath
	for i := range result.Errors {
		if result.Errors[i].Path == "" {
			result.Errors[i].Path = filepath
		}
	}
	return result
}

// ParseString parses configuration content in the given format.
// An empty format sniffs the content.
func ParseString(content, format string) *ParseResult {
	if format == "" {
		format = sniffFormat(content)
	}
	switch format {
	case FormatJSON:
		return parseJSON(content)
	case FormatYAML:
		return parseYAML(content)
	case "":
		return &ParseResult{Errors: []ParseError{{
			Message: "unable to detect configuration format: not valid JSON or YAML",
			Type:    ErrorTypeFormat,
		}}}
	default:
		return &ParseResult{Format: format, Errors: []ParseError{{
			Message: fmt.Sprintf("unsupported format: %s", format),
			Type:    ErrorTypeFormat,
		}}}
	}
}

// DetectFormat returns the format implied by the file extension, or "".
func DetectFormat(filepath string) string {
	switch strings.ToLower(path.Ext(filepath)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// IsJSON reports whether content looks like a JSON document.
func IsJSON(content string) bool {
	content = strings.TrimSpace(content)
	return strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[")
}

// IsYAML reports whether content parses as a non-empty YAML document.
// JSON is also YAML, so this is true for JSON content too.
func IsYAML(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	var data interface{}
	return yaml.Unmarshal([]byte(content), &data) == nil && data != nil
}

func sniffFormat(content string) string {
	switch {
	case IsJSON(content):
		return FormatJSON
	case IsYAML(content):
		return FormatYAML
	default:
		return ""
	}
}

func parseJSON(content string) *ParseResult {
	result := &ParseResult{Format: FormatJSON}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected JSON object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, jsonError(err, content))
		return result
	}
	return withObject(result, data)
}

func parseYAML(content string) *ParseResult {
	result := &ParseResult{Format: FormatYAML}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected YAML document",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var raw interface{}
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		result.Errors = append(result.Errors, yamlError(err))
		return result
	}

	// Round-trip through JSON so both formats yield the same value types
	// (float64 numbers, map[string]interface{} objects).
	data, err := normalize(raw)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("invalid configuration: %v", err),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	return withObject(result, data)
}

func withObject(result *ParseResult, data interface{}) *ParseResult {
	if data == nil {
		result.Errors = append(result.Errors, ParseError{
			Message: "configuration document is empty",
			Type:    ErrorTypeFormat,
		})
		return result
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("invalid configuration: expected an object at the top level, got %T", data),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	result.Data = obj
	return result
}

func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("non-string mapping keys are not supported: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonError(err error, content string) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	switch e := err.(type) {
	case *json.SyntaxError:
		parseErr.Offset = e.Offset
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, e.Offset)
		parseErr.Message = fmt.Sprintf("JSON syntax error: %s", e.Error())
	case *json.UnmarshalTypeError:
		parseErr.Offset = e.Offset
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, e.Offset)
		parseErr.Message = fmt.Sprintf("type error at field '%s': expected %s, got %s", e.Field, e.Type, e.Value)
	}
	return parseErr
}

// offsetToLineColumn converts a byte offset to 1-based line and column.
func offsetToLineColumn(content string, offset int64) (line, column int) {
	line, column = 1, 1
	for i := int64(0); i < offset && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}

func yamlError(err error) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	if typeErr, ok := err.(*yaml.TypeError); ok {
		parseErr.Message = fmt.Sprintf("YAML type error: %s", strings.Join(typeErr.Errors, "; "))
	}

	// yaml.v3 reports positions as "yaml: line N: ..."
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		parseErr.Line = line
	}
	return parseErr
}
