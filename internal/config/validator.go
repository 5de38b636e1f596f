package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

//go:embed schema/process-schema.json
var embeddedSchema []byte

const schemaURL = "https://emsplot.dev/schemas/process/v1.0.0/process-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// GetEmbeddedSchema returns the embedded project schema.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc interface{}
		if err := json.Unmarshal(embeddedSchema, &doc); err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaInitErr = compiler.Compile(schemaURL)
		if schemaInitErr != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", schemaInitErr)
		}
	})
	return compiledSchema, schemaInitErr
}

// ValidateConfig validates a parsed configuration against the project schema.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(data) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "required",
			Message: "configuration data is empty",
		})
		return result
	}

	schema, err := getCompiledSchema()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "schema",
			Message: fmt.Sprintf("failed to load schema: %v", err),
		})
		return result
	}

	if err := schema.Validate(data); err != nil {
		result.Valid = false
		if detailed, ok := err.(*jsonschema.ValidationError); ok {
			result.Errors = flattenValidationError(detailed)
		}
		if len(result.Errors) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "/",
				Type:    "validation",
				Message: err.Error(),
			})
		}
	}
	return result
}

// flattenValidationError collects the leaf causes of a jsonschema error.
func flattenValidationError(err *jsonschema.ValidationError) []ValidationError {
	if len(err.Causes) == 0 {
		return []ValidationError{{
			Path:    instancePath(err.InstanceLocation),
			Type:    errorType(err),
			Message: err.Error(),
		}}
	}
	var out []ValidationError
	for _, cause := range err.Causes {
		out = append(out, flattenValidationError(cause)...)
	}
	return out
}

func instancePath(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

func errorType(err *jsonschema.ValidationError) string {
	switch err.ErrorKind.(type) {
	case *kind.Required:
		return "required"
	case *kind.Type:
		return "type"
	case *kind.Enum, *kind.Const:
		return "enum"
	case *kind.Pattern:
		return "pattern"
	case *kind.AdditionalProperties:
		return "additionalProperties"
	case *kind.Minimum, *kind.Maximum, *kind.MinLength, *kind.MaxLength:
		return "range"
	default:
		return "validation"
	}
}
