package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/emsplot/runtime/internal/pathutil"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// stageKeys are the keys of a stage object that are not type parameters.
var stageKeys = map[string]bool{"name": true, "type": true}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ConvertToProject converts a schema-valid configuration tree into a Project.
//
// The expected shape is:
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "data": {"path": "...", "columns": {...}},
//	  "process": {"name": "...", "filters": [...], ...}
//	}
func ConvertToProject(data map[string]interface{}) (*pipeline.Project, error) {
	if data == nil {
		return nil, errors.New("configuration data is nil")
	}

	project := &pipeline.Project{}
	project.SchemaVersion, _ = data["schemaVersion"].(string)

	dataSection, ok := data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.New("missing or invalid 'data' section")
	}
	source, err := convertDataSource(dataSection)
	if err != nil {
		return nil, fmt.Errorf("invalid 'data' section: %w", err)
	}
	project.Data = source

	processSection, ok := data["process"].(map[string]interface{})
	if !ok {
		return nil, errors.New("missing or invalid 'process' section")
	}
	def, err := convertDefinition(processSection)
	if err != nil {
		return nil, fmt.Errorf("invalid 'process' section: %w", err)
	}
	project.Process = def

	return project, nil
}

func convertDataSource(data map[string]interface{}) (pipeline.DataSource, error) {
	source := pipeline.DataSource{ExcelStartYear: record.Epoch1900}

	source.Path, _ = data["path"].(string)
	source.Table, _ = data["table"].(string)
	if year, ok := data["excelStartYear"].(float64); ok {
		source.ExcelStartYear = int(year)
	}

	columns, ok := data["columns"].(map[string]interface{})
	if !ok {
		return source, errors.New("missing or invalid 'columns'")
	}
	source.Columns = pipeline.Columns{
		DateStart:       stringField(columns, "dateStart"),
		DateEnd:         stringField(columns, "dateEnd"),
		Role:            stringField(columns, "role"),
		Institution:     stringField(columns, "institution"),
		InstitutionType: stringField(columns, "institutionType"),
		Location:        stringField(columns, "location"),
	}

	if formats, ok := data["dateFormats"].([]interface{}); ok {
		for i, f := range formats {
			s, ok := f.(string)
			if !ok {
				return source, fmt.Errorf("dateFormats[%d]: expected string, got %T", i, f)
			}
			source.DateFormats = append(source.DateFormats, s)
		}
	}

	if districts, ok := data["districts"].(map[string]interface{}); ok {
		source.Districts = make(map[string]string, len(districts))
		for location, d := range districts {
			s, ok := d.(string)
			if !ok {
				return source, fmt.Errorf("districts[%q]: expected string, got %T", location, d)
			}
			source.Districts[location] = s
		}
	}

	return source, nil
}

func convertDefinition(data map[string]interface{}) (pipeline.Definition, error) {
	def := pipeline.Definition{}
	def.Name, _ = data["name"].(string)

	lists := []struct {
		key  string
		dest *[]pipeline.StageConfig
	}{
		{"filters", &def.Filters},
		{"splitters", &def.Splitters},
		{"transformers", &def.Transformers},
		{"groupers", &def.Groupers},
	}
	for _, l := range lists {
		raw, ok := data[l.key]
		if !ok || raw == nil {
			continue
		}
		items, ok := raw.([]interface{})
		if !ok {
			return def, fmt.Errorf("'%s' must be a list", l.key)
		}
		for i, item := range items {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return def, fmt.Errorf("invalid %s entry at index %d", l.key, i)
			}
			stage, err := convertStage(obj)
			if err != nil {
				return def, fmt.Errorf("invalid %s entry at index %d: %w", l.key, i, err)
			}
			*l.dest = append(*l.dest, stage)
		}
	}
	return def, nil
}

func convertStage(data map[string]interface{}) (pipeline.StageConfig, error) {
	stage := pipeline.StageConfig{Config: make(map[string]interface{})}

	name, ok := data["name"].(string)
	if !ok || name == "" {
		return stage, errors.New("missing required field 'name'")
	}
	stageType, ok := data["type"].(string)
	if !ok || stageType == "" {
		return stage, fmt.Errorf("stage %q: missing required field 'type'", name)
	}
	stage.Name = name
	stage.Type = stageType

	for k, v := range data {
		if !stageKeys[k] {
			stage.Config[k] = v
		}
	}
	return stage, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// ValidateDataSource checks the struct constraints of a data source
// (required column names, supported spreadsheet epoch).
func ValidateDataSource(source pipeline.DataSource) []ValidationError {
	err := structValidator.Struct(source)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Path: "/data", Type: "validation", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Path:    "/data/" + jsonPointer(fe.Namespace()),
			Type:    fe.Tag(),
			Message: describeFieldError(fe),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// jsonPointer turns "DataSource.Columns.DateStart" into "columns/dateStart".
func jsonPointer(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "/")
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

// Load parses, validates and converts the project file at path.
// A relative data path is resolved against the directory of the project file.
func Load(path string) (*pipeline.Project, error) {
	result := ParseConfig(path)
	if err := result.Err(); err != nil {
		return nil, err
	}
	return build(result)
}

// LoadString is Load for in-memory content.
func LoadString(content, format string) (*pipeline.Project, error) {
	result := ParseConfigString(content, format)
	if err := result.Err(); err != nil {
		return nil, err
	}
	return build(result)
}

func build(result *Result) (*pipeline.Project, error) {
	project, err := ConvertToProject(result.Data)
	if err != nil {
		return nil, err
	}
	if errs := ValidateDataSource(project.Data); len(errs) > 0 {
		result.ValidationErrors = append(result.ValidationErrors, errs...)
		return nil, result.Err()
	}
	path, err := pathutil.ResolveRelative(result.FilePath, project.Data.Path)
	if err != nil {
		result.ValidationErrors = append(result.ValidationErrors, ValidationError{
			Path: "/data/path", Type: "path", Message: err.Error(),
		})
		return nil, result.Err()
	}
	project.Data.Path = path
	return project, nil
}

// ParseConfig parses a configuration file and validates it against the schema.
func ParseConfig(path string) *Result {
	return validated(ParseFile(path))
}

// ParseConfigString parses configuration content and validates it against the schema.
func ParseConfigString(content, format string) *Result {
	return validated(ParseString(content, format))
}

func validated(parsed *ParseResult) *Result {
	result := &Result{
		Data:        parsed.Data,
		ParseErrors: parsed.Errors,
		FilePath:    parsed.FilePath,
		Format:      parsed.Format,
	}
	if !parsed.IsValid() {
		return result
	}
	result.ValidationErrors = ValidateConfig(parsed.Data).Errors
	return result
}
