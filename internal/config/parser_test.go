package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  "schemaVersion": "1.0.0",
  "data": {
    "path": "isolations.xlsx",
    "table": "Isolations",
    "columns": {
      "dateStart": "Début",
      "dateEnd": "Fin",
      "role": "Rôle",
      "institution": "Établissement",
      "institutionType": "Type",
      "location": "Localité"
    },
    "dateFormats": ["%d/%m/%Y"],
    "districts": {"Lausanne": "Lausanne", "Renens": "Ouest lausannois"}
  },
  "process": {
    "name": "weekly",
    "filters": [{"name": "staff only", "type": "include", "column": "role", "values": ["staff"]}],
    "splitters": [{"name": "by type", "type": "value", "column": "institution_type"}],
    "transformers": [{"name": "cases", "type": "new"}, {"name": "load", "type": "cumulative", "pad": false}],
    "groupers": [{"name": "per type", "type": "step_name", "splitters": ["by type"]}]
  }
}`

const validYAML = `
schemaVersion: "1.0.0"
data:
  path: isolations.csv
  excelStartYear: 1904
  columns:
    dateStart: start
    dateEnd: end
    role: role
    institution: institution
    institutionType: type
    location: location
process:
  name: weekly
  transformers:
    - name: periods
      type: periods
      windowDays: 7
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		wantFormat string
		wantValid  bool
		wantType   string
	}{
		{name: "json by extension", file: "p.json", content: validJSON, wantFormat: FormatJSON, wantValid: true},
		{name: "yaml by extension", file: "p.yaml", content: validYAML, wantFormat: FormatYAML, wantValid: true},
		{name: "yml extension", file: "p.yml", content: validYAML, wantFormat: FormatYAML, wantValid: true},
		{name: "sniffed json", file: "p.conf", content: validJSON, wantFormat: FormatJSON, wantValid: true},
		{name: "sniffed yaml", file: "p.conf", content: validYAML, wantFormat: FormatYAML, wantValid: true},
		{name: "empty json", file: "e.json", content: "  ", wantFormat: FormatJSON, wantType: ErrorTypeSyntax},
		{name: "array top level", file: "a.json", content: `[1,2]`, wantFormat: FormatJSON, wantType: ErrorTypeFormat},
		{name: "scalar yaml", file: "s.yaml", content: `hello`, wantFormat: FormatYAML, wantType: ErrorTypeFormat},
		{name: "undetectable", file: "x.conf", content: "", wantType: ErrorTypeFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseFile(writeFile(t, tt.file, tt.content))

			if result.IsValid() != tt.wantValid {
				t.Fatalf("IsValid() = %v, want %v (errors: %v)", result.IsValid(), tt.wantValid, result.Errors)
			}
			if result.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", result.Format, tt.wantFormat)
			}
			if !tt.wantValid && result.Errors[0].Type != tt.wantType {
				t.Errorf("error type = %q, want %q", result.Errors[0].Type, tt.wantType)
			}
		})
	}
}

func TestParseFile_Missing(t *testing.T) {
	result := ParseFile(filepath.Join(t.TempDir(), "absent.json"))
	if result.IsValid() {
		t.Fatal("expected failure for missing file")
	}
	if result.Errors[0].Type != ErrorTypeIO {
		t.Errorf("error type = %q, want io", result.Errors[0].Type)
	}
	if !strings.Contains(result.Errors[0].Error(), "absent.json") {
		t.Errorf("error should name the file: %v", result.Errors[0])
	}
}

func TestParseJSON_SyntaxErrorPosition(t *testing.T) {
	content := "{\n  \"schemaVersion\": \"1.0.0\",\n  \"data\": ,\n}"
	result := ParseString(content, FormatJSON)

	if result.IsValid() {
		t.Fatal("expected syntax error")
	}
	err := result.Errors[0]
	if err.Type != ErrorTypeSyntax {
		t.Errorf("Type = %q", err.Type)
	}
	if err.Line != 3 {
		t.Errorf("Line = %d, want 3", err.Line)
	}
	if err.Column == 0 {
		t.Error("Column should be set")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseYAML_SyntaxErrorLine(t *testing.T) {
	content := "schemaVersion: \"1.0.0\"\ndata:\n  path: [unclosed\n"
	result := ParseString(content, FormatYAML)

	if result.IsValid() {
		t.Fatal("expected syntax error")
	}
	if result.Errors[0].Line == 0 {
		t.Errorf("expected a line number, got %+v", result.Errors[0])
	}
}

func TestParseYAML_NormalizesNumbers(t *testing.T) {
	result := ParseString(validYAML, FormatYAML)
	if !result.IsValid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	data := result.Data["data"].(map[string]interface{})
	if _, ok := data["excelStartYear"].(float64); !ok {
		t.Errorf("excelStartYear should decode as float64, got %T", data["excelStartYear"])
	}
}

func TestParseString_UnsupportedFormat(t *testing.T) {
	result := ParseString("a = 1", "toml")
	if result.IsValid() || result.Errors[0].Type != ErrorTypeFormat {
		t.Errorf("expected format error, got %+v", result.Errors)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"a.json":    FormatJSON,
		"a.JSON":    FormatJSON,
		"a.yaml":    FormatYAML,
		"a.yml":     FormatYAML,
		"a.txt":     "",
		"noextfile": "",
	}
	for in, want := range tests {
		if got := DetectFormat(in); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOffsetToLineColumn(t *testing.T) {
	content := "ab\ncd\nef"
	tests := []struct {
		offset    int64
		line, col int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{7, 3, 2},
		{100, 3, 3},
	}
	for _, tt := range tests {
		line, col := offsetToLineColumn(content, tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("offsetToLineColumn(%d) = (%d,%d), want (%d,%d)", tt.offset, line, col, tt.line, tt.col)
		}
	}
}
