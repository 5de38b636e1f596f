package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emsplot/runtime/internal/cli"
)

const testCSV = `Début;Fin;Rôle;Établissement;Type;Localité
2020-03-10;2020-03-20;staff;Bois-Gentil;EMS;Renens
2020-03-11;2020-03-15;resident;Bois-Gentil;EMS;Renens
2020-03-12;2020-03-13;staff;CHUV;Hospital;Lausanne
2020-03-14;2020-03-24;visitor;CHUV;Hospital;Lausanne
not a date;2020-03-24;staff;CHUV;Hospital;Lausanne
`

const testProject = `schemaVersion: "1.0.0"
data:
  path: isolations.csv
  columns:
    dateStart: Début
    dateEnd: Fin
    role: Rôle
    institution: Établissement
    institutionType: Type
    location: Localité
  districts:
    Renens: Ouest lausannois
process:
  name: weekly
  filters:
    - name: no visitors
      type: exclude
      column: role
      values: [visitor]
  splitters:
    - name: type
      type: value
      column: institution_type
  transformers:
    - name: new
      type: new
    - name: cum
      type: cumulative
  groupers:
    - name: by type
      type: step_name
      splitters: [type]
`

// writeProject writes the project and its data into a temporary directory
// and returns the project path. replace is applied to the project text.
func writeProject(t *testing.T, replace ...string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "isolations.csv"), []byte(testCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	project := strings.NewReplacer(replace...).Replace(testProject)
	path := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(path, []byte(project), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI runs the CLI in-process and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	t.Setenv("EMSPLOT_LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	code := execute(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestCLI_Help(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "--help")

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	for _, want := range []string{"emsplot", "validate", "run", "tables", "EMSPLOT_PARALLEL"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "version")
	if exitCode != ExitSuccess || !strings.Contains(stdout, "Version: dev") {
		t.Errorf("unexpected version output (exit %d): %s", exitCode, stdout)
	}
}

func TestCLI_Types(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "types")
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
	for _, want := range []string{"filter: all, date_after", "splitter: value", "transformer: cumulative, new, periods", "grouper: step_name"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("types output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCLI_Validate(t *testing.T) {
	tests := []struct {
		name     string
		replace  []string
		raw      string
		wantCode int
		wantErr  string
	}{
		{name: "valid", wantCode: ExitSuccess},
		{name: "parse error", raw: "process: [unclosed", wantCode: ExitParseError, wantErr: "Parse errors"},
		{name: "schema error", replace: []string{`schemaVersion: "1.0.0"`, `schemaVersion: "one"`}, wantCode: ExitValidationError, wantErr: "/schemaVersion"},
		{name: "unknown stage type", replace: []string{"type: cumulative", "type: median"}, wantCode: ExitValidationError, wantErr: `transformer "cum"`},
		{name: "undeclared splitter", replace: []string{"splitters: [type]", "splitters: [district]"}, wantCode: ExitValidationError, wantErr: `splitter "district" is not declared`},
		{name: "invalid column", replace: []string{"column: role", "column: age"}, wantCode: ExitValidationError, wantErr: "unknown column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProject(t, tt.replace...)
			if tt.raw != "" {
				if err := os.WriteFile(path, []byte(tt.raw), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			stdout, stderr, exitCode := runCLI(t, "validate", path)

			if exitCode != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\nstderr: %s", exitCode, tt.wantCode, stderr)
			}
			if tt.wantErr != "" && !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr does not contain %q:\n%s", tt.wantErr, stderr)
			}
			if tt.wantCode == ExitSuccess && !strings.Contains(stdout, "✓ Project is valid") {
				t.Errorf("unexpected stdout: %s", stdout)
			}
		})
	}
}

func TestCLI_RunText(t *testing.T) {
	stdout, stderr, exitCode := runCLI(t, "run", writeProject(t))

	if exitCode != ExitSuccess {
		t.Fatalf("exit code = %d\nstderr: %s", exitCode, stderr)
	}
	for _, want := range []string{`✓ Process "weekly" completed`, "Rows read: 5 (1 dropped)", "Entries kept: 3 of 4", "EMS", "Hospital", "New cases"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestCLI_RunJSON(t *testing.T) {
	for _, parallel := range []string{"0", "4"} {
		t.Run("parallel="+parallel, func(t *testing.T) {
			t.Setenv("EMSPLOT_PARALLEL", parallel)
			stdout, stderr, exitCode := runCLI(t, "run", "--output", "json", writeProject(t))
			if exitCode != ExitSuccess {
				t.Fatalf("exit code = %d\nstderr: %s", exitCode, stderr)
			}

			var report cli.RunReport
			if err := json.Unmarshal([]byte(stdout), &report); err != nil {
				t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
			}
			if len(report.Datasets) != 2 {
				t.Fatalf("got %d datasets, want 2", len(report.Datasets))
			}
			if report.Datasets[0].Title != "EMS" || len(report.Datasets[0].Series) != 2 {
				t.Errorf("unexpected first dataset: %+v", report.Datasets[0])
			}
			if report.Ingest.Dropped != 1 || report.Summary.EntriesKept != 3 {
				t.Errorf("unexpected counts: ingest=%+v summary=%+v", report.Ingest, report.Summary)
			}
		})
	}
}

func TestCLI_RunMissingColumn(t *testing.T) {
	path := writeProject(t, "location: Localité", "location: Commune")

	_, stderr, exitCode := runCLI(t, "run", path)

	if exitCode != ExitRuntimeError {
		t.Fatalf("exit code = %d, want %d", exitCode, ExitRuntimeError)
	}
	if !strings.Contains(stderr, `column "Commune" not found`) {
		t.Errorf("stderr does not name the missing column:\n%s", stderr)
	}
}

func TestCLI_RunUnknownTable(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "run", "--table", "Sheet9", writeProject(t))

	if exitCode != ExitValidationError {
		t.Fatalf("exit code = %d, want %d", exitCode, ExitValidationError)
	}
	if !strings.Contains(stderr, `table "Sheet9" not found`) {
		t.Errorf("unexpected stderr:\n%s", stderr)
	}
}

func TestCLI_RunBadOutputFormat(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "run", "--output", "xml", writeProject(t))
	if exitCode != ExitValidationError || !strings.Contains(stderr, "xml") {
		t.Errorf("exit code = %d, stderr = %s", exitCode, stderr)
	}
}

func TestCLI_Tables(t *testing.T) {
	dir := filepath.Dir(writeProject(t))

	stdout, _, exitCode := runCLI(t, "tables", filepath.Join(dir, "isolations.csv"))
	if exitCode != ExitSuccess {
		t.Fatalf("exit code = %d", exitCode)
	}
	if !strings.Contains(stdout, "isolations\n") || !strings.Contains(stdout, "  - Établissement") {
		t.Errorf("unexpected tables output:\n%s", stdout)
	}

	_, stderr, exitCode := runCLI(t, "tables", filepath.Join(dir, "data.mdb"))
	if exitCode != ExitRuntimeError || !strings.Contains(stderr, "unsupported file format") {
		t.Errorf("exit code = %d, stderr = %s", exitCode, stderr)
	}
}

func TestCLI_BadEnvironment(t *testing.T) {
	t.Setenv("EMSPLOT_LOG_FORMAT", "xml")
	var out, errOut bytes.Buffer
	if code := execute([]string{"version"}, &out, &errOut); code != ExitRuntimeError {
		t.Errorf("exit code = %d, want %d", code, ExitRuntimeError)
	}
	if !strings.Contains(errOut.String(), "unknown log format") {
		t.Errorf("unexpected stderr: %s", errOut.String())
	}
}
