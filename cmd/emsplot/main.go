// Package main provides the CLI entry point for the emsplot runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/emsplot/runtime/internal/cli"
	"github.com/emsplot/runtime/internal/config"
	"github.com/emsplot/runtime/internal/errhandling"
	"github.com/emsplot/runtime/internal/ingest"
	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/internal/registry"
	"github.com/emsplot/runtime/internal/runtime"
	"github.com/emsplot/runtime/pkg/pipeline"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// settings are read from EMSPLOT_* environment variables.
type settings struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile   string `envconfig:"LOG_FILE"`
	Parallel  int    `envconfig:"PARALLEL" default:"0"`
}

// options holds the flags and environment of one invocation.
type options struct {
	verbose  bool
	quiet    bool
	format   string
	table    string
	parallel int

	env    settings
	stdout io.Writer
	stderr io.Writer
}

// exitError carries the exit code of a command that already reported its failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	defer logger.CloseLogFile()

	cmd := newRootCmd(&options{stdout: stdout, stderr: stderr})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitRuntimeError
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "emsplot",
		Short: "emsplot - Isolation data processing runtime",
		Long: `emsplot turns tables of quarantine and isolation records into
plot-ready datasets.

A project file (JSON/YAML) names the source table, maps its columns and
declares a process: Filter → Split → Transform → Group.

Examples:
  # Validate a project file
  emsplot validate project.yaml

  # Run a process and print the datasets
  emsplot run project.yaml

  # Emit the datasets as JSON
  emsplot run --output json project.yaml

  # List the tables of a workbook
  emsplot tables isolations.xlsx

Environment:
  EMSPLOT_LOG_LEVEL   debug, info, warn or error (default info)
  EMSPLOT_LOG_FORMAT  json or human (default json)
  EMSPLOT_LOG_FILE    also write JSON logs to this file
  EMSPLOT_PARALLEL    number of concurrent transforms (default 0, sequential)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return o.setup()
		},
	}

	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&o.quiet, "quiet", "q", false, "Suppress non-error output")

	run := &cobra.Command{
		Use:   "run <project-file>",
		Short: "Run a process on its data source",
		Long: `Run the process declared in a project file.

The project is validated first. Rows that cannot become entries are
dropped and counted; a configured column missing from the source table
stops the run.

Exit codes:
  0 - Process completed
  1 - Validation errors
  2 - Parse errors
  3 - Data or runtime errors

Examples:
  emsplot run project.yaml
  emsplot run --table Isolations --output json project.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return o.runProcess(args[0])
		},
	}
	run.Flags().StringVarP(&o.format, "output", "o", cli.FormatText, "Output format: text or json")
	run.Flags().StringVar(&o.table, "table", "", "Table to read, overriding the project file")
	run.Flags().IntVar(&o.parallel, "parallel", -1, "Concurrent transforms (0 for sequential, default from EMSPLOT_PARALLEL)")

	root.AddCommand(
		&cobra.Command{
			Use:   "validate <project-file>",
			Short: "Validate a project file",
			Long: `Validate a project file against the schema and build its process.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Project is valid
  1 - Validation errors (schema violations, unknown stage types, undeclared names)
  2 - Parse errors (invalid JSON/YAML syntax)`,
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return o.runValidate(args[0])
			},
		},
		run,
		&cobra.Command{
			Use:   "tables <data-file>",
			Short: "List the tables of a data file and their columns",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return o.runTables(args[0])
			},
		},
		&cobra.Command{
			Use:   "types",
			Short: "List the registered stage types",
			Args:  cobra.NoArgs,
			Run: func(_ *cobra.Command, _ []string) {
				o.runTypes()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Long:  "Print version, commit hash, and build date information.",
			Run: func(_ *cobra.Command, _ []string) {
				fmt.Fprintf(o.stdout, "Version: %s\n", version)
				fmt.Fprintf(o.stdout, "Commit: %s\n", commit)
				fmt.Fprintf(o.stdout, "Build Date: %s\n", buildDate)
			},
		},
	)
	return root
}

// setup reads the environment and configures logging.
func (o *options) setup() error {
	if err := envconfig.Process("emsplot", &o.env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	level, err := logger.ParseLevel(o.env.LogLevel)
	if err != nil {
		return err
	}
	if o.verbose {
		level = slog.LevelDebug
	} else if o.quiet {
		level = slog.LevelError
	}
	format, err := logger.ParseFormat(o.env.LogFormat)
	if err != nil {
		return err
	}

	if o.env.LogFile != "" {
		return logger.SetLogFile(o.env.LogFile, level, format)
	}
	logger.SetLevelAndFormat(level, format)
	return nil
}

// loadProject parses, validates and builds a project. Failures are reported
// and turned into an exitError.
func (o *options) loadProject(path string) (*pipeline.Project, *runtime.Process, error) {
	result := config.ParseConfig(path)
	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(o.stderr, result.ParseErrors, o.verbose)
		return nil, nil, &exitError{code: ExitParseError}
	}
	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(o.stderr, result.ValidationErrors, o.verbose, o.quiet)
		return nil, nil, &exitError{code: ExitValidationError}
	}

	project, err := config.Load(path)
	if err != nil {
		cli.PrintError(o.stderr, err)
		return nil, nil, &exitError{code: ExitValidationError}
	}

	var opts []runtime.Option
	if workers := o.workers(); workers > 0 {
		opts = append(opts, runtime.WithParallel(workers))
	}
	process, err := runtime.NewProcess(project.Process, project.Data.DateParser(), opts...)
	if err != nil {
		cli.PrintError(o.stderr, err)
		return nil, nil, &exitError{code: ExitValidationError}
	}
	return project, process, nil
}

// workers resolves the --parallel flag against EMSPLOT_PARALLEL.
func (o *options) workers() int {
	if o.parallel >= 0 {
		return o.parallel
	}
	return o.env.Parallel
}

func (o *options) runValidate(path string) error {
	if !o.quiet {
		fmt.Fprintf(o.stdout, "Validating project: %s\n", path)
	}

	project, _, err := o.loadProject(path)
	if err != nil {
		return err
	}

	if !o.quiet {
		fmt.Fprintf(o.stdout, "✓ Project is valid (format: %s)\n", config.DetectFormat(path))
		if o.verbose {
			cli.PrintConfigSummary(o.stdout, project)
		}
	}
	return nil
}

func (o *options) runProcess(path string) error {
	if o.format != cli.FormatText && o.format != cli.FormatJSON {
		fmt.Fprintf(o.stderr, "✗ Unknown output format %q (use text or json)\n", o.format)
		return &exitError{code: ExitValidationError}
	}

	project, process, err := o.loadProject(path)
	if err != nil {
		return err
	}

	table := project.Data.Table
	if o.table != "" {
		table = o.table
	}
	source, err := ingest.LoadTable(project.Data.Path, table)
	if err != nil {
		return o.fail(err)
	}
	batch, stats, err := ingest.BuildEntries(source, project.Data.Columns, project.Data.DateParser(), project.Data.Districts)
	if err != nil {
		return o.fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	datasets, summary, err := process.RunWithSummary(ctx, batch)
	if err != nil {
		return o.fail(err)
	}

	report := cli.RunReport{Summary: summary, Ingest: stats, Datasets: datasets}
	if err := cli.PrintRunResult(o.stdout, report, cli.OutputOptions{
		Verbose: o.verbose,
		Quiet:   o.quiet,
		Format:  o.format,
	}); err != nil {
		return o.fail(err)
	}
	return nil
}

func (o *options) runTables(path string) error {
	l, err := ingest.Open(path)
	if err != nil {
		return o.fail(err)
	}
	defer l.Close()

	if err := cli.PrintTables(o.stdout, l); err != nil {
		return o.fail(err)
	}
	return nil
}

func (o *options) runTypes() {
	for _, stage := range []string{pipeline.StageFilter, pipeline.StageSplitter, pipeline.StageTransformer, pipeline.StageGrouper} {
		fmt.Fprintf(o.stdout, "%s: %s\n", stage, strings.Join(registry.ListTypes(stage), ", "))
	}
}

// fail reports err and maps its category to an exit code.
func (o *options) fail(err error) error {
	cli.PrintError(o.stderr, err)
	if errhandling.IsConfigError(err) {
		return &exitError{code: ExitValidationError}
	}
	return &exitError{code: ExitRuntimeError}
}
