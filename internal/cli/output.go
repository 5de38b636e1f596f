package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/emsplot/runtime/internal/ingest"
	"github.com/emsplot/runtime/pkg/pipeline"
	"github.com/emsplot/runtime/pkg/record"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	Format  string
}

// RunReport is the document written by the run command in JSON format.
type RunReport struct {
	Summary  pipeline.RunSummary `json:"summary"`
	Ingest   ingest.Stats        `json:"ingest"`
	Datasets []record.Dataset    `json:"datasets"`
}

// PrintRunResult displays the datasets of a run.
func PrintRunResult(w io.Writer, report RunReport, opts OutputOptions) error {
	if opts.Format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if !opts.Quiet {
		fmt.Fprintf(w, "✓ Process %q completed\n", report.Summary.ProcessName)
		fmt.Fprintf(w, "  Rows read: %d (%d dropped)\n", report.Ingest.Rows, report.Ingest.Dropped)
		fmt.Fprintf(w, "  Entries kept: %d of %d\n", report.Summary.EntriesKept, report.Summary.EntriesIn)
		fmt.Fprintf(w, "  Datasets: %d\n", len(report.Datasets))
		if opts.Verbose {
			fmt.Fprintf(w, "  Leaves: %d, series: %d\n", report.Summary.Leaves, report.Summary.Series)
			fmt.Fprintf(w, "  Duration: %v\n", report.Summary.Duration())
			fmt.Fprintf(w, "  Run ID: %s\n", report.Summary.RunID)
		}
		fmt.Fprintln(w)
	}
	return PrintDatasets(w, report.Datasets, opts.Verbose)
}

// PrintDatasets writes one table per dataset, one line per series.
// In verbose mode every point of every series is listed.
func PrintDatasets(w io.Writer, datasets []record.Dataset, verbose bool) error {
	for i, d := range datasets {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", d.Title)

		tw := tabwriter.NewWriter(w, 1, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  LABEL\tKIND\tPOINTS\tFROM\tTO\tMAX")
		for _, s := range d.Series {
			from, to := "-", "-"
			if s.Len() > 0 {
				from = s.X[0].Format(time.DateOnly)
				to = s.X[s.Len()-1].Format(time.DateOnly)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s\t%d\n", s.Label(), s.Kind, s.Len(), from, to, maxOf(s.Y))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if verbose {
			for _, s := range d.Series {
				printPoints(w, s)
			}
		}
	}
	return nil
}

func printPoints(w io.Writer, s record.Series) {
	fmt.Fprintf(w, "  %s (%s):\n", s.Label(), s.Report)
	var sb strings.Builder
	for i := range s.X {
		fmt.Fprintf(&sb, "    %s %d\n", s.X[i].Format(time.DateOnly), s.Y[i])
	}
	fmt.Fprint(w, sb.String())
}

func maxOf(ys []int) int {
	m := 0
	for _, y := range ys {
		m = max(m, y)
	}
	return m
}

// PrintConfigSummary prints the process name and stage counts of a project.
func PrintConfigSummary(w io.Writer, project *pipeline.Project) {
	if project == nil {
		return
	}
	def := project.Process
	fmt.Fprintf(w, "  Process: %s\n", def.Name)
	fmt.Fprintf(w, "  Data: %s\n", project.Data.Path)
	if project.Data.Table != "" {
		fmt.Fprintf(w, "  Table: %s\n", project.Data.Table)
	}
	fmt.Fprintf(w, "  Stages: %d filter(s), %d splitter(s), %d transformer(s), %d grouper(s)\n",
		len(def.Filters), len(def.Splitters), len(def.Transformers), len(def.Groupers))
}

// PrintTables lists the tables of a source file with their headers.
func PrintTables(w io.Writer, l ingest.Loader) error {
	for _, name := range l.Tables() {
		headers, err := l.Headers(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", name)
		for _, h := range headers {
			fmt.Fprintf(w, "  - %s\n", h)
		}
	}
	return nil
}
