// Package pipeline provides public configuration and result types for
// emsplot processes. A Definition describes the fixed-shape chain of
// filters, splitters, transformers and groupers; a DataSource describes
// where the entries come from and how their columns are named.
package pipeline

import (
	"time"

	"github.com/emsplot/runtime/pkg/record"
)

// Stage kinds.
const (
	StageFilter      = "filter"
	StageSplitter    = "splitter"
	StageTransformer = "transformer"
	StageGrouper     = "grouper"
)

// Definition is the declarative form of a process.
// Stage lists are ordered; names must be unique within a list.
type Definition struct {
	// Name is the human-readable name of the process
	Name string `json:"name"`

	// Filters are applied to each entry; an entry is kept when all match
	Filters []StageConfig `json:"filters,omitempty"`

	// Splitters partition the filtered batch, applied one after the other
	Splitters []StageConfig `json:"splitters,omitempty"`

	// Transformers aggregate every leaf batch into one series each
	Transformers []StageConfig `json:"transformers,omitempty"`

	// Groupers assemble the series into datasets
	Groupers []StageConfig `json:"groupers,omitempty"`
}

// StageConfig configures one stage instance.
type StageConfig struct {
	// Name identifies the stage; splitter and transformer names end up in reports
	Name string `json:"name"`

	// Type selects the registered implementation (e.g. "include", "value", "new", "step_name")
	Type string `json:"type"`

	// Config holds the remaining type-specific parameters
	Config map[string]interface{} `json:"config,omitempty"`
}

// String returns a compact description used in error messages.
func (c StageConfig) String() string {
	return c.Name + " (" + c.Type + ")"
}

// DataSource describes the table entries are read from.
type DataSource struct {
	// Path is the file to load
	Path string `json:"path" validate:"required"`

	// Table is the table or sheet name inside the file; empty selects the first one
	Table string `json:"table,omitempty"`

	// ExcelStartYear is the spreadsheet epoch used for serial dates
	ExcelStartYear int `json:"excelStartYear" validate:"oneof=1900 1904"`

	// Columns maps entry fields to source column names
	Columns Columns `json:"columns"`

	// DateFormats are tried in order when a date is not ISO-8601
	DateFormats []string `json:"dateFormats,omitempty" validate:"dive,required"`

	// Districts maps a location to its district
	Districts map[string]string `json:"districts,omitempty"`
}

// DateParser returns the parser matching the data source's date settings.
func (d DataSource) DateParser() record.DateParser {
	return record.DateParser{EpochYear: d.ExcelStartYear, Formats: d.DateFormats}
}

// Columns maps each entry field to the header of the source column holding it.
type Columns struct {
	DateStart       string `json:"dateStart" validate:"required"`
	DateEnd         string `json:"dateEnd" validate:"required"`
	Role            string `json:"role" validate:"required"`
	Institution     string `json:"institution" validate:"required"`
	InstitutionType string `json:"institutionType" validate:"required"`
	Location        string `json:"location" validate:"required"`
}

// Project is a complete configuration: a data source and the process to run on it.
type Project struct {
	// SchemaVersion is the configuration format version
	SchemaVersion string `json:"schemaVersion"`

	// Data describes where entries come from
	Data DataSource `json:"data"`

	// Process is the pipeline definition
	Process Definition `json:"process"`
}

// RunSummary reports what a process run did.
type RunSummary struct {
	// RunID uniquely identifies the run in logs
	RunID string `json:"runId"`

	// ProcessName is the name of the executed process
	ProcessName string `json:"processName"`

	// StartedAt is when the run started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when the run completed
	CompletedAt time.Time `json:"completedAt"`

	// EntriesIn is the number of entries handed to the process
	EntriesIn int `json:"entriesIn"`

	// EntriesKept is the number of entries that passed all filters
	EntriesKept int `json:"entriesKept"`

	// Leaves is the number of batches produced by the splitters
	Leaves int `json:"leaves"`

	// Series is the number of series produced by the transformers
	Series int `json:"series"`

	// Datasets is the number of datasets produced by the groupers
	Datasets int `json:"datasets"`
}

// Duration returns the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}
