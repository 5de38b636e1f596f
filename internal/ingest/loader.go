package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/emsplot/runtime/internal/errhandling"
)

// Errors returned by loaders.
var (
	// ErrUnsupportedFormat is returned when no loader handles a file extension
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrTableNotFound is returned when a requested table does not exist
	ErrTableNotFound = errors.New("table not found")

	// ErrNoTables is returned when a file holds no table at all
	ErrNoTables = errors.New("file contains no table")
)

// Loader reads the tables of one source file.
type Loader interface {
	// Tables lists the table names, in file order.
	Tables() []string
	// Headers returns the column names of a table.
	Headers(table string) ([]string, error)
	// Load returns the headers and rows of a table.
	Load(table string) (Table, error)
	// Close releases the file.
	Close() error
}

// Opener opens a file with a specific loader.
type Opener func(path string) (Loader, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

func init() {
	Register(openCSV, ".csv")
	Register(openXLSX, ".xlsx", ".xlsm")
}

// Register associates an opener with one or more file extensions
// (lowercase, with the leading dot).
func Register(o Opener, exts ...string) {
	openersMu.Lock()
	defer openersMu.Unlock()
	for _, ext := range exts {
		openers[strings.ToLower(ext)] = o
	}
}

// Extensions returns the supported file extensions, sorted.
func Extensions() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	exts := make([]string, 0, len(openers))
	for ext := range openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open returns a loader for path chosen by its extension.
func Open(path string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	openersMu.RLock()
	o, ok := openers[ext]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(Extensions(), ", "))
	}
	return o(path)
}

// LoadTable opens path and loads one table. An empty name selects the first table.
func LoadTable(path, table string) (Table, error) {
	l, err := Open(path)
	if err != nil {
		return Table{}, err
	}
	defer l.Close()

	if table == "" {
		tables := l.Tables()
		if len(tables) == 0 {
			return Table{}, fmt.Errorf("%s: %w", path, ErrNoTables)
		}
		table = tables[0]
	}
	return l.Load(table)
}

func tableNotFound(name string, available []string) error {
	msg := fmt.Sprintf("table %q not found", name)
	if len(available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(available, ", "))
	}
	return errhandling.NewConfigError("data", "", "", msg, ErrTableNotFound)
}
