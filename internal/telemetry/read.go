package telemetry

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadOptions selects and configures a reader for one input file.
type ReadOptions struct {
	Format string // "csv", "xlsx", "shp"; "" detects from the extension
	Schema Schema
	CSV    CSVOptions
	XLSX   XLSXOptions
}

// Read loads a fix table from path, dispatching on the configured or
// detected format.
func Read(path string, opts ReadOptions) (Table, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch format {
	case "csv", "tsv", "txt":
		csvOpts := opts.CSV
		if format == "tsv" && csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = '\t'
		}
		return ReadCSVFile(path, csvOpts)
	case "xlsx":
		return ReadXLSX(path, opts.XLSX)
	case "shp":
		return ReadShapefile(path, opts.Schema)
	default:
		return Table{}, eris.Errorf("telemetry: unsupported input format %q", format)
	}
}
