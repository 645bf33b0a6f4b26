package telemetry

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV fix reader.
type CSVOptions struct {
	Delimiter rune   // default ','
	Comment   rune   // comment character (0 = none)
	Encoding  string // IANA charset name; "" or "utf-8" reads bytes as-is
}

// ReadCSV parses a delimited fix table from r. The first record is the
// header; remaining records are data rows with fields trimmed.
func ReadCSV(r io.Reader, opts CSVOptions) (Table, error) {
	if opts.Encoding != "" && !strings.EqualFold(opts.Encoding, "utf-8") {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return Table{}, eris.Wrapf(err, "telemetry: unsupported charset %q", opts.Encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields

	var tbl Table
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, eris.Wrap(err, "telemetry: read csv row")
		}

		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}

		if first {
			first = false
			tbl.Header = record
			continue
		}
		tbl.Rows = append(tbl.Rows, record)
	}

	if first {
		return Table{}, &SchemaError{Reason: "empty table"}
	}

	return tbl, nil
}

// ReadCSVFile parses a delimited fix table from a file on disk.
func ReadCSVFile(path string, opts CSVOptions) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "telemetry: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	tbl, err := ReadCSV(f, opts)
	if err != nil {
		return Table{}, err
	}
	tbl.Source = path
	return tbl, nil
}
