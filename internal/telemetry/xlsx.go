package telemetry

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX fix reader.
type XLSXOptions struct {
	Sheet string // sheet name; "" reads the first sheet
}

// ReadXLSX parses a fix table from an XLSX workbook. The first row of the
// selected sheet is the header.
func ReadXLSX(path string, opts XLSXOptions) (Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Table{}, eris.Wrap(err, "telemetry: open xlsx")
	}

	var sheet *xlsx.Sheet
	if opts.Sheet != "" {
		s, ok := f.Sheet[opts.Sheet]
		if !ok {
			return Table{}, eris.Errorf("telemetry: sheet %q not found", opts.Sheet)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return Table{}, &SchemaError{Reason: "workbook has no sheets"}
		}
		sheet = f.Sheets[0]
	}

	var tbl Table
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
		}
		if i == 0 {
			tbl.Header = cells
			continue
		}
		if blankRow(cells) {
			continue
		}
		tbl.Rows = append(tbl.Rows, cells)
	}

	if tbl.Header == nil {
		return Table{}, &SchemaError{Reason: "empty table"}
	}

	tbl.Source = path
	return tbl, nil
}

// blankRow reports whether every cell is empty. Trailing empty rows are
// common in hand-edited workbooks.
func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
