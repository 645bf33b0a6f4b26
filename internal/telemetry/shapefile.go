package telemetry

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// ReadShapefile parses a point shapefile of fixes. Individual id and
// timestamp come from the named DBF attribute fields; coordinates come
// from the point geometry. The result uses the schema's column names, so
// it normalizes exactly like a CSV table.
func ReadShapefile(path string, schema Schema) (Table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return Table{}, eris.Wrap(err, "telemetry: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	idIdx := dbfFieldIndex(reader, schema.IDColumn)
	if idIdx < 0 {
		return Table{}, &SchemaError{Column: schema.IDColumn, Reason: "field not found in shapefile attributes"}
	}
	timeIdx := dbfFieldIndex(reader, schema.TimeColumn)
	if timeIdx < 0 {
		return Table{}, &SchemaError{Column: schema.TimeColumn, Reason: "field not found in shapefile attributes"}
	}

	tbl := Table{
		Header: []string{schema.IDColumn, schema.TimeColumn, schema.XColumn, schema.YColumn},
		Source: path,
	}

	for reader.Next() {
		n, shape := reader.Shape()
		if shape == nil {
			continue
		}

		var x, y float64
		switch pt := shape.(type) {
		case *shp.Point:
			x, y = pt.X, pt.Y
		case *shp.PointM:
			x, y = pt.X, pt.Y
		case *shp.PointZ:
			x, y = pt.X, pt.Y
		default:
			return Table{}, &SchemaError{Row: n + 1, Reason: "not a point shapefile"}
		}

		tbl.Rows = append(tbl.Rows, []string{
			dbfValue(reader.Attribute(idIdx)),
			dbfValue(reader.Attribute(timeIdx)),
			strconv.FormatFloat(x, 'g', -1, 64),
			strconv.FormatFloat(y, 'g', -1, 64),
		})
	}
	if err := reader.Err(); err != nil {
		return Table{}, eris.Wrap(err, "telemetry: read shapefile")
	}

	return tbl, nil
}

// dbfFieldIndex returns the index of a named DBF field, or -1 if not found.
func dbfFieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// dbfValue strips DBF padding. Fixed-width attribute fields come back
// padded with spaces or NULs depending on the writer.
func dbfValue(s string) string {
	return strings.Trim(s, " \x00")
}
