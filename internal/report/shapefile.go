package report

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// ExportRangeShapefile writes each individual's full-track minimum convex
// polygon as one shapefile record with id, fix count, and area attributes.
// Outer rings are written clockwise per the ESRI shapefile convention.
func ExportRangeShapefile(polygons []model.RangePolygon, outputPath string) error {
	w, err := shp.Create(outputPath, shp.POLYGON)
	if err != nil {
		return eris.Wrap(err, "report: create shapefile")
	}
	defer w.Close()

	err = w.SetFields([]shp.Field{
		shp.StringField("INDIVIDUAL", 32),
		shp.NumberField("FIXES", 10),
		shp.FloatField("AREA_KM2", 19, 6),
	})
	if err != nil {
		return eris.Wrap(err, "report: set shapefile fields")
	}

	for _, p := range polygons {
		if len(p.Ring) < 4 {
			continue
		}
		ring := esriRing(p.Ring)
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))

		n := w.Write(&poly)
		if err := w.WriteAttribute(int(n), 0, p.Individual); err != nil {
			return eris.Wrap(err, "report: write individual attribute")
		}
		if err := w.WriteAttribute(int(n), 1, p.Fixes); err != nil {
			return eris.Wrap(err, "report: write fixes attribute")
		}
		if err := w.WriteAttribute(int(n), 2, p.AreaKm2); err != nil {
			return eris.Wrap(err, "report: write area attribute")
		}
	}

	if err := w.Close(); err != nil {
		return eris.Wrap(err, "report: close shapefile")
	}
	return nil
}

// esriRing reverses a closed counter-clockwise ring into the clockwise
// order shapefiles use for outer rings.
func esriRing(ring [][2]float64) []shp.Point {
	pts := make([]shp.Point, len(ring))
	for i, c := range ring {
		pts[len(ring)-1-i] = shp.Point{X: c[0], Y: c[1]}
	}
	return pts
}
