package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shpFix struct {
	id   string
	ts   string
	x, y float64
}

func writeTestShapefile(t *testing.T, fixes []shpFix) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixes.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	err = w.SetFields([]shp.Field{
		shp.StringField("ANIMAL_ID", 25),
		shp.StringField("ACQ_TIME", 25),
	})
	require.NoError(t, err)

	for _, f := range fixes {
		n := w.Write(&shp.Point{X: f.x, Y: f.y})
		require.NoError(t, w.WriteAttribute(int(n), 0, f.id))
		require.NoError(t, w.WriteAttribute(int(n), 1, f.ts))
	}
	require.NoError(t, w.Close())
	return path
}

func TestReadShapefile_Basic(t *testing.T) {
	path := writeTestShapefile(t, []shpFix{
		{"F01", "2024-03-01T12:00:00Z", 500000, 4700000},
		{"F01", "2024-03-02T12:00:00Z", 500100.25, 4700050.5},
		{"F02", "2024-03-01T06:00:00Z", 510000, 4710000},
	})

	schema := testSchema()
	tbl, err := ReadShapefile(path, schema)
	require.NoError(t, err)

	assert.Equal(t, []string{"animal_id", "acq_time", "utm_x", "utm_y"}, tbl.Header)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "F01", tbl.Rows[0][0])
	assert.Equal(t, "500100.25", tbl.Rows[1][2])
	assert.Equal(t, "4700050.5", tbl.Rows[1][3])
}

func TestReadShapefile_NormalizesLikeCSV(t *testing.T) {
	var fixes []shpFix
	base := 500000.0
	for i := 0; i < 5; i++ {
		fixes = append(fixes, shpFix{
			id: "F01",
			ts: time4(i),
			x:  base + float64(i)*250,
			y:  4700000 + float64(i%2)*250,
		})
	}

	path := writeTestShapefile(t, fixes)
	tbl, err := ReadShapefile(path, testSchema())
	require.NoError(t, err)

	set, err := Normalize(tbl, testSchema())
	require.NoError(t, err)
	require.Len(t, set.Tracks, 1)
	assert.Len(t, set.Tracks[0].Fixes, 5)
	assert.InDelta(t, 500250.0, set.Tracks[0].Fixes[1].X, 1e-9)
}

func time4(day int) string {
	return time.Date(2024, 3, 1+day, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func TestReadShapefile_MissingAttributeField(t *testing.T) {
	path := writeTestShapefile(t, []shpFix{{"F01", "2024-03-01T12:00:00Z", 1, 2}})

	schema := testSchema()
	schema.IDColumn = "TAG_CODE"

	_, err := ReadShapefile(path, schema)
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "TAG_CODE", se.Column)
}

func TestReadShapefile_MissingFile(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"), testSchema())
	require.Error(t, err)
}
