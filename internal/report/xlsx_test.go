package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

func testWorkbook() Workbook {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return Workbook{
		Samples: []model.RangeSample{
			{Individual: "F01", Time: base, Step: 2, AreaKm2: 0, Days: 0},
			{Individual: "F01", Time: base.AddDate(0, 0, 3), Step: 3, AreaKm2: 0.815, Days: 3},
		},
		Fit: &model.FitResult{
			Asymptote: 2.052, Midpoint: 8.1, Scale: 2.4,
			AsymptoteSE: 0.03, MidpointSE: 0.2, ScaleSE: 0.15,
			ResidualSE: 0.02, RSquared: 0.998, N: 42, Iterations: 17,
		},
		Settlement: &model.Settlement{PlateauKm2: 1.95, SettlementDays: 15.36},
		Dispersals: []model.Dispersal{
			{Individual: "F01", Fixes: 12, DistanceKm: 4.25},
		},
	}
}

func sheetStrings(t *testing.T, sheet *xlsx.Sheet) [][]string {
	t.Helper()
	var rows [][]string
	for _, row := range sheet.Rows {
		var cells []string
		for _, cell := range row.Cells {
			cells = append(cells, cell.String())
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestExportWorkbook_Sheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportWorkbook(testWorkbook(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Contains(t, f.Sheet, "Samples")
	assert.Contains(t, f.Sheet, "Fit")
	assert.Contains(t, f.Sheet, "Dispersal")
}

func TestExportWorkbook_SamplesSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportWorkbook(testWorkbook(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	rows := sheetStrings(t, f.Sheet["Samples"])
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Individual", "Timestamp", "Step", "Area (km²)", "Days"}, rows[0])
	assert.Equal(t, []string{"F01", "2024-03-01T12:00:00Z", "2", "0", "0"}, rows[1])
	assert.Equal(t, []string{"F01", "2024-03-04T12:00:00Z", "3", "0.815", "3"}, rows[2])
}

func TestExportWorkbook_FitSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportWorkbook(testWorkbook(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	rows := sheetStrings(t, f.Sheet["Fit"])
	require.Len(t, rows, 10)
	assert.Equal(t, []string{"Asymptote (km²)", "2.052", "0.03"}, rows[1])
	assert.Equal(t, []string{"Midpoint (days)", "8.1", "0.2"}, rows[2])
	assert.Equal(t, []string{"Scale (days)", "2.4", "0.15"}, rows[3])
	assert.Equal(t, []string{"Plateau (km²)", "1.95"}, rows[8])
	assert.Equal(t, []string{"Settlement (days)", "15.36"}, rows[9])
}

func TestExportWorkbook_DispersalSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportWorkbook(testWorkbook(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	rows := sheetStrings(t, f.Sheet["Dispersal"])
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"F01", "12", "4.25"}, rows[1])
}

func TestExportWorkbook_EmptyKeepsHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportWorkbook(Workbook{}, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	for _, name := range []string{"Samples", "Fit", "Dispersal"} {
		rows := sheetStrings(t, f.Sheet[name])
		require.Len(t, rows, 1, "sheet %s", name)
	}
}
