package report

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// Workbook bundles everything that goes into the XLSX report. Fit,
// Settlement, and Dispersals are optional; their sheets are written
// empty-but-headed when absent so downstream tooling sees a stable shape.
type Workbook struct {
	Samples    []model.RangeSample
	Fit        *model.FitResult
	Settlement *model.Settlement
	Dispersals []model.Dispersal
}

// ExportWorkbook writes the run results as a three-sheet XLSX workbook:
// Samples, Fit, and Dispersal.
func ExportWorkbook(wb Workbook, outputPath string) error {
	f := xlsx.NewFile()

	if err := writeSamplesSheet(f, wb.Samples); err != nil {
		return err
	}
	if err := writeFitSheet(f, wb.Fit, wb.Settlement); err != nil {
		return err
	}
	if err := writeDispersalSheet(f, wb.Dispersals); err != nil {
		return err
	}

	if err := f.Save(outputPath); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

func writeSamplesSheet(f *xlsx.File, samples []model.RangeSample) error {
	sheet, err := f.AddSheet("Samples")
	if err != nil {
		return eris.Wrap(err, "report: add samples sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"Individual", "Timestamp", "Step", "Area (km²)", "Days"} {
		header.AddCell().SetString(col)
	}
	for _, s := range samples {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Individual)
		row.AddCell().SetString(s.Time.Format(time.RFC3339))
		row.AddCell().SetInt(s.Step)
		row.AddCell().SetFloat(s.AreaKm2)
		row.AddCell().SetFloat(s.Days)
	}
	return nil
}

func writeFitSheet(f *xlsx.File, fit *model.FitResult, settlement *model.Settlement) error {
	sheet, err := f.AddSheet("Fit")
	if err != nil {
		return eris.Wrap(err, "report: add fit sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"Metric", "Value", "Std. Error"} {
		header.AddCell().SetString(col)
	}
	if fit == nil {
		return nil
	}

	param := func(name string, value, se float64) {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetFloat(value)
		row.AddCell().SetFloat(se)
	}
	metric := func(name string, value float64) {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetFloat(value)
	}

	param("Asymptote (km²)", fit.Asymptote, fit.AsymptoteSE)
	param("Midpoint (days)", fit.Midpoint, fit.MidpointSE)
	param("Scale (days)", fit.Scale, fit.ScaleSE)
	metric("Residual std. error", fit.ResidualSE)
	metric("R²", fit.RSquared)
	metric("Observations", float64(fit.N))
	metric("Iterations", float64(fit.Iterations))
	if settlement != nil {
		metric("Plateau (km²)", settlement.PlateauKm2)
		metric("Settlement (days)", settlement.SettlementDays)
	}
	return nil
}

func writeDispersalSheet(f *xlsx.File, dispersals []model.Dispersal) error {
	sheet, err := f.AddSheet("Dispersal")
	if err != nil {
		return eris.Wrap(err, "report: add dispersal sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"Individual", "Fixes", "Dispersal (km)"} {
		header.AddCell().SetString(col)
	}
	for _, d := range dispersals {
		row := sheet.AddRow()
		row.AddCell().SetString(d.Individual)
		row.AddCell().SetInt(d.Fixes)
		row.AddCell().SetFloat(d.DistanceKm)
	}
	return nil
}
