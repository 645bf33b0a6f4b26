package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// sampleColumns defines the ordered sample CSV output columns.
var sampleColumns = []string{
	"individual",
	"timestamp",
	"area_km2",
	"days",
}

// dispersalColumns defines the ordered dispersal CSV output columns.
var dispersalColumns = []string{
	"individual",
	"fixes",
	"dispersal_km",
}

// ExportSamplesCSV writes the pooled home-range samples as a CSV file,
// one row per incremental hull step.
func ExportSamplesCSV(samples []model.RangeSample, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "report: create samples csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(sampleColumns); err != nil {
		return eris.Wrap(err, "report: write samples header")
	}
	for _, s := range samples {
		row := []string{
			s.Individual,
			s.Time.Format(time.RFC3339),
			formatFloat(s.AreaKm2),
			formatFloat(s.Days),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write sample row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush samples csv")
}

// ExportDispersalCSV writes per-individual dispersal distances as a CSV file.
func ExportDispersalCSV(dispersals []model.Dispersal, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "report: create dispersal csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(dispersalColumns); err != nil {
		return eris.Wrap(err, "report: write dispersal header")
	}
	for _, d := range dispersals {
		row := []string{
			d.Individual,
			strconv.Itoa(d.Fixes),
			formatFloat(d.DistanceKm),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write dispersal row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush dispersal csv")
}

// formatFloat renders the shortest decimal representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
