package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/analysis"
	"github.com/tamarack-wildlife/settle-cli/internal/model"
	"github.com/tamarack-wildlife/settle-cli/internal/report"
	"github.com/tamarack-wildlife/settle-cli/internal/store"
	"github.com/tamarack-wildlife/settle-cli/internal/telemetry"
)

var (
	runInput      string
	runCRS        string
	runGridPoints int
	runWorkers    int
	runOutDir     string
	runFormats    []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the settlement analysis over a fix table",
	Long: `Normalizes a telemetry fix table, grows each individual's cumulative
home range, fits the pooled logistic curve, and derives the settlement
statistic. Results are persisted to the configured store and rendered
into the configured artifact formats.

Examples:
  # CSV with default column bindings
  settle-cli run --input fixes.csv --crs EPSG:32633

  # Study profile carries the bindings; write chart and workbook
  settle-cli --profile lynx.yaml run --input fixes.xlsx --formats html,xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// Flags override config.
		if runCRS != "" {
			cfg.Input.CRS = runCRS
		}
		if runGridPoints > 0 {
			cfg.Analysis.GridPoints = runGridPoints
		}
		if runWorkers > 0 {
			cfg.Analysis.Workers = runWorkers
		}
		if runOutDir != "" {
			cfg.Output.Dir = runOutDir
		}
		if len(runFormats) > 0 {
			cfg.Output.Formats = runFormats
		}

		if err := cfg.Validate("analysis"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "run: migrate store")
		}

		run, err := st.CreateRun(ctx, model.RunParams{
			Source:     runInput,
			CRS:        cfg.Input.CRS,
			GridPoints: cfg.Analysis.GridPoints,
			Workers:    cfg.Analysis.Workers,
		})
		if err != nil {
			return eris.Wrap(err, "run: create run")
		}

		set, err := loadFixes(runInput, model.MinTrackFixes)
		if err != nil {
			return failRun(ctx, st, run.ID, err)
		}
		zap.L().Info("fix table normalized",
			zap.String("source", runInput),
			zap.Int("rows", set.RawRows),
			zap.Int("individuals", len(set.Tracks)),
			zap.Int("dropped_individuals", set.DroppedIndividuals),
			zap.Int("dropped_fixes", set.DroppedFixes),
		)

		res, err := analysis.Run(ctx, set, analysis.Options{
			Workers:       cfg.Analysis.Workers,
			GridPoints:    cfg.Analysis.GridPoints,
			MaxIterations: cfg.Fit.MaxIterations,
			Progress:      analysis.NewLogProgress(),
		})
		if err != nil {
			return failRun(ctx, st, run.ID, err)
		}

		if res.NoData {
			if err := st.CompleteRun(ctx, run.ID, model.RunStatusNoData, &model.RunResult{}); err != nil {
				return eris.Wrap(err, "run: complete run")
			}
			zap.L().Warn("no individual carried enough fixes; nothing to analyze",
				zap.String("run_id", run.ID))
			return nil
		}

		if err := st.SaveSamples(ctx, run.ID, res.Samples); err != nil {
			return failRun(ctx, st, run.ID, err)
		}
		if err := st.SaveFit(ctx, run.ID, &res.Fit, &res.Settlement); err != nil {
			return failRun(ctx, st, run.ID, err)
		}

		result := &model.RunResult{
			Individuals: res.Individuals,
			Fixes:       res.Fixes,
			Samples:     len(res.Samples),
			Fit:         &res.Fit,
			Settlement:  &res.Settlement,
		}
		if err := st.CompleteRun(ctx, run.ID, model.RunStatusComplete, result); err != nil {
			return eris.Wrap(err, "run: complete run")
		}

		if err := writeArtifacts(run.ID, res); err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.Int("individuals", res.Individuals),
			zap.Float64("settlement_days", res.Settlement.SettlementDays),
			zap.Float64("plateau_km2", res.Settlement.PlateauKm2),
		)

		// Print the stored run to stdout.
		final, err := st.GetRun(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "run: reload run")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "fix table path: csv, xlsx, or shp (required)")
	runCmd.Flags().StringVar(&runCRS, "crs", "", "EPSG identifier of the input coordinates (overrides config)")
	runCmd.Flags().IntVar(&runGridPoints, "grid-points", 0, "prediction grid density (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel home-range builders (overrides config)")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "artifact output directory (overrides config)")
	runCmd.Flags().StringSliceVar(&runFormats, "formats", nil, "artifact formats: html, png, csv, xlsx, shp (overrides config)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

// loadFixes reads the input table with the configured bindings and
// normalizes it into tracks carrying at least minFixes fixes.
func loadFixes(path string, minFixes int) (*telemetry.FixSet, error) {
	schema := telemetry.Schema{
		IDColumn:   cfg.Input.IDColumn,
		TimeColumn: cfg.Input.TimeColumn,
		XColumn:    cfg.Input.XColumn,
		YColumn:    cfg.Input.YColumn,
		TimeLayout: cfg.Input.TimeFormat,
		CRS:        cfg.Input.CRS,
	}

	tbl, err := telemetry.Read(path, telemetry.ReadOptions{
		Format: cfg.Input.Format,
		Schema: schema,
		CSV:    telemetry.CSVOptions{Encoding: cfg.Input.Encoding},
	})
	if err != nil {
		return nil, err
	}

	return telemetry.Tracks(tbl, schema, minFixes)
}

// failRun records err against the run before surfacing it as the exit
// status.
func failRun(ctx context.Context, st store.Store, runID string, err error) error {
	if dbErr := st.FailRun(ctx, runID, err.Error()); dbErr != nil {
		zap.L().Error("record run failure",
			zap.String("run_id", runID),
			zap.Error(dbErr),
		)
	}
	return err
}

// writeArtifacts renders the configured report formats into the output
// directory.
func writeArtifacts(runID string, res *analysis.Result) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return eris.Wrap(err, "run: create output dir")
	}

	chart := report.CurveChart{
		Subtitle:   fmt.Sprintf("run %s", runID),
		Samples:    res.Samples,
		Curve:      res.Curve,
		Settlement: &res.Settlement,
	}

	for _, format := range cfg.Output.Formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(format) {
		case "html":
			path = filepath.Join(cfg.Output.Dir, "settlement_curve.html")
			err = report.WriteCurveHTML(chart, path)
		case "png":
			path = filepath.Join(cfg.Output.Dir, "settlement_curve.png")
			err = report.WriteCurvePNG(chart, path)
		case "csv":
			path = filepath.Join(cfg.Output.Dir, "range_samples.csv")
			err = report.ExportSamplesCSV(res.Samples, path)
		case "xlsx":
			path = filepath.Join(cfg.Output.Dir, "settlement.xlsx")
			err = report.ExportWorkbook(report.Workbook{
				Samples:    res.Samples,
				Fit:        &res.Fit,
				Settlement: &res.Settlement,
			}, path)
		case "shp":
			path = filepath.Join(cfg.Output.Dir, "home_ranges.shp")
			err = report.ExportRangeShapefile(res.Polygons, path)
		default:
			return eris.Errorf("run: unsupported output format %q", format)
		}
		if err != nil {
			return err
		}
		zap.L().Info("artifact written",
			zap.String("format", format),
			zap.String("path", path),
		)
	}
	return nil
}
