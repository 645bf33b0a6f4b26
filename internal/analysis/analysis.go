// Package analysis runs the settlement pipeline end to end: normalized
// fixes in, cumulative home-range samples, pooled logistic fit, and the
// settlement statistic out. The computation is a pure batch function;
// persistence and rendering live elsewhere.
package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamarack-wildlife/settle-cli/internal/homerange"
	"github.com/tamarack-wildlife/settle-cli/internal/model"
	"github.com/tamarack-wildlife/settle-cli/internal/settle"
	"github.com/tamarack-wildlife/settle-cli/internal/telemetry"
)

// DefaultWorkers bounds the home-range fan-out when the caller does not
// choose a level.
const DefaultWorkers = 4

// Options tunes a run. Zero values take defaults.
type Options struct {
	Workers         int      // parallel home-range builders
	GridPoints      int      // prediction grid density
	MaxIterations   int      // fit iteration cap
	PlateauFraction float64  // settlement threshold as a fraction of the asymptote
	Progress        Progress // advisory; nil means no reporting
}

// Result is everything a run produces. When NoData is set, nothing else
// is populated: no individual had enough fixes, and no geometry or
// fitting was attempted.
type Result struct {
	NoData bool

	Individuals int
	Fixes       int

	Samples    []model.RangeSample
	Polygons   []model.RangePolygon
	Fit        model.FitResult
	Curve      []model.CurvePoint
	Settlement model.Settlement
}

// Run executes the pipeline over a normalized fix set. Home ranges for
// independent individuals grow in parallel; the pooled observation set is
// reassembled in (individual, step) order before the fit, so results are
// identical at any worker count. Fit failures surface as
// *settle.ConvergenceError.
func Run(ctx context.Context, set *telemetry.FixSet, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "analysis.pipeline"))

	progress := opts.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	defer progress.Close()

	if set == nil || set.Empty() {
		log.Info("no eligible individuals; skipping analysis")
		return &Result{NoData: true}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	progress.Start(len(set.Tracks))
	log.Info("growing home ranges",
		zap.Int("individuals", len(set.Tracks)),
		zap.Int("fixes", set.Fixes()),
		zap.Int("workers", workers))

	builder := homerange.NewBuilder(set.SRID)

	// Slots are indexed by track, so parallel completion order cannot
	// change the pooled ordering.
	perTrack := make([][]model.RangeSample, len(set.Tracks))
	perPoly := make([]*model.RangePolygon, len(set.Tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, track := range set.Tracks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perTrack[i] = builder.Build(track)
			if poly, ok := builder.FinalPolygon(track); ok {
				perPoly[i] = &poly
			}
			progress.Step(track.Individual, len(perTrack[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analysis: grow home ranges")
	}

	res := &Result{
		Individuals: len(set.Tracks),
		Fixes:       set.Fixes(),
	}
	for i := range set.Tracks {
		res.Samples = append(res.Samples, perTrack[i]...)
		if perPoly[i] != nil {
			res.Polygons = append(res.Polygons, *perPoly[i])
		}
	}

	fitRes, err := settle.Fit(res.Samples, settle.Options{
		GridPoints:      opts.GridPoints,
		MaxIterations:   opts.MaxIterations,
		PlateauFraction: opts.PlateauFraction,
	})
	if err != nil {
		return nil, err
	}

	res.Fit = fitRes.Fit
	res.Curve = fitRes.Curve
	res.Settlement = fitRes.Settlement

	log.Info("analysis complete",
		zap.Int("samples", len(res.Samples)),
		zap.Float64("settlement_days", res.Settlement.SettlementDays),
		zap.Float64("plateau_km2", res.Settlement.PlateauKm2))

	return res, nil
}
