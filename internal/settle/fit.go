// Package settle fits the pooled logistic growth curve to home-range
// area observations and derives the settlement statistic: the elapsed
// day at which the fitted curve reaches 95% of its asymptotic plateau.
package settle

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// Defaults for Options zero values.
const (
	DefaultGridPoints      = 100
	DefaultMaxIterations   = 200
	DefaultPlateauFraction = 0.95
)

// Options tunes the fit. Zero values take the defaults above.
type Options struct {
	GridPoints      int     // prediction grid density over [min(days), max(days)]
	MaxIterations   int     // optimizer major-iteration cap
	PlateauFraction float64 // plateau definition as a fraction of the asymptote
}

func (o Options) withDefaults() Options {
	if o.GridPoints < 2 {
		o.GridPoints = DefaultGridPoints
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.PlateauFraction <= 0 || o.PlateauFraction >= 1 {
		o.PlateauFraction = DefaultPlateauFraction
	}
	return o
}

// Result bundles the fitted model, the dense prediction curve, and the
// derived settlement statistic.
type Result struct {
	Fit        model.FitResult
	Curve      []model.CurvePoint
	Settlement model.Settlement
}

// Fit performs the pooled nonlinear least-squares fit of
// area = Asym / (1 + exp((xmid - days)/scal)) over all individuals'
// samples. Starting values are self-derived; callers supply none. Any
// failure to converge surfaces as a *ConvergenceError.
func Fit(samples []model.RangeSample, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "settle.fitter"))

	days := make([]float64, len(samples))
	area := make([]float64, len(samples))
	for i, s := range samples {
		days[i] = s.Days
		area[i] = s.AreaKm2
	}

	theta0, err := selfStart(days, area)
	if err != nil {
		return nil, err
	}
	log.Debug("self-start estimates",
		zap.Float64("asymptote", theta0[0]),
		zap.Float64("midpoint", theta0[1]),
		zap.Float64("scale", theta0[2]))

	theta, stats, err := minimizeSSE(days, area, theta0, opts.MaxIterations)
	if err != nil {
		return nil, err
	}
	if !finite(theta[0]) || !finite(theta[1]) || !finite(theta[2]) {
		return nil, convergenceError("optimizer produced non-finite parameters", days, area)
	}
	if theta[0] <= 0 {
		return nil, convergenceError("fitted asymptote is not positive", days, area)
	}
	if theta[2] <= 0 {
		return nil, convergenceError("fitted scale is not positive", days, area)
	}

	fit, err := summarize(days, area, theta, stats)
	if err != nil {
		return nil, err
	}

	curve := PredictionGrid(fit, floats.Min(days), floats.Max(days), opts.GridPoints)
	settlement := DeriveSettlement(curve, fit.Asymptote, opts.PlateauFraction)

	log.Info("logistic fit converged",
		zap.Float64("asymptote_km2", fit.Asymptote),
		zap.Float64("midpoint_days", fit.Midpoint),
		zap.Float64("scale", fit.Scale),
		zap.Float64("r_squared", fit.RSquared),
		zap.Int("n", fit.N),
		zap.Int("iterations", fit.Iterations),
		zap.Float64("settlement_days", settlement.SettlementDays))

	return &Result{Fit: fit, Curve: curve, Settlement: settlement}, nil
}

// minimizeSSE runs BFGS with the analytic gradient on the sum of squared
// residuals.
func minimizeSSE(days, area []float64, theta0 [3]float64, maxIter int) ([3]float64, optimize.Stats, error) {
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			var sse float64
			for i := range days {
				r := logisticStable(days[i], theta[0], theta[1], theta[2]) - area[i]
				sse += r * r
			}
			if math.IsNaN(sse) {
				return math.Inf(1)
			}
			return sse
		},
		Grad: func(grad, theta []float64) {
			a, m, s := theta[0], theta[1], theta[2]
			grad[0], grad[1], grad[2] = 0, 0, 0
			if s == 0 {
				return
			}
			for i := range days {
				p, q := sigmoidPair((m - days[i]) / s)
				r := a*p - area[i]
				grad[0] += 2 * r * p
				grad[1] += 2 * r * (-a * p * q / s)
				grad[2] += 2 * r * (a * p * q * (m - days[i]) / (s * s))
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-10,
	}
	result, err := optimize.Minimize(problem, theta0[:], settings, &optimize.BFGS{})
	if result == nil || len(result.X) != 3 {
		return [3]float64{}, optimize.Stats{}, convergenceError("optimizer returned no solution", days, area)
	}
	if err == nil {
		err = result.Status.Err()
	}
	if err != nil && !firstOrderOptimal(problem, result.X) {
		// Line searches can stall at an already-optimal point on
		// near-zero-residual data; only a genuinely unconverged stop is
		// surfaced.
		return [3]float64{}, optimize.Stats{}, convergenceError("optimizer stopped: "+err.Error(), days, area)
	}

	return [3]float64{result.X[0], result.X[1], result.X[2]}, result.Stats, nil
}

// gradAcceptTol is the infinity-norm gradient bound under which a stalled
// optimizer stop still counts as converged.
const gradAcceptTol = 1e-6

func firstOrderOptimal(problem optimize.Problem, x []float64) bool {
	grad := make([]float64, len(x))
	problem.Grad(grad, x)
	for _, g := range grad {
		if math.Abs(g) > gradAcceptTol {
			return false
		}
	}
	return true
}

// summarize computes residual statistics and per-parameter standard
// errors from the Jacobian at the solution.
func summarize(days, area []float64, theta [3]float64, stats optimize.Stats) (model.FitResult, error) {
	a, m, s := theta[0], theta[1], theta[2]
	n := len(days)

	var rss float64
	predicted := make([]float64, n)
	jac := mat.NewDense(n, 3, nil)
	for i := range days {
		p, q := sigmoidPair((m - days[i]) / s)
		predicted[i] = a * p
		r := predicted[i] - area[i]
		rss += r * r
		jac.Set(i, 0, p)
		jac.Set(i, 1, -a*p*q/s)
		jac.Set(i, 2, a*p*q*(m-days[i])/(s*s))
	}

	dof := n - 3
	sigma2 := rss / float64(dof)

	var jtj, cov mat.Dense
	jtj.Mul(jac.T(), jac)
	if err := cov.Inverse(&jtj); err != nil {
		return model.FitResult{}, convergenceError("singular curvature at solution", days, area)
	}

	se := func(k int) float64 {
		v := sigma2 * cov.At(k, k)
		if v < 0 {
			return 0
		}
		return math.Sqrt(v)
	}

	return model.FitResult{
		Asymptote:   a,
		Midpoint:    m,
		Scale:       s,
		AsymptoteSE: se(0),
		MidpointSE:  se(1),
		ScaleSE:     se(2),
		RSS:         rss,
		ResidualSE:  math.Sqrt(sigma2),
		RSquared:    stat.RSquaredFrom(predicted, area, nil),
		N:           n,
		DOF:         dof,
		Iterations:  stats.MajorIterations,
		FuncEvals:   stats.FuncEvaluations,
	}, nil
}

// PredictionGrid evaluates the fitted curve on an evenly spaced grid of
// elapsed-day values spanning the observed range.
func PredictionGrid(fit model.FitResult, minDays, maxDays float64, points int) []model.CurvePoint {
	if points < 2 {
		points = DefaultGridPoints
	}

	grid := make([]float64, points)
	floats.Span(grid, minDays, maxDays)

	curve := make([]model.CurvePoint, points)
	for i, d := range grid {
		curve[i] = model.CurvePoint{Days: d, AreaKm2: fit.Predict(d)}
	}
	return curve
}

// DeriveSettlement picks the grid day whose prediction sits closest to
// the plateau. Ties keep the earliest day (strict less, ascending scan).
func DeriveSettlement(curve []model.CurvePoint, asymptote, plateauFraction float64) model.Settlement {
	plateau := asymptote * plateauFraction

	best := 0
	bestDiff := math.Abs(curve[0].AreaKm2 - plateau)
	for i := 1; i < len(curve); i++ {
		if diff := math.Abs(curve[i].AreaKm2 - plateau); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}

	return model.Settlement{
		PlateauKm2:     plateau,
		SettlementDays: curve[best].Days,
	}
}

// logisticStable is model.Logistic computed through the sigmoid so large
// |(midpoint-days)/scale| cannot produce Inf/Inf.
func logisticStable(days, asymptote, midpoint, scale float64) float64 {
	p, _ := sigmoidPair((midpoint - days) / scale)
	return asymptote * p
}

// sigmoidPair returns p = 1/(1+e^u) and q = 1/(1+e^-u). The product p*q
// is the stable form of e^u/(1+e^u)², used throughout the gradient and
// Jacobian.
func sigmoidPair(u float64) (p, q float64) {
	return 1 / (1 + math.Exp(u)), 1 / (1 + math.Exp(-u))
}
