package settle

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minObservations is the smallest pooled set a 3-parameter fit can
// support with at least one residual degree of freedom.
const minObservations = 4

// selfStart derives initial logistic parameters from the data alone, so
// callers never supply starting values. The asymptote is seeded just
// above the largest observed area; midpoint and scale come from a linear
// regression of the logit-transformed areas on days.
func selfStart(days, area []float64) ([3]float64, error) {
	if len(days) < minObservations {
		return [3]float64{}, convergenceError("too few pooled observations", days, area)
	}
	if floats.Max(days) == floats.Min(days) {
		return [3]float64{}, convergenceError("no variation in elapsed days", days, area)
	}
	if floats.Max(area) == floats.Min(area) {
		return [3]float64{}, convergenceError("no variation in area", days, area)
	}

	asym0 := 1.05 * floats.Max(area)

	// Logit-linearization: log(y/(asym0-y)) is linear in days under the
	// model. Zero-area steps stay in the pooled set but cannot inform the
	// transform, so they are left out here.
	var xs, zs []float64
	for i, y := range area {
		if y <= 0 {
			continue
		}
		xs = append(xs, days[i])
		zs = append(zs, math.Log(y/(asym0-y)))
	}
	if len(xs) < 3 {
		return [3]float64{}, convergenceError("too few positive-area observations for self-start", days, area)
	}

	alpha, beta := stat.LinearRegression(xs, zs, nil, false)
	if !finite(alpha) || !finite(beta) {
		return [3]float64{}, convergenceError("self-start regression degenerate", days, area)
	}
	if beta <= 0 {
		return [3]float64{}, convergenceError("area series does not increase with time", days, area)
	}

	return [3]float64{asym0, -alpha / beta, 1 / beta}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
