package model

import (
	"math"
	"time"
)

// RangeSample is one step of an individual's cumulative home-range series:
// the minimum convex polygon over the first Step fixes, its area, and the
// time elapsed since the individual's first fix.
type RangeSample struct {
	Individual string    `json:"individual"`
	Time       time.Time `json:"time"`
	Step       int       `json:"step"`
	AreaKm2    float64   `json:"area_km2"`
	Days       float64   `json:"days"`
}

// RangePolygon is the outer ring of an individual's full-track minimum
// convex polygon, kept for map export. The ring is closed (first vertex
// repeated last) and wound counter-clockwise.
type RangePolygon struct {
	Individual string       `json:"individual"`
	Fixes      int          `json:"fixes"`
	AreaKm2    float64      `json:"area_km2"`
	Ring       [][2]float64 `json:"ring"`
}

// Logistic evaluates the three-parameter logistic growth curve at the
// given elapsed time: asymptote / (1 + exp((midpoint-days)/scale)).
func Logistic(days, asymptote, midpoint, scale float64) float64 {
	return asymptote / (1 + math.Exp((midpoint-days)/scale))
}

// FitResult holds the pooled logistic fit of home-range area against
// elapsed days, with per-parameter standard errors and fit diagnostics.
type FitResult struct {
	Asymptote   float64 `json:"asymptote"`
	Midpoint    float64 `json:"midpoint"`
	Scale       float64 `json:"scale"`
	AsymptoteSE float64 `json:"asymptote_se"`
	MidpointSE  float64 `json:"midpoint_se"`
	ScaleSE     float64 `json:"scale_se"`

	RSS        float64 `json:"rss"`
	ResidualSE float64 `json:"residual_se"`
	RSquared   float64 `json:"r_squared"`
	N          int     `json:"n"`
	DOF        int     `json:"dof"`
	Iterations int     `json:"iterations"`
	FuncEvals  int     `json:"func_evals"`
}

// Predict evaluates the fitted curve at the given elapsed days.
func (r FitResult) Predict(days float64) float64 {
	return Logistic(days, r.Asymptote, r.Midpoint, r.Scale)
}

// CurvePoint is one point of the fitted curve sampled over the observed
// day range.
type CurvePoint struct {
	Days    float64 `json:"days"`
	AreaKm2 float64 `json:"area_km2"`
}

// Settlement is the behavioral readout of the fit: the plateau area the
// individuals converge to and the day the fitted curve first reaches it.
type Settlement struct {
	PlateauKm2     float64 `json:"plateau_km2"`
	SettlementDays float64 `json:"settlement_days"`
}

// Dispersal is the straight-line displacement of one individual from its
// first fix to the centroid of all later fixes.
type Dispersal struct {
	Individual string  `json:"individual"`
	Fixes      int     `json:"fixes"`
	DistanceKm float64 `json:"distance_km"`
}
