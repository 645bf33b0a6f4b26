package model

import (
	"math"
	"time"
)

// Fix is one telemetry observation: where one tracked individual was at one
// moment, in a projected metric coordinate system.
type Fix struct {
	Individual string    `json:"individual"`
	Time       time.Time `json:"time"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
}

// Valid reports whether the fix has finite planar coordinates. Fixes with
// NaN or infinite coordinates are excluded from home-range geometry.
func (f Fix) Valid() bool {
	return !math.IsNaN(f.X) && !math.IsInf(f.X, 0) &&
		!math.IsNaN(f.Y) && !math.IsInf(f.Y, 0)
}

// MinTrackFixes is the minimum number of fixes an individual needs before
// a cumulative polygon series is meaningful. Individuals below the
// threshold are dropped whole during normalization.
const MinTrackFixes = 4

// Track is the time-ordered fix sequence of a single individual.
type Track struct {
	Individual string `json:"individual"`
	Fixes      []Fix  `json:"fixes"`
}

// Eligible reports whether the track has enough fixes for home-range
// construction.
func (t Track) Eligible() bool {
	return len(t.Fixes) >= MinTrackFixes
}
