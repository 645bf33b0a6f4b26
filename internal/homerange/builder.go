// Package homerange grows minimum-convex-polygon home-range estimates
// incrementally over each individual's fix series: one convex hull per
// time-ordered prefix, with planar areas reported in square kilometers.
package homerange

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

const (
	sqMetersPerSqKm = 1e6
	hoursPerDay     = 24
)

// Builder computes cumulative MCP series. It is stateless and safe for
// concurrent use across tracks.
type Builder struct {
	srid int
	log  *zap.Logger
}

// NewBuilder returns a Builder that tags hull geometries with the given
// SRID (0 leaves them untagged).
func NewBuilder(srid int) *Builder {
	return &Builder{
		srid: srid,
		log:  zap.L().With(zap.String("component", "homerange.builder")),
	}
}

// Build produces the cumulative polygon series for one track: for every
// prefix of k = 2..n valid fixes, the convex hull over that prefix, its
// area in km², and the days elapsed since the first valid fix. Steps
// whose prefix fails the validity re-check are skipped without aborting
// the track. Tracks with fewer than two valid fixes yield no samples.
func (b *Builder) Build(track model.Track) []model.RangeSample {
	valid := b.validFixes(track)
	if len(valid) < 2 {
		b.log.Debug("track too short after validity filter",
			zap.String("individual", track.Individual),
			zap.Int("valid_fixes", len(valid)))
		return nil
	}

	first := valid[0].Time
	samples := make([]model.RangeSample, 0, len(valid)-1)

	for k := 2; k <= len(valid); k++ {
		prefix := valid[:k]

		if !allValid(prefix) {
			b.log.Debug("skipping step with invalid geometry",
				zap.String("individual", track.Individual),
				zap.Int("step", k))
			continue
		}

		last := prefix[k-1]
		samples = append(samples, model.RangeSample{
			Individual: track.Individual,
			Time:       last.Time,
			Step:       k,
			AreaKm2:    b.hullArea(prefix) / sqMetersPerSqKm,
			Days:       last.Time.Sub(first).Hours() / hoursPerDay,
		})
	}

	return samples
}

// FinalPolygon returns the hull over the whole track for map export. The
// second return is false when the track's valid fixes do not span a
// polygon (fewer than three distinct non-collinear points).
func (b *Builder) FinalPolygon(track model.Track) (model.RangePolygon, bool) {
	valid := b.validFixes(track)
	if len(valid) < 3 {
		return model.RangePolygon{}, false
	}

	poly, ok := b.hull(valid).(*geom.Polygon)
	if !ok {
		return model.RangePolygon{}, false
	}

	flat := poly.FlatCoords()
	ring := make([][2]float64, 0, len(flat)/2+1)
	for i := 0; i+1 < len(flat); i += 2 {
		ring = append(ring, [2]float64{flat[i], flat[i+1]})
	}
	ring = closeRing(ring)
	if ringSignedArea(ring) < 0 {
		reverseRing(ring)
	}

	return model.RangePolygon{
		Individual: track.Individual,
		Fixes:      len(valid),
		AreaKm2:    math.Abs(poly.Area()) / sqMetersPerSqKm,
		Ring:       ring,
	}, true
}

// closeRing repeats the first vertex at the end if the hull ring came
// back open.
func closeRing(ring [][2]float64) [][2]float64 {
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// ringSignedArea is the shoelace sum: positive for counter-clockwise
// winding.
func ringSignedArea(ring [][2]float64) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

func reverseRing(ring [][2]float64) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}

// validFixes sorts the track ascending by time (stable, ties keep input
// order) and drops fixes with non-finite coordinates before the
// incremental loop sees them.
func (b *Builder) validFixes(track model.Track) []model.Fix {
	sorted := make([]model.Fix, len(track.Fixes))
	copy(sorted, track.Fixes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	valid := sorted[:0]
	for _, f := range sorted {
		if f.Valid() {
			valid = append(valid, f)
		}
	}
	if dropped := len(sorted) - len(valid); dropped > 0 {
		b.log.Debug("dropped invalid fixes before hull growth",
			zap.String("individual", track.Individual),
			zap.Int("dropped", dropped))
	}
	return valid
}

// hull computes the convex hull over the fixes. Depending on the point
// configuration the result is a polygon, a line (collinear fixes), or a
// single point.
func (b *Builder) hull(fixes []model.Fix) geom.T {
	flat := make([]float64, 0, len(fixes)*2)
	for _, f := range fixes {
		flat = append(flat, f.X, f.Y)
	}

	h := xy.ConvexHullFlat(geom.XY, flat)
	if b.srid != 0 {
		if poly, ok := h.(*geom.Polygon); ok {
			poly.SetSRID(b.srid)
		}
	}
	return h
}

// hullArea returns the planar hull area in square meters. Degenerate
// hulls (line or point) enclose nothing and report zero.
func (b *Builder) hullArea(fixes []model.Fix) float64 {
	switch h := b.hull(fixes).(type) {
	case *geom.Polygon:
		return math.Abs(h.Area())
	default:
		return 0
	}
}

// allValid re-checks every fix in the prefix. The pre-filter already
// removed invalid fixes; a failure here still skips the step rather than
// aborting the individual.
func allValid(fixes []model.Fix) bool {
	for _, f := range fixes {
		if !f.Valid() {
			return false
		}
	}
	return true
}
