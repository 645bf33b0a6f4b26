// Package dispersal measures how far each individual moved from its
// release site: the planar distance from the earliest fix to the centroid
// of every later fix, in kilometers.
package dispersal

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

const metersPerKm = 1000

// Distances computes the per-individual dispersal table. Individuals
// without a release fix and at least one later valid fix are skipped.
func Distances(tracks []model.Track) []model.Dispersal {
	log := zap.L().With(zap.String("component", "dispersal"))

	out := make([]model.Dispersal, 0, len(tracks))
	for _, track := range tracks {
		d, ok := distance(track)
		if !ok {
			log.Debug("skipping individual without post-release fixes",
				zap.String("individual", track.Individual))
			continue
		}
		out = append(out, d)
	}
	return out
}

func distance(track model.Track) (model.Dispersal, bool) {
	fixes := make([]model.Fix, 0, len(track.Fixes))
	for _, f := range track.Fixes {
		if f.Valid() {
			fixes = append(fixes, f)
		}
	}
	if len(fixes) < 2 {
		return model.Dispersal{}, false
	}
	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Time.Before(fixes[j].Time)
	})

	release := fixes[0]
	rest := fixes[1:]

	flat := make([]float64, 0, len(rest)*2)
	for _, f := range rest {
		flat = append(flat, f.X, f.Y)
	}
	centroid := xy.PointsCentroidFlat(geom.XY, flat)

	return model.Dispersal{
		Individual: track.Individual,
		Fixes:      len(fixes),
		DistanceKm: math.Hypot(centroid[0]-release.X, centroid[1]-release.Y) / metersPerKm,
	}, true
}
