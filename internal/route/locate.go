package route

import (
	"sort"

	"github.com/cablewatch/cablemap/pkg/core"
)

// Locate returns the geodetic point at distanceKm along the route. It interpolates
// linearly between the bracketing waypoints, returns a waypoint's own coordinates on an
// exact match, and clamps to the first or last waypoint outside the sampled extent.
// ok is false for a nil or empty route.
func Locate(r *Route, distanceKm float64) (loc core.Location, ok bool) {
	if r.Len() == 0 {
		return core.Location{}, false
	}
	wps := r.waypoints

	// first index with distance >= distanceKm
	i := sort.Search(len(wps), func(i int) bool {
		return wps[i].CumulativeDistanceKm >= distanceKm
	})

	switch {
	case i == len(wps):
		// beyond the last sample: no extrapolation
		return pointOf(wps[len(wps)-1], nil), true
	case wps[i].CumulativeDistanceKm == distanceKm:
		var next *core.Waypoint
		if i+1 < len(wps) {
			next = &wps[i+1]
		}
		return pointOf(wps[i], next), true
	case i == 0:
		// before the first sample
		return pointOf(wps[0], nil), true
	}

	before, after := wps[i-1], wps[i]
	ratio := (distanceKm - before.CumulativeDistanceKm) / (after.CumulativeDistanceKm - before.CumulativeDistanceKm)
	return core.Location{
		Latitude:  before.Latitude + ratio*(after.Latitude-before.Latitude),
		Longitude: before.Longitude + ratio*(after.Longitude-before.Longitude),
		Depth:     pickDepth(before.Depth, after.Depth),
	}, true
}

func pointOf(w core.Waypoint, fallback *core.Waypoint) core.Location {
	depth := w.Depth
	if fallback != nil {
		depth = pickDepth(w.Depth, fallback.Depth)
	}
	return core.Location{Latitude: w.Latitude, Longitude: w.Longitude, Depth: depth}
}

func pickDepth(before, after core.Depth) core.Depth {
	if before.Known {
		return before
	}
	if after.Known {
		return after
	}
	return core.UnknownDepth
}
