// Package route models a cable segment's Route Position List: the ordered, deduplicated
// waypoint sequence with cumulative along-cable distance, and the interpolation of a
// distance to a geodetic point.
package route

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cablewatch/cablemap/internal/geo"
	"github.com/cablewatch/cablemap/pkg/core"
)

// ErrEmptyRoute is returned by Build when no record survives filtering.
var ErrEmptyRoute = errors.New("route has no usable waypoints")

// Options control how raw RPL records become a Route.
type Options struct {
	Segment core.SegmentRef

	// RejectZeroSentinel drops any record whose latitude or longitude is zero,
	// including the string "0". Without it only the (0, 0) placeholder pair is dropped.
	RejectZeroSentinel bool

	// Bounds overrides the distance domain derived from the first and last waypoint.
	Bounds *core.Bounds
}

// Route is an immutable waypoint sequence for one segment. Replace it, never mutate it.
type Route struct {
	segment   core.SegmentRef
	waypoints []core.Waypoint
	bounds    core.Bounds
	dropped   int
}

// Build parses, filters, sorts and deduplicates raw records.
func Build(records []core.RouteRecord, opts Options) (*Route, error) {
	waypoints := make([]core.Waypoint, 0, len(records))
	dropped := 0
	for _, rec := range records {
		w, ok := parseRecord(rec, opts.RejectZeroSentinel)
		if !ok {
			dropped++
			continue
		}
		waypoints = append(waypoints, w)
	}

	// stable so the first record at a repeated distance wins the dedup below
	sort.SliceStable(waypoints, func(i, j int) bool {
		return waypoints[i].CumulativeDistanceKm < waypoints[j].CumulativeDistanceKm
	})
	deduped := waypoints[:0]
	for i, w := range waypoints {
		if i > 0 && w.CumulativeDistanceKm == deduped[len(deduped)-1].CumulativeDistanceKm {
			dropped++
			continue
		}
		deduped = append(deduped, w)
	}

	if len(deduped) == 0 {
		return nil, fmt.Errorf("%s: %w (%d records dropped)", opts.Segment, ErrEmptyRoute, dropped)
	}

	r := &Route{
		segment:   opts.Segment,
		waypoints: deduped,
		dropped:   dropped,
		bounds: core.Bounds{
			MinKm: deduped[0].CumulativeDistanceKm,
			MaxKm: deduped[len(deduped)-1].CumulativeDistanceKm,
		},
	}
	if opts.Bounds != nil {
		r.bounds = *opts.Bounds
	}
	return r, nil
}

// New builds a Route from already-parsed waypoints, applying the same ordering rules as Build.
func New(segment core.SegmentRef, waypoints []core.Waypoint) *Route {
	wps := make([]core.Waypoint, len(waypoints))
	copy(wps, waypoints)
	sort.SliceStable(wps, func(i, j int) bool {
		return wps[i].CumulativeDistanceKm < wps[j].CumulativeDistanceKm
	})
	deduped := wps[:0]
	for i, w := range wps {
		if i > 0 && w.CumulativeDistanceKm == deduped[len(deduped)-1].CumulativeDistanceKm {
			continue
		}
		deduped = append(deduped, w)
	}
	r := &Route{segment: segment, waypoints: deduped}
	if len(deduped) > 0 {
		r.bounds = core.Bounds{
			MinKm: deduped[0].CumulativeDistanceKm,
			MaxKm: deduped[len(deduped)-1].CumulativeDistanceKm,
		}
	}
	return r
}

func parseRecord(rec core.RouteRecord, rejectZero bool) (core.Waypoint, bool) {
	lat, latStrZero, err := geo.ParseCoordinate(rec.Latitude)
	if err != nil {
		return core.Waypoint{}, false
	}
	lng, lngStrZero, err := geo.ParseCoordinate(rec.Longitude)
	if err != nil {
		return core.Waypoint{}, false
	}
	dist, _, err := geo.ParseCoordinate(rec.CumulativeKm)
	if err != nil {
		return core.Waypoint{}, false
	}
	if lat == 0 && lng == 0 {
		return core.Waypoint{}, false
	}
	if rejectZero && (lat == 0 || lng == 0 || latStrZero || lngStrZero) {
		return core.Waypoint{}, false
	}
	return core.Waypoint{
		Label:                strings.TrimSpace(rec.Event),
		Latitude:             lat,
		Longitude:            lng,
		CumulativeDistanceKm: dist,
		Depth:                rec.Depth,
	}, true
}

// Segment returns the segment this route describes.
func (r *Route) Segment() core.SegmentRef { return r.segment }

// Bounds returns the valid distance domain.
func (r *Route) Bounds() core.Bounds { return r.bounds }

// Len returns the number of waypoints.
func (r *Route) Len() int {
	if r == nil {
		return 0
	}
	return len(r.waypoints)
}

// Dropped returns how many raw records were filtered out by Build.
func (r *Route) Dropped() int { return r.dropped }

// Waypoints returns a copy of the ordered waypoints.
func (r *Route) Waypoints() []core.Waypoint {
	if r == nil {
		return nil
	}
	out := make([]core.Waypoint, len(r.waypoints))
	copy(out, r.waypoints)
	return out
}

// Landmarks returns labelled waypoints whose label starts with one of prefixes
// (case-insensitive). An empty prefix list selects every labelled waypoint.
func (r *Route) Landmarks(prefixes []string) []core.Waypoint {
	if r == nil {
		return nil
	}
	var out []core.Waypoint
	for _, w := range r.waypoints {
		if w.Label == "" {
			continue
		}
		if len(prefixes) == 0 || hasAnyPrefix(w.Label, prefixes) {
			out = append(out, w)
		}
	}
	return out
}

func hasAnyPrefix(label string, prefixes []string) bool {
	upper := strings.ToUpper(label)
	for _, p := range prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}
