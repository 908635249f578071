package geo

import (
	"fmt"
	"math"

	"github.com/cablewatch/cablemap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

const earthRadiusKm = 6371.0088

// RouteLineString builds a lng/lat LineString from ordered waypoints, for GeoJSON output.
func RouteLineString(waypoints []core.Waypoint) (geom.LineString, error) {
	if len(waypoints) < 2 {
		return geom.LineString{}, fmt.Errorf("polyline must have at least 2 points, got %d", len(waypoints))
	}

	flatCoords := make([]float64, 0, len(waypoints)*2)
	for _, w := range waypoints {
		flatCoords = append(flatCoords, w.Longitude, w.Latitude)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq)
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := (lat2 - lat1) * math.Pi / 180
	dl := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SurfaceLengthKm sums great-circle distances along the waypoints. Cable slack makes the
// RPL cumulative distance longer than this; the ratio is logged as a route sanity check.
func SurfaceLengthKm(waypoints []core.Waypoint) float64 {
	var total float64
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		total += HaversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	}
	return total
}
