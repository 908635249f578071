// pkg/core/route.go
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownDepthText is the wire and display value for a depth that was never sampled.
const UnknownDepthText = "Unknown"

// Depth is a water depth in metres, or Unknown when the RPL carries no sample.
type Depth struct {
	Meters float64
	Known  bool
}

// UnknownDepth is the zero Depth.
var UnknownDepth = Depth{}

// DepthMeters returns a known depth.
func DepthMeters(m float64) Depth {
	return Depth{Meters: m, Known: true}
}

// String renders the depth for display.
func (d Depth) String() string {
	if !d.Known {
		return UnknownDepthText
	}
	return strconv.FormatFloat(d.Meters, 'f', -1, 64) + " m"
}

// MarshalJSON encodes a known depth as a number and an unknown one as "Unknown".
func (d Depth) MarshalJSON() ([]byte, error) {
	if !d.Known {
		return json.Marshal(UnknownDepthText)
	}
	return json.Marshal(d.Meters)
}

// UnmarshalJSON accepts a number, a numeric string, "Unknown", "" or null.
func (d *Depth) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*d = UnknownDepth
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	if s == "" || strings.EqualFold(s, UnknownDepthText) {
		*d = UnknownDepth
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		// the data service writes free text for some samples; treat as unsampled
		*d = UnknownDepth
		return nil
	}
	*d = DepthMeters(v)
	return nil
}

// Waypoint is one sampled point of a cable route.
type Waypoint struct {
	Label                string  `json:"label,omitempty"`
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	CumulativeDistanceKm float64 `json:"cumulativeDistanceKm"`
	Depth                Depth   `json:"depth"`
}

// RouteRecord is a raw RPL row as served by the data service. Coordinates and
// distances arrive as numbers or strings depending on the upload that produced them.
type RouteRecord struct {
	Event        string          `json:"event"`
	Latitude     json.RawMessage `json:"full_latitude"`
	Longitude    json.RawMessage `json:"full_longitude"`
	CumulativeKm json.RawMessage `json:"cable_cumulative_total"`
	Depth        Depth           `json:"Depth"`
}

// Location is a geodetic point with the depth of the route at that point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Depth     Depth   `json:"depth"`
}

// Bounds is the valid distance domain of a segment. Both edges are inclusive
// unless the matching Exclusive flag is set.
type Bounds struct {
	MinKm        float64 `json:"minKm"`
	MaxKm        float64 `json:"maxKm"`
	MinExclusive bool    `json:"minExclusive,omitempty"`
	MaxExclusive bool    `json:"maxExclusive,omitempty"`
}

// Contains reports whether distanceKm lies inside the bounds.
func (b Bounds) Contains(distanceKm float64) bool {
	if math.IsNaN(distanceKm) {
		return false
	}
	if distanceKm < b.MinKm || (b.MinExclusive && distanceKm == b.MinKm) {
		return false
	}
	if distanceKm > b.MaxKm || (b.MaxExclusive && distanceKm == b.MaxKm) {
		return false
	}
	return true
}

// String renders the bounds in interval notation.
func (b Bounds) String() string {
	lo, hi := "[", "]"
	if b.MinExclusive {
		lo = "("
	}
	if b.MaxExclusive {
		hi = ")"
	}
	return fmt.Sprintf("%s%g, %g%s km", lo, b.MinKm, b.MaxKm, hi)
}

// SegmentRef identifies one segment of one cable system.
type SegmentRef struct {
	CableSystem string `json:"cableSystem"`
	SegmentID   string `json:"segmentId"`
}

// String returns "<cable>/<segment>".
func (r SegmentRef) String() string {
	return r.CableSystem + "/" + r.SegmentID
}
