package geo

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Stored fault locations are always 3857, because SQLite has no spatial awareness and the
// fallback cache must round-trip points through the geometry Scan/Value functions identically
// on both backends. Wire and display coordinates stay in 4326 (lat/lng degrees).

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParseCoordinate decodes a raw JSON coordinate that may be a number or a string.
// isStringZero is set when the value was the literal string "0", the placeholder
// some RPL uploads use for unsampled rows.
func ParseCoordinate(raw json.RawMessage) (value float64, isStringZero bool, err error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false, ErrInvalidCoordinates
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false, ErrInvalidCoordinates
		}
		s = strings.TrimSpace(str)
		isStringZero = s == "0"
	}
	value, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, ErrInvalidCoordinates
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, ErrInvalidCoordinates
	}
	return value, isStringZero, nil
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if math.IsNaN(longitude) || math.IsNaN(latitude) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point, err = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	return point, err
}

// Coords4326From3857 is the inverse of Coords3857From4326.
func Coords4326From3857(point geom.Point) (longitude, latitude float64, err error) {
	xy, ok := point.XY()
	if !ok {
		return 0, 0, ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(3857, 4326)
	longitude, latitude, _ = f(xy.X, xy.Y, 0)
	return longitude, latitude, nil
}
