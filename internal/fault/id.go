package fault

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cablewatch/cablemap/pkg/core"
)

// NewID builds "<prefix>-<epochMillis>". The prefix is the segment's id prefix,
// by convention "<cableId><segmentId>".
func NewID(prefix string, at time.Time) string {
	return prefix + "-" + strconv.FormatInt(at.UnixMilli(), 10)
}

// PrefixOf returns the part of a fault id before its last "-<digits>" suffix.
// Ids without a numeric suffix are returned unchanged.
func PrefixOf(id string) string {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return id
	}
	if _, err := strconv.ParseInt(id[i+1:], 10, 64); err != nil {
		return id
	}
	return id[:i]
}

// HasPrefix reports whether id belongs to the segment with the given id prefix.
// An exact prefix match is required so "sjc2s1" does not claim "sjc2s10-..." ids.
func HasPrefix(id, prefix string) bool {
	return PrefixOf(id) == prefix
}

// Signature captures every field that affects how a fault's marker is drawn: its
// resolved position and its type. Two faults with equal signatures render the same
// marker; only their popup text may differ.
func Signature(loc core.Location, t core.FaultType) string {
	return formatCoord(loc.Latitude) + "," + formatCoord(loc.Longitude) + "|" + t.String()
}

func formatCoord(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 7, 64)
}
