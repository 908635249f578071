// pkg/core/fault.go
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FaultType classifies the severity of a simulated cable cut.
type FaultType int

const (
	// FaultTypeNone means no type was selected.
	FaultTypeNone FaultType = iota
	ShuntFault
	PartialFiberBreak
	FiberBreak
	FullCut
)

// FaultTypes lists the selectable fault types in severity order.
var FaultTypes = []FaultType{ShuntFault, PartialFiberBreak, FiberBreak, FullCut}

var faultTypeNames = map[FaultType]string{
	ShuntFault:        "Shunt Fault",
	PartialFiberBreak: "Partial Fiber Break",
	FiberBreak:        "Fiber Break",
	FullCut:           "Full Cut",
}

// String returns the display name used on the wire and in popups.
func (t FaultType) String() string {
	if name, ok := faultTypeNames[t]; ok {
		return name
	}
	return ""
}

// Valid reports whether t is one of the four selectable types.
func (t FaultType) Valid() bool {
	_, ok := faultTypeNames[t]
	return ok
}

// ParseFaultType accepts display names ("Full Cut"), compact names ("FullCut",
// "full_cut") in any case. An empty string yields FaultTypeNone without error.
func ParseFaultType(s string) (FaultType, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
	if norm == "" {
		return FaultTypeNone, nil
	}
	for t, name := range faultTypeNames {
		if strings.ToLower(strings.ReplaceAll(name, " ", "")) == norm {
			return t, nil
		}
	}
	return FaultTypeNone, fmt.Errorf("unknown fault type %q", s)
}

// MarshalJSON encodes the display name.
func (t FaultType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a display or compact name.
func (t *FaultType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFaultType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FaultEvent is one simulated cut on one segment.
type FaultEvent struct {
	ID          string     `json:"id"`
	Segment     SegmentRef `json:"segment"`
	DistanceKm  float64    `json:"distanceKm"`
	Type        FaultType  `json:"faultType"`
	SimulatedAt time.Time  `json:"simulatedAt"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Depth       Depth      `json:"depth"`
}

// HasLocation reports whether the event carries usable coordinates.
// (0, 0) is the placeholder the data service writes when the client sent none.
func (f FaultEvent) HasLocation() bool {
	if math.IsNaN(f.Latitude) || math.IsNaN(f.Longitude) {
		return false
	}
	return f.Latitude != 0 || f.Longitude != 0
}

// FlexFloat decodes a JSON number or a numeric string.
type FlexFloat float64

// UnmarshalJSON accepts 12.5, "12.5" and null.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// CutRecord is the wire form of a fault on the cable-cuts endpoints.
type CutRecord struct {
	CutID     string    `json:"cut_id"`
	Distance  FlexFloat `json:"distance"`
	CutType   string    `json:"cut_type"`
	Simulated string    `json:"simulated"`
	Latitude  FlexFloat `json:"latitude"`
	Longitude FlexFloat `json:"longitude"`
	Depth     Depth     `json:"depth"`
}

// CutRecordFromEvent converts an event to its wire form.
func CutRecordFromEvent(f FaultEvent) CutRecord {
	return CutRecord{
		CutID:     f.ID,
		Distance:  FlexFloat(f.DistanceKm),
		CutType:   f.Type.String(),
		Simulated: f.SimulatedAt.UTC().Format(time.RFC3339Nano),
		Latitude:  FlexFloat(f.Latitude),
		Longitude: FlexFloat(f.Longitude),
		Depth:     f.Depth,
	}
}

// Event converts the wire form to a FaultEvent owned by ref. An unparseable
// timestamp leaves SimulatedAt zero; an unknown cut type is an error.
func (c CutRecord) Event(ref SegmentRef) (FaultEvent, error) {
	t, err := ParseFaultType(c.CutType)
	if err != nil {
		return FaultEvent{}, fmt.Errorf("cut %s: %w", c.CutID, err)
	}
	var ts time.Time
	if c.Simulated != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05"} {
			if parsed, perr := time.Parse(layout, c.Simulated); perr == nil {
				ts = parsed
				break
			}
		}
	}
	return FaultEvent{
		ID:          c.CutID,
		Segment:     ref,
		DistanceKm:  float64(c.Distance),
		Type:        t,
		SimulatedAt: ts,
		Latitude:    float64(c.Latitude),
		Longitude:   float64(c.Longitude),
		Depth:       c.Depth,
	}, nil
}
