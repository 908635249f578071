package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/cablewatch/cablemap/internal/geo"
	"github.com/cablewatch/cablemap/pkg/core"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&FaultRecord{},
}

// FaultRecord is the persisted form of a fault event. Location holds the point
// in EPSG:3857; Payload keeps the wire record for lossless round trips.
type FaultRecord struct {
	ID          string         `json:"id" gorm:"primaryKey;size:127"`
	CableSystem string         `json:"cableSystem" gorm:"size:64;index:idx_fault_segment"`
	SegmentID   string         `json:"segmentId" gorm:"size:64;index:idx_fault_segment"`
	DistanceKm  float64        `json:"distanceKm"`
	FaultType   string         `json:"faultType" gorm:"size:32"`
	SimulatedAt time.Time      `json:"simulatedAt" gorm:"index:idx_fault_simulated_at"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	DepthMeters *float64       `json:"depthMeters"`
	Location    geom.Point     `json:"location"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (*FaultRecord) TableName() string {
	return "fault_records"
}

// NewFaultRecord converts an event. Events without coordinates get an empty point.
func NewFaultRecord(f core.FaultEvent) (FaultRecord, error) {
	payload, err := json.Marshal(core.CutRecordFromEvent(f))
	if err != nil {
		return FaultRecord{}, fmt.Errorf("failed to encode fault payload: %w", err)
	}
	rec := FaultRecord{
		ID:          f.ID,
		CableSystem: f.Segment.CableSystem,
		SegmentID:   f.Segment.SegmentID,
		DistanceKm:  f.DistanceKm,
		FaultType:   f.Type.String(),
		SimulatedAt: f.SimulatedAt.UTC(),
		Latitude:    f.Latitude,
		Longitude:   f.Longitude,
		Payload:     datatypes.JSON(payload),
	}
	if f.Depth.Known {
		m := f.Depth.Meters
		rec.DepthMeters = &m
	}
	if f.HasLocation() {
		pt, err := geo.Coords3857From4326(f.Longitude, f.Latitude)
		if err != nil {
			return FaultRecord{}, fmt.Errorf("fault %s: %w", f.ID, err)
		}
		rec.Location = pt
	}
	return rec, nil
}

// Event converts the record back to a fault event.
func (r FaultRecord) Event() (core.FaultEvent, error) {
	t, err := core.ParseFaultType(r.FaultType)
	if err != nil {
		return core.FaultEvent{}, fmt.Errorf("fault %s: %w", r.ID, err)
	}
	f := core.FaultEvent{
		ID:          r.ID,
		Segment:     core.SegmentRef{CableSystem: r.CableSystem, SegmentID: r.SegmentID},
		DistanceKm:  r.DistanceKm,
		Type:        t,
		SimulatedAt: r.SimulatedAt.UTC(),
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
	if r.DepthMeters != nil {
		f.Depth = core.DepthMeters(*r.DepthMeters)
	}
	// Rows written by other tools may carry only the geometry.
	if !f.HasLocation() && !r.Location.IsEmpty() {
		lng, lat, err := geo.Coords4326From3857(r.Location)
		if err != nil {
			return core.FaultEvent{}, fmt.Errorf("fault %s: %w", r.ID, err)
		}
		f.Latitude, f.Longitude = lat, lng
	}
	return f, nil
}
