// Package streaming defines the envelope protocol spoken between the service
// and map clients over WebSocket.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/cablewatch/cablemap/pkg/core"
)

// Server to client message types.
const (
	TypeAddMarker    = "add_marker"
	TypeRemoveMarker = "remove_marker"
	TypePopupContent = "popup_content"
	TypeOpenPopup    = "open_popup"
	TypeClosePopup   = "close_popup"
	TypeFlyTo        = "fly_to"
	TypeSnapshot     = "snapshot"
	TypeRoute        = "route"
	TypeAck          = "ack"
	TypeError        = "error"
)

// Client to server command types.
const (
	TypeSubmitCut       = "submit_cut"
	TypeResetSimulation = "reset_simulation"
	TypePopupState      = "popup_state"
	TypeRequestSnapshot = "request_snapshot"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload inside an envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// AckMessage acknowledges a client command.
type AckMessage struct {
	For    string `json:"for"` // the command type being acknowledged
	Result any    `json:"result,omitempty"`
}

// ErrorPayload reports a failed client command.
type ErrorPayload struct {
	For       string `json:"for"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable"`
}

// MarkerStyle is the visual treatment of a marker.
type MarkerStyle struct {
	Color  string `json:"color"`
	Radius int    `json:"radius"`
	Icon   string `json:"icon"`
}

// PopupLine is one label/value row of a popup.
type PopupLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Popup is rendered popup content.
type Popup struct {
	Title string      `json:"title"`
	Lines []PopupLine `json:"lines"`
	HTML  string      `json:"html"`
}

// AddMarkerPayload draws a fault marker on a pane.
type AddMarkerPayload struct {
	Pane      string          `json:"pane"`
	Handle    string          `json:"handle"`
	ID        string          `json:"id"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Style     MarkerStyle     `json:"style"`
	Popup     Popup           `json:"popup"`
	Fault     core.FaultEvent `json:"fault"`
}

// MarkerRef addresses one marker on a pane.
type MarkerRef struct {
	Pane   string `json:"pane"`
	Handle string `json:"handle"`
}

// PopupContentPayload replaces a marker's popup content.
type PopupContentPayload struct {
	MarkerRef
	Popup Popup `json:"popup"`
}

// FlyToPayload centres a pane on a point.
type FlyToPayload struct {
	Pane      string  `json:"pane"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      int     `json:"zoom"`
}

// RoutePayload publishes a pane's loaded route.
type RoutePayload struct {
	Pane      string          `json:"pane"`
	Segment   core.SegmentRef `json:"segment"`
	Bounds    core.Bounds     `json:"bounds"`
	LengthKm  float64         `json:"lengthKm"`
	Waypoints []core.Waypoint `json:"waypoints"`
	Landmarks []core.Waypoint `json:"landmarks"`
	// GeoJSON is the route as a LineString geometry in lng/lat order.
	GeoJSON json.RawMessage `json:"geojson,omitempty"`
}

// PaneSnapshot is the current content of one pane.
type PaneSnapshot struct {
	Pane       string             `json:"pane"`
	Route      *RoutePayload      `json:"route,omitempty"`
	Markers    []AddMarkerPayload `json:"markers"`
	OpenPopups []string           `json:"openPopups"`
}

// SnapshotPayload is sent on connect and on request_snapshot.
type SnapshotPayload struct {
	Panes []PaneSnapshot `json:"panes"`
}

// SubmitCutPayload requests a simulated fault.
type SubmitCutPayload struct {
	Segment    string         `json:"segment"`
	DistanceKm core.FlexFloat `json:"distanceKm"`
	FaultType  string         `json:"faultType"`
}

// Hover events carried by PopupStatePayload.
const (
	HoverMarkerEnter = "marker_enter"
	HoverMarkerLeave = "marker_leave"
	HoverPopupEnter  = "popup_enter"
	HoverPopupLeave  = "popup_leave"
	HoverClick       = "click"
)

// PopupStatePayload reports a popup interaction on a pane. Either Event is a
// hover event, or Open reports an explicit open/close.
type PopupStatePayload struct {
	Pane  string `json:"pane"`
	ID    string `json:"id"`
	Event string `json:"event,omitempty"`
	Open  bool   `json:"open"`
}

// RequestSnapshotPayload optionally narrows a snapshot to one pane.
type RequestSnapshotPayload struct {
	Pane string `json:"pane,omitempty"`
}
