// Package memory is a reconcile.Surface that records every call. It backs
// headless runs and tests.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/internal/reconcile"
)

// ErrUnknownHandle is returned for a handle the surface never issued or already removed.
var ErrUnknownHandle = errors.New("unknown marker handle")

var _ reconcile.Surface = (*Surface)(nil)

// Call is one recorded surface operation.
type Call struct {
	Op     string
	Handle reconcile.Handle
	ID     string
}

// Rendered is a marker as currently drawn.
type Rendered struct {
	Marker    reconcile.Marker
	Content   popup.Content
	PopupOpen bool
}

// FlyTo is a recorded fly-to request.
type FlyTo struct {
	Latitude  float64
	Longitude float64
	Zoom      int
}

// Surface records operations and keeps the rendered markers.
type Surface struct {
	mu      sync.Mutex
	seq     int
	markers map[reconcile.Handle]*Rendered
	calls   []Call
	flights []FlyTo

	// FailAdd makes AddMarker fail for the listed fault IDs.
	FailAdd map[string]error
}

// New creates an empty Surface.
func New() *Surface {
	return &Surface{markers: make(map[reconcile.Handle]*Rendered)}
}

// AddMarker records and draws a marker.
func (s *Surface) AddMarker(m reconcile.Marker, content popup.Content) (reconcile.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailAdd[m.ID]; err != nil {
		return "", err
	}
	s.seq++
	h := reconcile.Handle(fmt.Sprintf("m%d", s.seq))
	s.markers[h] = &Rendered{Marker: m, Content: content}
	s.calls = append(s.calls, Call{Op: "add", Handle: h, ID: m.ID})
	return h, nil
}

// RemoveMarker records and removes a marker.
func (s *Surface) RemoveMarker(h reconcile.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.markers[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	delete(s.markers, h)
	s.calls = append(s.calls, Call{Op: "remove", Handle: h, ID: r.Marker.ID})
	return nil
}

// SetPopupContent records a popup refresh.
func (s *Surface) SetPopupContent(h reconcile.Handle, content popup.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.markers[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	r.Content = content
	s.calls = append(s.calls, Call{Op: "popup", Handle: h, ID: r.Marker.ID})
	return nil
}

// OpenPopup records a popup opening.
func (s *Surface) OpenPopup(h reconcile.Handle) error {
	return s.setOpen(h, true, "open")
}

// ClosePopup records a popup closing.
func (s *Surface) ClosePopup(h reconcile.Handle) error {
	return s.setOpen(h, false, "close")
}

func (s *Surface) setOpen(h reconcile.Handle, open bool, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.markers[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	r.PopupOpen = open
	s.calls = append(s.calls, Call{Op: op, Handle: h, ID: r.Marker.ID})
	return nil
}

// FlyTo records a fly-to request.
func (s *Surface) FlyTo(latitude, longitude float64, zoom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights = append(s.flights, FlyTo{Latitude: latitude, Longitude: longitude, Zoom: zoom})
	s.calls = append(s.calls, Call{Op: "fly"})
	return nil
}

// Markers returns the drawn markers keyed by fault ID.
func (s *Surface) Markers() map[string]Rendered {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Rendered, len(s.markers))
	for _, r := range s.markers {
		out[r.Marker.ID] = *r
	}
	return out
}

// Calls returns the recorded calls in order.
func (s *Surface) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountOps returns how many calls of op were recorded.
func (s *Surface) CountOps(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Flights returns the recorded fly-to requests.
func (s *Surface) Flights() []FlyTo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FlyTo(nil), s.flights...)
}

// Reset forgets recorded calls but keeps drawn markers.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.flights = nil
}
