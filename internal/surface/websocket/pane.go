package websocket

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

// ErrUnknownHandle is returned for a marker handle the pane never issued or already removed.
var ErrUnknownHandle = errors.New("unknown marker handle")

var _ reconcile.Surface = (*Pane)(nil)

// Pane is the reconcile.Surface of one segment pane. It keeps the rendered
// markers so reconnecting clients can be given a snapshot.
type Pane struct {
	key string
	hub *Hub

	mu      sync.Mutex
	seq     uint64
	markers map[reconcile.Handle]streaming.AddMarkerPayload
	open    map[reconcile.Handle]bool
	route   *streaming.RoutePayload
}

func newPane(key string, hub *Hub) *Pane {
	return &Pane{
		key:     key,
		hub:     hub,
		markers: make(map[reconcile.Handle]streaming.AddMarkerPayload),
		open:    make(map[reconcile.Handle]bool),
	}
}

// Key returns the pane key.
func (p *Pane) Key() string { return p.key }

// AddMarker draws a marker and returns its handle.
func (p *Pane) AddMarker(m reconcile.Marker, content popup.Content) (reconcile.Handle, error) {
	p.mu.Lock()
	p.seq++
	h := reconcile.Handle(fmt.Sprintf("%s#%d", m.ID, p.seq))
	payload := streaming.AddMarkerPayload{
		Pane:      p.key,
		Handle:    string(h),
		ID:        m.ID,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Style:     streaming.MarkerStyle{Color: m.Style.Color, Radius: m.Style.Radius, Icon: m.Style.Icon},
		Popup:     toPopup(content),
		Fault:     m.Fault,
	}
	p.markers[h] = payload
	p.mu.Unlock()

	return h, p.broadcast(streaming.TypeAddMarker, payload)
}

// RemoveMarker removes a marker.
func (p *Pane) RemoveMarker(h reconcile.Handle) error {
	p.mu.Lock()
	if _, ok := p.markers[h]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	delete(p.markers, h)
	delete(p.open, h)
	p.mu.Unlock()

	return p.broadcast(streaming.TypeRemoveMarker, streaming.MarkerRef{Pane: p.key, Handle: string(h)})
}

// SetPopupContent replaces a marker's popup content.
func (p *Pane) SetPopupContent(h reconcile.Handle, content popup.Content) error {
	p.mu.Lock()
	m, ok := p.markers[h]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	m.Popup = toPopup(content)
	p.markers[h] = m
	p.mu.Unlock()

	return p.broadcast(streaming.TypePopupContent, streaming.PopupContentPayload{
		MarkerRef: streaming.MarkerRef{Pane: p.key, Handle: string(h)},
		Popup:     m.Popup,
	})
}

// OpenPopup shows a marker's popup.
func (p *Pane) OpenPopup(h reconcile.Handle) error {
	return p.setOpen(h, true, streaming.TypeOpenPopup)
}

// ClosePopup hides a marker's popup.
func (p *Pane) ClosePopup(h reconcile.Handle) error {
	return p.setOpen(h, false, streaming.TypeClosePopup)
}

func (p *Pane) setOpen(h reconcile.Handle, open bool, msgType string) error {
	p.mu.Lock()
	if _, ok := p.markers[h]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if open {
		p.open[h] = true
	} else {
		delete(p.open, h)
	}
	p.mu.Unlock()

	return p.broadcast(msgType, streaming.MarkerRef{Pane: p.key, Handle: string(h)})
}

// FlyTo centres the pane's map on a point.
func (p *Pane) FlyTo(latitude, longitude float64, zoom int) error {
	return p.broadcast(streaming.TypeFlyTo, streaming.FlyToPayload{
		Pane:      p.key,
		Latitude:  latitude,
		Longitude: longitude,
		Zoom:      zoom,
	})
}

// SetRoute publishes the pane's route and keeps it for snapshots.
func (p *Pane) SetRoute(r streaming.RoutePayload) error {
	r.Pane = p.key
	p.mu.Lock()
	p.route = &r
	p.mu.Unlock()
	return p.broadcast(streaming.TypeRoute, r)
}

// Markers returns the number of markers currently drawn.
func (p *Pane) Markers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.markers)
}

func (p *Pane) snapshot() streaming.PaneSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := streaming.PaneSnapshot{
		Pane:       p.key,
		Markers:    make([]streaming.AddMarkerPayload, 0, len(p.markers)),
		OpenPopups: make([]string, 0, len(p.open)),
	}
	if p.route != nil {
		r := *p.route
		snap.Route = &r
	}
	for _, m := range p.markers {
		snap.Markers = append(snap.Markers, m)
	}
	sort.Slice(snap.Markers, func(i, j int) bool { return snap.Markers[i].ID < snap.Markers[j].ID })
	for h := range p.open {
		snap.OpenPopups = append(snap.OpenPopups, string(h))
	}
	sort.Strings(snap.OpenPopups)
	return snap
}

func (p *Pane) broadcast(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}
	p.hub.Broadcast(data)
	return nil
}

func toPopup(c popup.Content) streaming.Popup {
	lines := make([]streaming.PopupLine, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = streaming.PopupLine{Label: l.Label, Value: l.Value}
	}
	return streaming.Popup{Title: c.Title, Lines: lines, HTML: c.HTML()}
}
