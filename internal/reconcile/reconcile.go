// Package reconcile diffs the desired fault set against the markers already on
// a map surface. Reconcile is pure and returns effects; Apply performs them.
package reconcile

import (
	"time"

	"github.com/cablewatch/cablemap/internal/fault"
	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/pkg/core"
)

// EffectKind enumerates surface mutations.
type EffectKind int

const (
	EffectCreate EffectKind = iota + 1
	EffectRemove
	EffectRefreshPopup
)

func (k EffectKind) String() string {
	switch k {
	case EffectCreate:
		return "create"
	case EffectRemove:
		return "remove"
	case EffectRefreshPopup:
		return "refresh_popup"
	}
	return "unknown"
}

// Marker is everything a surface needs to draw one fault.
type Marker struct {
	ID        string          `json:"id"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Style     Style           `json:"style"`
	Fault     core.FaultEvent `json:"fault"`
}

// Effect is one mutation to perform against a Surface.
type Effect struct {
	Kind EffectKind
	ID   string

	// Handle is set for EffectRemove.
	Handle Handle

	// Marker is set for EffectCreate.
	Marker Marker

	// Content is set for EffectCreate and EffectRefreshPopup.
	Content popup.Content

	// RestorePopup reopens the popup of a recreated marker.
	RestorePopup bool
}

// LocateFunc resolves a fault without coordinates to a point on its route.
type LocateFunc func(f core.FaultEvent) (core.Location, bool)

// Options carry the collaborators of a reconciliation pass.
type Options struct {
	// Locate is consulted for faults without usable coordinates. Nil skips them.
	Locate LocateFunc

	// Now is the reference time for popup age lines. Zero means time.Now().
	Now time.Time
}

// Reconcile computes the next state and the effects that bring the surface from
// previous to desired. previous is not modified.
//
// The returned state has exactly the IDs of desired. Faults that cannot be
// positioned get an entry without a Handle and are placed on a later pass once
// they can be. When desired repeats an ID the first one wins.
func Reconcile(desired []core.FaultEvent, previous State, opts Options) (State, []Effect) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	desiredIDs := make(map[string]struct{}, len(desired))
	for _, f := range desired {
		desiredIDs[f.ID] = struct{}{}
	}

	next := previous.clone()
	var effects []Effect

	for _, id := range previous.IDs() {
		if _, ok := desiredIDs[id]; ok {
			continue
		}
		if old := previous[id]; old.Placed() {
			effects = append(effects, Effect{Kind: EffectRemove, ID: id, Handle: old.Handle})
		}
		delete(next, id)
	}

	seen := make(map[string]struct{}, len(desired))
	for _, f := range desired {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}

		old, had := previous[f.ID]
		loc, ok := position(f, opts.Locate)
		if !ok {
			// an existing marker for it is stale now
			if had && old.Placed() {
				effects = append(effects, Effect{Kind: EffectRemove, ID: f.ID, Handle: old.Handle})
			}
			next[f.ID] = Entry{PopupOpen: old.PopupOpen}
			continue
		}

		sig := fault.Signature(loc, f.Type)
		content := popup.FormatAt(withLocation(f, loc), now)

		switch {
		case !had || !old.Placed():
			effects = append(effects, createEffect(f, loc, content, old.PopupOpen))
			next[f.ID] = Entry{Signature: sig, Content: content, PopupOpen: old.PopupOpen}
		case old.Signature == sig:
			if !old.Content.Equal(content) {
				effects = append(effects, Effect{Kind: EffectRefreshPopup, ID: f.ID, Handle: old.Handle, Content: content})
				old.Content = content
				next[f.ID] = old
			}
		default:
			effects = append(effects,
				Effect{Kind: EffectRemove, ID: f.ID, Handle: old.Handle},
				createEffect(f, loc, content, old.PopupOpen),
			)
			next[f.ID] = Entry{Signature: sig, Content: content, PopupOpen: old.PopupOpen}
		}
	}

	return next, effects
}

func position(f core.FaultEvent, locate LocateFunc) (core.Location, bool) {
	if f.HasLocation() {
		return core.Location{Latitude: f.Latitude, Longitude: f.Longitude, Depth: f.Depth}, true
	}
	if locate == nil {
		return core.Location{}, false
	}
	return locate(f)
}

func withLocation(f core.FaultEvent, loc core.Location) core.FaultEvent {
	f.Latitude = loc.Latitude
	f.Longitude = loc.Longitude
	if !f.Depth.Known {
		f.Depth = loc.Depth
	}
	return f
}

func createEffect(f core.FaultEvent, loc core.Location, content popup.Content, restore bool) Effect {
	f = withLocation(f, loc)
	return Effect{
		Kind: EffectCreate,
		ID:   f.ID,
		Marker: Marker{
			ID:        f.ID,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Style:     StyleFor(f.Type),
			Fault:     f,
		},
		Content:      content,
		RestorePopup: restore,
	}
}

// Count tallies effects by kind.
func Count(effects []Effect) map[EffectKind]int {
	out := make(map[EffectKind]int, 3)
	for _, e := range effects {
		out[e.Kind]++
	}
	return out
}
