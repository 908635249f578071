package reconcile

import (
	"sort"

	"github.com/cablewatch/cablemap/internal/popup"
)

// Handle identifies a marker on a map surface.
type Handle string

// Entry is what the reconciler remembers about one fault. An entry without a
// Handle has no marker yet, either because the fault could not be positioned
// or because the surface rejected it.
type Entry struct {
	Handle    Handle
	PopupOpen bool
	Signature string
	Content   popup.Content
}

// Placed reports whether the entry has a marker on the surface.
func (e Entry) Placed() bool { return e.Handle != "" }

// State maps fault ID to its marker. The zero value is an empty state.
type State map[string]Entry

// Placed returns the number of entries with a marker on the surface.
func (s State) Placed() int {
	n := 0
	for _, e := range s {
		if e.Placed() {
			n++
		}
	}
	return n
}

// Unplaced returns the IDs still waiting for a marker, in ascending order.
func (s State) Unplaced() []string {
	var ids []string
	for _, id := range s.IDs() {
		if !s[id].Placed() {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDs returns the fault IDs in ascending order.
func (s State) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetPopupOpen records a popup visibility change reported by the surface.
// Unknown IDs are ignored.
func (s State) SetPopupOpen(id string, open bool) {
	e, ok := s[id]
	if !ok {
		return
	}
	e.PopupOpen = open
	s[id] = e
}

// OpenPopups returns the IDs with a visible popup.
func (s State) OpenPopups() []string {
	var ids []string
	for _, id := range s.IDs() {
		if e := s[id]; e.PopupOpen && e.Placed() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s State) clone() State {
	out := make(State, len(s))
	for id, e := range s {
		out[id] = e
	}
	return out
}
