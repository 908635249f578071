package reconcile

import (
	"errors"
	"fmt"

	"github.com/cablewatch/cablemap/internal/popup"
)

// Surface is the map capability markers are drawn on.
type Surface interface {
	AddMarker(m Marker, content popup.Content) (Handle, error)
	RemoveMarker(h Handle) error
	SetPopupContent(h Handle, content popup.Content) error
	OpenPopup(h Handle) error
	FlyTo(latitude, longitude float64, zoom int) error
}

// Apply performs effects on surface and returns st with the handles of created
// markers filled in. A marker that fails to be created keeps an entry without a
// Handle so the next Reconcile creates it again.
func Apply(surface Surface, effects []Effect, st State) (State, error) {
	var errs []error
	for _, e := range effects {
		switch e.Kind {
		case EffectRemove:
			if e.Handle == "" {
				continue
			}
			if err := surface.RemoveMarker(e.Handle); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", e.ID, err))
			}
		case EffectCreate:
			h, err := surface.AddMarker(e.Marker, e.Content)
			if err != nil {
				errs = append(errs, fmt.Errorf("create %s: %w", e.ID, err))
				entry := st[e.ID]
				entry.Handle = ""
				st[e.ID] = entry
				continue
			}
			entry := st[e.ID]
			entry.Handle = h
			st[e.ID] = entry
			if e.RestorePopup {
				if err := surface.OpenPopup(h); err != nil {
					errs = append(errs, fmt.Errorf("reopen popup %s: %w", e.ID, err))
				}
			}
		case EffectRefreshPopup:
			h := st[e.ID].Handle
			if h == "" {
				h = e.Handle
			}
			if err := surface.SetPopupContent(h, e.Content); err != nil {
				errs = append(errs, fmt.Errorf("refresh popup %s: %w", e.ID, err))
			}
		}
	}
	return st, errors.Join(errs...)
}
