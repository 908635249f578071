// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/cablewatch/cablemap/pkg/core"
)

// ErrNotInitialized is returned by backends used before Init.
var ErrNotInitialized = errors.New("fault store not initialized")

// FaultStore is the local fallback cache of simulated faults. It is keyed by
// fault ID alone; the data service stays the source of truth.
type FaultStore interface {
	// Lifecycle
	Init() error
	Close() error

	// Save inserts or replaces the fault with the same ID.
	Save(f core.FaultEvent) error
	Get(id string) (core.FaultEvent, bool, error)

	// List returns faults ordered by simulation time. A zero SegmentRef lists all.
	List(segment core.SegmentRef) ([]core.FaultEvent, error)
	Count() (int, error)

	// Delete drops the faults with the given IDs. Unknown IDs are ignored.
	Delete(ids ...string) error

	// Clear drops every fault.
	Clear() error
}

// Matches reports whether f belongs to segment; a zero segment matches everything.
func Matches(segment core.SegmentRef, f core.FaultEvent) bool {
	if segment == (core.SegmentRef{}) {
		return true
	}
	return f.Segment == segment
}
