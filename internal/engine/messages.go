package engine

import (
	"time"

	"github.com/cablewatch/cablemap/internal/poller"
	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/pkg/core"
)

// message is anything delivered to an engine's owner goroutine.
type message interface{ isMessage() }

type routeLoaded struct{ route *route.Route }

type faultsPolled struct{ records []core.CutRecord }

type faultsSeeded struct{ faults []core.FaultEvent }

type faultEmitted struct{ fault core.FaultEvent }

type flyTo struct{ loc core.Location }

type popupEvent struct {
	id    string
	event string
	open  bool
}

type popupVisible struct {
	id   string
	open bool
}

type clearLocal struct{}

type statusRequest struct{ reply chan Status }

func (routeLoaded) isMessage()   {}
func (faultsPolled) isMessage()  {}
func (faultsSeeded) isMessage()  {}
func (faultEmitted) isMessage()  {}
func (flyTo) isMessage()         {}
func (popupEvent) isMessage()    {}
func (popupVisible) isMessage()  {}
func (clearLocal) isMessage()    {}
func (statusRequest) isMessage() {}

// Status is a point-in-time view of one pane.
type Status struct {
	Key         string
	RouteLoaded bool
	Waypoints   int
	Bounds      core.Bounds
	Markers     int
	OpenPopups  int
	Unplaced    int
	Pending     int
	LastPoll    time.Time
	RoutePoller poller.Stats
}
