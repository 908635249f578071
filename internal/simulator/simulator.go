// Package simulator turns an operator's cut request into a persisted fault:
// validate, locate on the cached route, create on the data service, then
// notify the owning pane.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cablewatch/cablemap/internal/fault"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/internal/storage"
	"github.com/cablewatch/cablemap/pkg/core"
)

// Client is the part of the data service API the simulator writes to.
type Client interface {
	CreateCut(ctx context.Context, cut core.CutRecord) error
	DeleteCuts(ctx context.Context) error
}

// Routes looks up the latest route of a segment by registry key.
type Routes interface {
	Get(key string) (*route.Route, bool)
}

// Sink receives every accepted fault. Implementations must not block.
type Sink interface {
	WriteFault(f core.FaultEvent)
}

// Notifier is told about accepted faults so the owning pane can show them
// before the next poll and centre the map on them.
type Notifier interface {
	Emit(key string, f core.FaultEvent)
	FlyTo(key string, loc core.Location)
}

// Config wires the simulator's collaborators. Registry, Client and Routes are required.
type Config struct {
	Registry *segment.Registry
	Client   Client
	Routes   Routes
	Store    storage.FaultStore
	Sinks    []Sink
	Notifier Notifier
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Simulator submits simulated faults.
type Simulator struct {
	cfg Config
}

// New creates a Simulator.
func New(cfg Config) *Simulator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Simulator{cfg: cfg}
}

// Submit validates and creates a fault at distanceKm on the segment with the
// given registry key. Validation and location errors are returned before any
// request is made; data service failures are returned as *SubmitError.
func (s *Simulator) Submit(ctx context.Context, key string, distanceKm float64, t core.FaultType) (core.FaultEvent, error) {
	seg, err := s.cfg.Registry.Get(key)
	if err != nil {
		return core.FaultEvent{}, err
	}

	r, _ := s.cfg.Routes.Get(key)

	bounds, known := boundsFor(seg, r)
	if err := fault.Validate(distanceKm, t, bounds); err != nil {
		s.cfg.Metrics.ObserveSubmission(key, "invalid")
		return core.FaultEvent{}, err
	}
	if !known {
		s.cfg.Metrics.ObserveSubmission(key, "calculation")
		return core.FaultEvent{}, fmt.Errorf("%s: route not loaded: %w", key, ErrCalculation)
	}

	loc, ok := route.Locate(r, distanceKm)
	if !ok {
		s.cfg.Metrics.ObserveSubmission(key, "calculation")
		return core.FaultEvent{}, fmt.Errorf("%s at %.3f km: %w", key, distanceKm, ErrCalculation)
	}

	now := s.cfg.Now().UTC()
	f := core.FaultEvent{
		ID:          fault.NewID(seg.Prefix(), now),
		Segment:     seg.Ref(),
		DistanceKm:  distanceKm,
		Type:        t,
		SimulatedAt: now,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Depth:       loc.Depth,
	}

	if err := s.cfg.Client.CreateCut(ctx, core.CutRecordFromEvent(f)); err != nil {
		se := classify(f.ID, err)
		s.cfg.Metrics.ObserveSubmission(key, se.Kind.String())
		if se.Kind != Aborted {
			s.cfg.Logger.Warn("Fault submission failed", "segment", key, "id", f.ID, "kind", se.Kind.String(), "retryable", se.Retryable(), "error", err)
		}
		return core.FaultEvent{}, se
	}

	s.cfg.Metrics.ObserveSubmission(key, "success")
	s.cfg.Logger.Info("Fault submitted", "segment", key, "id", f.ID, "distanceKm", distanceKm, "type", t.String())

	// emit before caching so the store mirror knows the fault is local
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Emit(key, f)
	}
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Save(f); err != nil {
			s.cfg.Logger.Error("Failed to cache submitted fault", "id", f.ID, "error", err)
		}
	}
	for _, sink := range s.cfg.Sinks {
		sink.WriteFault(f)
	}
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.FlyTo(key, loc)
	}

	return f, nil
}

// Reset deletes every fault on the data service, then clears the local cache.
func (s *Simulator) Reset(ctx context.Context) error {
	if err := s.cfg.Client.DeleteCuts(ctx); err != nil {
		return classify("", err)
	}
	s.cfg.Logger.Info("Simulation reset")

	if s.cfg.Store == nil {
		return nil
	}
	if err := s.cfg.Store.Clear(); err != nil && !errors.Is(err, storage.ErrNotInitialized) {
		return fmt.Errorf("clearing fault cache: %w", err)
	}
	return nil
}

// boundsFor returns the bounds to validate against. Without a route or
// configured bounds only the fault type can be checked.
func boundsFor(seg segment.Config, r *route.Route) (core.Bounds, bool) {
	if r != nil && r.Len() > 0 {
		return r.Bounds(), true
	}
	if b := seg.ConfiguredBounds(); b != nil {
		return *b, false
	}
	return core.Bounds{MinKm: math.Inf(-1), MaxKm: math.Inf(1)}, false
}
