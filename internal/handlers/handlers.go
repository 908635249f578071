// Package handlers implements the commands map clients send over their
// WebSocket session: submitting a simulated cut, resetting the simulation,
// reporting popup interactions and requesting a fresh snapshot.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cablewatch/cablemap/internal/dispatcher"
	"github.com/cablewatch/cablemap/pkg/core"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

// Submitter creates and clears simulated faults.
type Submitter interface {
	Submit(ctx context.Context, key string, distanceKm float64, t core.FaultType) (core.FaultEvent, error)
	Reset(ctx context.Context) error
}

// Panes forwards interactions to the engines.
type Panes interface {
	PopupState(key, id, event string, open bool) error
	ClearLocal()
}

// Sessions delivers snapshots to one client.
type Sessions interface {
	Snapshot(key string) streaming.SnapshotPayload
	Send(session string, data []byte) error
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Simulator Submitter
	Panes     Panes
	Sessions  Sessions
	Logger    *slog.Logger
}

// Service provides the command handlers.
type Service struct {
	deps Dependencies
	log  *slog.Logger
}

// NewService creates a new handler service.
func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: deps, log: log.With("component", "handlers")}
}

// RegisterHandlers registers every command with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Submissions and resets reply with the outcome, so they stay synchronous
	d.Register(streaming.TypeSubmitCut, s.handleSubmitCut, dispatcher.Logged())
	d.Register(streaming.TypeResetSimulation, s.handleReset, dispatcher.Logged())

	// Hover traffic is high volume and fire-and-forget
	d.Register(streaming.TypePopupState, s.handlePopupState, dispatcher.Buffered(1000))

	d.Register(streaming.TypeRequestSnapshot, s.handleRequestSnapshot)
}

// SubmitResult is the ack payload of an accepted cut.
type SubmitResult struct {
	ID        string     `json:"id"`
	Segment   string     `json:"segment"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Depth     core.Depth `json:"depth"`
}

func (s *Service) handleSubmitCut(ctx context.Context, e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[streaming.SubmitCutPayload](e)
	if err != nil {
		return nil, err
	}
	if p.Segment == "" {
		return nil, &fieldError{field: "segment", msg: "segment is required"}
	}
	km := float64(p.DistanceKm)
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return nil, &fieldError{field: "distance", msg: "distance must be a number"}
	}
	t, err := core.ParseFaultType(p.FaultType)
	if err != nil {
		return nil, &fieldError{field: "faultType", msg: err.Error()}
	}

	f, err := s.deps.Simulator.Submit(ctx, p.Segment, km, t)
	if err != nil {
		return nil, err
	}
	s.log.Info("Fault simulated", "id", f.ID, "segment", p.Segment, "distanceKm", km, "type", f.Type.String(), "session", e.Session)
	return SubmitResult{
		ID:        f.ID,
		Segment:   p.Segment,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Depth:     f.Depth,
	}, nil
}

func (s *Service) handleReset(ctx context.Context, e dispatcher.Event) (any, error) {
	if err := s.deps.Simulator.Reset(ctx); err != nil {
		return nil, err
	}
	s.deps.Panes.ClearLocal()
	s.log.Info("Simulation reset", "session", e.Session)
	return "reset", nil
}

func (s *Service) handlePopupState(_ context.Context, e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[streaming.PopupStatePayload](e)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &fieldError{field: "id", msg: "marker id is required"}
	}
	return nil, s.deps.Panes.PopupState(p.Pane, p.ID, p.Event, p.Open)
}

func (s *Service) handleRequestSnapshot(_ context.Context, e dispatcher.Event) (any, error) {
	var p streaming.RequestSnapshotPayload
	if len(e.Payload) > 0 {
		decoded, err := dispatcher.Decode[streaming.RequestSnapshotPayload](e)
		if err != nil {
			return nil, err
		}
		p = decoded
	}

	data, err := streaming.Encode(streaming.TypeSnapshot, s.deps.Sessions.Snapshot(p.Pane))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.deps.Sessions.Send(e.Session, data); err != nil {
		return nil, err
	}
	return "sent", nil
}

// fieldError rejects malformed input before it reaches the simulator.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string { return e.msg }
func (e *fieldError) Field() string { return e.field }
