package simulator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/api"
	"github.com/cablewatch/cablemap/internal/cache"
	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/fault"
	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/internal/storage/memory"
	"github.com/cablewatch/cablemap/pkg/core"
)

const segKey = "sjc2/s1"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu      sync.Mutex
	created []core.CutRecord
	deletes int
	err     error
}

func (c *fakeClient) CreateCut(_ context.Context, cut core.CutRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.created = append(c.created, cut)
	return nil
}

func (c *fakeClient) DeleteCuts(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	return c.err
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

type recordingNotifier struct {
	emitted []core.FaultEvent
	flights []core.Location
}

func (n *recordingNotifier) Emit(_ string, f core.FaultEvent)  { n.emitted = append(n.emitted, f) }
func (n *recordingNotifier) FlyTo(_ string, loc core.Location) { n.flights = append(n.flights, loc) }

type recordingSink struct{ faults []core.FaultEvent }

func (s *recordingSink) WriteFault(f core.FaultEvent) { s.faults = append(s.faults, f) }

type fixture struct {
	sim      *Simulator
	client   *fakeClient
	routes   *cache.RouteCache
	notifier *recordingNotifier
	sink     *recordingSink
	store    *memory.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := segment.NewRegistry([]segment.Config{{CableSystem: "sjc2", SegmentID: "s1"}})
	require.NoError(t, err)

	routes := cache.NewRouteCache()
	routes.Set(segKey, route.New(core.SegmentRef{CableSystem: "sjc2", SegmentID: "s1"}, []core.Waypoint{
		{Latitude: 10, Longitude: 120, CumulativeDistanceKm: 0, Depth: core.DepthMeters(100)},
		{Latitude: 10.5, Longitude: 120.5, CumulativeDistanceKm: 10, Depth: core.DepthMeters(200)},
	}))

	store := memory.New(config.MemoryConfig{})
	require.NoError(t, store.Init())

	f := &fixture{
		client:   &fakeClient{},
		routes:   routes,
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		store:    store,
	}
	f.sim = New(Config{
		Registry: reg,
		Client:   f.client,
		Routes:   routes,
		Store:    store,
		Sinks:    []Sink{f.sink},
		Notifier: f.notifier,
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)

	ev, err := f.sim.Submit(context.Background(), segKey, 5, core.FiberBreak)
	require.NoError(t, err)

	assert.Equal(t, fault.NewID("sjc2s1", fixedNow), ev.ID)
	assert.Equal(t, core.FiberBreak, ev.Type)
	assert.InDelta(t, 10.25, ev.Latitude, 1e-9)
	assert.InDelta(t, 120.25, ev.Longitude, 1e-9)
	assert.Equal(t, core.DepthMeters(100), ev.Depth)
	assert.Equal(t, fixedNow, ev.SimulatedAt)

	require.Equal(t, 1, f.client.calls())
	assert.Equal(t, ev.ID, f.client.created[0].CutID)

	stored, ok, err := f.store.Get(ev.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ev.ID, stored.ID)

	require.Len(t, f.notifier.emitted, 1)
	require.Len(t, f.notifier.flights, 1)
	assert.InDelta(t, 10.25, f.notifier.flights[0].Latitude, 1e-9)
	assert.Len(t, f.sink.faults, 1)
}

func TestSubmit_UpperBoundInclusive(t *testing.T) {
	f := newFixture(t)

	ev, err := f.sim.Submit(context.Background(), segKey, 10, core.FullCut)
	require.NoError(t, err)
	assert.Equal(t, 10.5, ev.Latitude)
	assert.Equal(t, 120.5, ev.Longitude)
}

func TestSubmit_ValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		km   float64
		typ  core.FaultType
		want error
	}{
		{"just past max", 10.001, core.FullCut, fault.ErrDistanceOutOfBounds},
		{"below min", -0.5, core.ShuntFault, fault.ErrDistanceOutOfBounds},
		{"missing type", 5, core.FaultTypeNone, fault.ErrMissingFaultType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.sim.Submit(context.Background(), segKey, tt.km, tt.typ)

			assert.ErrorIs(t, err, tt.want)
			_, isValidation := fault.AsValidationError(err)
			assert.True(t, isValidation)
			assert.Zero(t, f.client.calls(), "no request may be made for an invalid submission")
			assert.Empty(t, f.notifier.emitted)
		})
	}
}

func TestSubmit_NoRouteIsCalculationError(t *testing.T) {
	f := newFixture(t)
	f.routes.Delete(segKey)

	_, err := f.sim.Submit(context.Background(), segKey, 5, core.FullCut)

	assert.ErrorIs(t, err, ErrCalculation)
	assert.Zero(t, f.client.calls())
}

func TestSubmit_NoRouteStillValidatesType(t *testing.T) {
	f := newFixture(t)
	f.routes.Delete(segKey)

	_, err := f.sim.Submit(context.Background(), segKey, 5, core.FaultTypeNone)

	assert.ErrorIs(t, err, fault.ErrMissingFaultType)
}

func TestSubmit_UnknownSegment(t *testing.T) {
	f := newFixture(t)

	_, err := f.sim.Submit(context.Background(), "nope/s9", 5, core.FullCut)

	assert.ErrorIs(t, err, segment.ErrUnknownSegment)
	assert.Zero(t, f.client.calls())
}

func TestSubmit_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"conflict", &api.StatusError{Method: http.MethodPost, Path: "/cable-cuts", StatusCode: http.StatusConflict}, Duplicate, false},
		{"server", &api.StatusError{Method: http.MethodPost, Path: "/cable-cuts", StatusCode: http.StatusServiceUnavailable}, Server, true},
		{"bad request", &api.StatusError{Method: http.MethodPost, Path: "/cable-cuts", StatusCode: http.StatusBadRequest}, Rejected, false},
		{"network", &api.NetworkError{Op: "POST /cable-cuts", Err: errors.New("connection refused")}, Connectivity, true},
		{"aborted", fmt.Errorf("POST /cable-cuts aborted: %w", context.Canceled), Aborted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.client.err = tt.err

			_, err := f.sim.Submit(context.Background(), segKey, 5, core.FullCut)

			var se *SubmitError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.retryable, se.Retryable())
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.notifier.emitted, "failed submissions are not emitted")

			n, cerr := f.store.Count()
			require.NoError(t, cerr)
			assert.Zero(t, n)
		})
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	_, err := f.sim.Submit(context.Background(), segKey, 5, core.FullCut)
	require.NoError(t, err)

	require.NoError(t, f.sim.Reset(context.Background()))

	assert.Equal(t, 1, f.client.deletes)
	n, err := f.store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReset_ServerError(t *testing.T) {
	f := newFixture(t)
	f.client.err = &api.StatusError{Method: http.MethodDelete, Path: "/delete-cable-cuts", StatusCode: http.StatusInternalServerError}

	err := f.sim.Reset(context.Background())

	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Server, se.Kind)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
