// Package engine runs one map pane: it loads the segment's route, receives
// polled faults, reconciles them against the pane's markers and applies the
// resulting effects to the pane's surface. All pane state is owned by a single
// goroutine; everything else talks to it through its mailbox.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cablewatch/cablemap/internal/cache"
	"github.com/cablewatch/cablemap/internal/channel"
	"github.com/cablewatch/cablemap/internal/geo"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/internal/poller"
	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/pkg/core"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

const (
	mailboxSize      = 64
	defaultFlyToZoom = 8
	// Locally emitted faults are shown until a poll includes them or this passes.
	defaultLocalTTL = 30 * time.Second
)

// ErrStopped is returned for requests made to a stopped engine.
var ErrStopped = errors.New("engine stopped")

// RouteSource fetches raw route records.
type RouteSource interface {
	FetchRoute(ctx context.Context, path string) ([]core.RouteRecord, error)
}

// RoutePublisher is implemented by surfaces that draw the route itself.
type RoutePublisher interface {
	SetRoute(r streaming.RoutePayload) error
}

// PopupCloser is implemented by surfaces that can hide a popup.
type PopupCloser interface {
	ClosePopup(h reconcile.Handle) error
}

// Config wires one engine. Segment, Routes and Surface are required.
type Config struct {
	Segment         segment.Config
	Routes          RouteSource
	Surface         reconcile.Surface
	Cache           *cache.RouteCache
	PollInterval    time.Duration
	PopupCloseDelay time.Duration
	FlyToZoom       int
	LocalTTL        time.Duration
	Metrics         *metrics.Collector
	Logger          *slog.Logger
	Now             func() time.Time
}

// Engine owns one pane.
type Engine struct {
	cfg   Config
	key   string
	log   *slog.Logger
	inbox channel.Channel[message]

	routePoller *poller.Poller[*route.Route]

	// owned by the run goroutine
	route    *route.Route
	polled   []core.FaultEvent
	havePoll bool
	lastPoll time.Time
	local    map[string]pending
	state    reconcile.State
	hovers   map[string]*popup.HoverController

	mu       sync.Mutex
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an engine. It does nothing until Start.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FlyToZoom <= 0 {
		cfg.FlyToZoom = defaultFlyToZoom
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaultLocalTTL
	}
	if cfg.PopupCloseDelay <= 0 {
		cfg.PopupCloseDelay = popup.DefaultCloseDelay
	}
	key := cfg.Segment.Key()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		key:    key,
		log:    cfg.Logger.With("pane", key),
		inbox:  channel.New[message](mailboxSize),
		local:  make(map[string]pending),
		state:  reconcile.State{},
		hovers: make(map[string]*popup.HoverController),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.routePoller = poller.New(e.fetchRoute, poller.Config[*route.Route]{
		Name:     "route:" + key,
		Interval: cfg.PollInterval,
		Policy:   poller.StopOnFirstResult,
		IsEmpty:  func(r *route.Route) bool { return r.Len() == 0 },
		OnResult: func(r *route.Route) {
			if r.Len() > 0 {
				e.post(routeLoaded{route: r})
			}
		},
		Logger:  e.log,
		Metrics: cfg.Metrics,
	})
	return e
}

// Key returns the pane key.
func (e *Engine) Key() string { return e.key }

// Start launches the owner goroutine and the route poller. parent bounds the
// engine's lifetime in addition to Stop.
func (e *Engine) Start(parent context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	go func() {
		select {
		case <-parent.Done():
			e.cancel()
		case <-e.ctx.Done():
		}
	}()

	go e.run()
	e.routePoller.Start(e.ctx)
}

// Stop cancels in-flight requests, stops the pollers and waits for the owner
// goroutine to exit. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.routePoller.Stop()

		e.mu.Lock()
		started := e.started
		e.mu.Unlock()
		if started {
			<-e.done
		}
	})
}

// Done is closed once the owner goroutine exits.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Faults delivers the latest polled records owned by this pane.
func (e *Engine) Faults(records []core.CutRecord) { e.post(faultsPolled{records: records}) }

// Seed offers cached faults to show until the first poll succeeds.
func (e *Engine) Seed(faults []core.FaultEvent) { e.post(faultsSeeded{faults: faults}) }

// Emit shows a just-submitted fault before the next poll includes it.
func (e *Engine) Emit(f core.FaultEvent) { e.post(faultEmitted{fault: f}) }

// FlyTo centres the pane on a location.
func (e *Engine) FlyTo(loc core.Location) { e.post(flyTo{loc: loc}) }

// ClearLocal forgets locally emitted faults, e.g. after a simulation reset.
func (e *Engine) ClearLocal() { e.post(clearLocal{}) }

// Popup reports a popup interaction. event is one of the streaming.Hover*
// values; an empty event sets visibility to open directly.
func (e *Engine) Popup(id, event string, open bool) {
	e.post(popupEvent{id: id, event: event, open: open})
}

// Status asks the owner goroutine for a snapshot of the pane.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := e.inbox.Send(ctx, statusRequest{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-e.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// post delivers m to the owner goroutine. It blocks only while the mailbox is
// full and gives up once the engine stops.
func (e *Engine) post(m message) {
	if err := e.inbox.Send(e.ctx, m); err != nil {
		e.log.Debug("Dropped message for stopped engine", "message", fmt.Sprintf("%T", m))
	}
}

// postAsync is for callbacks that may run on the owner goroutine itself.
func (e *Engine) postAsync(m message) {
	if err := e.inbox.TrySend(m); err != nil {
		go e.post(m)
	}
}

func (e *Engine) fetchRoute(ctx context.Context) (*route.Route, error) {
	records, err := e.cfg.Routes.FetchRoute(ctx, e.cfg.Segment.Path())
	if err != nil {
		return nil, err
	}
	r, err := route.Build(records, e.cfg.Segment.RouteOptions())
	if errors.Is(err, route.ErrEmptyRoute) {
		e.log.Warn("Route has no usable waypoints yet", "records", len(records))
		return nil, nil
	}
	return r, err
}

func (e *Engine) run() {
	defer close(e.done)
	defer e.cleanup()

	for {
		select {
		case <-e.ctx.Done():
			return
		case m := <-e.inbox.Receive():
			e.handle(m)
		}
	}
}

func (e *Engine) handle(m message) {
	switch m := m.(type) {
	case routeLoaded:
		e.setRoute(m.route)
		e.sync()
	case faultsPolled:
		e.polled = e.toEvents(m.records)
		e.havePoll = true
		e.lastPoll = e.cfg.Now()
		for _, f := range e.polled {
			delete(e.local, f.ID)
		}
		e.sync()
	case faultsSeeded:
		if e.havePoll {
			return
		}
		e.polled = m.faults
		e.sync()
	case faultEmitted:
		e.local[m.fault.ID] = pending{fault: m.fault, at: e.cfg.Now()}
		e.sync()
	case flyTo:
		if err := e.cfg.Surface.FlyTo(m.loc.Latitude, m.loc.Longitude, e.cfg.FlyToZoom); err != nil {
			e.log.Warn("Fly-to failed", "error", err)
		}
	case popupEvent:
		e.handlePopup(m)
	case popupVisible:
		e.setPopupVisible(m.id, m.open)
	case clearLocal:
		e.local = make(map[string]pending)
		e.sync()
	case statusRequest:
		m.reply <- e.status()
	}
}

func (e *Engine) setRoute(r *route.Route) {
	e.route = r
	if e.cfg.Cache != nil {
		e.cfg.Cache.Set(e.key, r)
	}
	e.log.Info("Route loaded", "waypoints", r.Len(), "dropped", r.Dropped(), "bounds", r.Bounds().String())

	pub, ok := e.cfg.Surface.(RoutePublisher)
	if !ok {
		return
	}
	waypoints := r.Waypoints()
	payload := streaming.RoutePayload{
		Pane:      e.key,
		Segment:   r.Segment(),
		Bounds:    r.Bounds(),
		LengthKm:  geo.SurfaceLengthKm(waypoints),
		Waypoints: waypoints,
		Landmarks: r.Landmarks(e.cfg.Segment.LandmarkPrefixes),
	}
	if ls, err := geo.RouteLineString(waypoints); err == nil {
		if raw, err := ls.MarshalJSON(); err == nil {
			payload.GeoJSON = raw
		}
	}
	if err := pub.SetRoute(payload); err != nil {
		e.log.Warn("Failed to publish route", "error", err)
	}
}

func (e *Engine) toEvents(records []core.CutRecord) []core.FaultEvent {
	ref := e.cfg.Segment.Ref()
	out := make([]core.FaultEvent, 0, len(records))
	for _, rec := range records {
		f, err := rec.Event(ref)
		if err != nil {
			e.log.Debug("Skipping unreadable fault", "id", rec.CutID, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out
}

// desired is the polled set plus local emits the poll has not caught up with.
func (e *Engine) desired() []core.FaultEvent {
	now := e.cfg.Now()
	out := make([]core.FaultEvent, 0, len(e.polled)+len(e.local))
	out = append(out, e.polled...)
	for _, id := range sortedKeys(e.local) {
		p := e.local[id]
		if now.Sub(p.at) > e.cfg.LocalTTL {
			delete(e.local, id)
			continue
		}
		out = append(out, p.fault)
	}
	return out
}

type pending struct {
	fault core.FaultEvent
	at    time.Time
}

func sortedKeys(m map[string]pending) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) locate(f core.FaultEvent) (core.Location, bool) {
	return route.Locate(e.route, f.DistanceKm)
}

// sync reconciles the desired faults against the pane and applies the effects.
func (e *Engine) sync() {
	next, effects := reconcile.Reconcile(e.desired(), e.state, reconcile.Options{
		Locate: e.locate,
		Now:    e.cfg.Now(),
	})
	next, err := reconcile.Apply(e.cfg.Surface, effects, next)
	if err != nil {
		e.log.Warn("Some marker updates failed", "error", err)
	}
	e.state = next

	for id, h := range e.hovers {
		if _, ok := next[id]; !ok {
			h.Stop()
			delete(e.hovers, id)
		}
	}

	if len(effects) > 0 {
		counts := reconcile.Count(effects)
		byName := make(map[string]int, len(counts))
		for k, n := range counts {
			byName[k.String()] = n
		}
		e.cfg.Metrics.ObserveEffects(e.key, byName)
		e.log.Debug("Reconciled", "markers", next.Placed(), "unplaced", len(next)-next.Placed(), "create", counts[reconcile.EffectCreate], "remove", counts[reconcile.EffectRemove], "refresh", counts[reconcile.EffectRefreshPopup])
	}
	e.cfg.Metrics.SetActiveMarkers(e.key, next.Placed())
}

func (e *Engine) handlePopup(m popupEvent) {
	entry, ok := e.state[m.id]
	if !ok || !entry.Placed() {
		return
	}
	if m.event == "" {
		if h := e.hovers[m.id]; h != nil {
			h.Sync(m.open)
		}
		e.setPopupVisible(m.id, m.open)
		return
	}

	h := e.hovers[m.id]
	if h == nil {
		id := m.id
		h = popup.NewHoverController(e.cfg.PopupCloseDelay,
			func() { e.postAsync(popupVisible{id: id, open: true}) },
			func() { e.postAsync(popupVisible{id: id, open: false}) },
		)
		// the popup may have been opened directly before any hover
		h.Sync(entry.PopupOpen)
		e.hovers[m.id] = h
	}
	switch m.event {
	case streaming.HoverMarkerEnter:
		h.MarkerEnter()
	case streaming.HoverClick:
		h.Click()
	case streaming.HoverMarkerLeave:
		h.MarkerLeave()
	case streaming.HoverPopupEnter:
		h.PopupEnter()
	case streaming.HoverPopupLeave:
		h.PopupLeave()
	default:
		e.log.Debug("Unknown popup event", "event", m.event)
	}
}

func (e *Engine) setPopupVisible(id string, open bool) {
	entry, ok := e.state[id]
	if !ok || !entry.Placed() || entry.PopupOpen == open {
		return
	}
	e.state.SetPopupOpen(id, open)

	var err error
	if open {
		err = e.cfg.Surface.OpenPopup(entry.Handle)
	} else if closer, ok := e.cfg.Surface.(PopupCloser); ok {
		err = closer.ClosePopup(entry.Handle)
	}
	if err != nil {
		e.log.Warn("Popup update failed", "id", id, "error", err)
	}
}

func (e *Engine) status() Status {
	s := Status{
		Key:         e.key,
		RouteLoaded: e.route != nil,
		Markers:     e.state.Placed(),
		Unplaced:    len(e.state.Unplaced()),
		OpenPopups:  len(e.state.OpenPopups()),
		Pending:     len(e.local),
		LastPoll:    e.lastPoll,
		RoutePoller: e.routePoller.Stats(),
	}
	if e.route != nil {
		s.Waypoints = e.route.Len()
		s.Bounds = e.route.Bounds()
	}
	return s
}

func (e *Engine) cleanup() {
	for id, h := range e.hovers {
		h.Stop()
		delete(e.hovers, id)
	}
	e.state = reconcile.State{}
	if e.cfg.Cache != nil {
		e.cfg.Cache.Delete(e.key)
	}
}
