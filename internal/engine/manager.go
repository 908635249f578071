package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cablewatch/cablemap/internal/cache"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/internal/poller"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/internal/storage"
	"github.com/cablewatch/cablemap/pkg/core"
)

// ErrUnknownPane is returned for keys without an engine.
var ErrUnknownPane = errors.New("unknown pane")

// Source is the data service as seen by the engines.
type Source interface {
	RouteSource
	FetchCuts(ctx context.Context) ([]core.CutRecord, error)
}

// ManagerConfig wires every pane. Registry, Source and SurfaceFor are required.
type ManagerConfig struct {
	Registry   *segment.Registry
	Source     Source
	SurfaceFor func(key string) reconcile.Surface
	Cache      *cache.RouteCache

	// Store mirrors the polled faults and seeds panes on start. Optional.
	Store storage.FaultStore

	PollInterval    time.Duration
	PopupCloseDelay time.Duration
	FlyToZoom       int
	// LocalTTL is how long a submitted fault is kept without showing up in a poll.
	LocalTTL time.Duration
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager runs one engine per registered segment and a single fault poller
// whose results are partitioned by id prefix.
type Manager struct {
	cfg     ManagerConfig
	log     *slog.Logger
	engines map[string]*Engine
	keys    []string

	faults *poller.Poller[[]core.CutRecord]

	mu       sync.Mutex
	started  bool
	emitted  map[string]time.Time
	lastIDs  string
	orphans  int
	stopOnce sync.Once
}

// NewManager creates an engine for every segment in the registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaultLocalTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "engines"),
		engines: make(map[string]*Engine),
		keys:    cfg.Registry.Keys(),
		emitted: make(map[string]time.Time),
	}
	for _, key := range m.keys {
		seg, _ := cfg.Registry.Get(key)
		m.engines[key] = New(Config{
			Segment:         seg,
			Routes:          cfg.Source,
			Surface:         cfg.SurfaceFor(key),
			Cache:           cfg.Cache,
			PollInterval:    cfg.PollInterval,
			PopupCloseDelay: cfg.PopupCloseDelay,
			FlyToZoom:       cfg.FlyToZoom,
			LocalTTL:        cfg.LocalTTL,
			Metrics:         cfg.Metrics,
			Logger:          cfg.Logger,
			Now:             cfg.Now,
		})
	}
	m.faults = poller.New(cfg.Source.FetchCuts, poller.Config[[]core.CutRecord]{
		Name:     "faults",
		Interval: cfg.PollInterval,
		Policy:   poller.PollForever,
		IsEmpty:  func([]core.CutRecord) bool { return false },
		OnResult: m.distribute,
		Logger:   m.log,
		Metrics:  cfg.Metrics,
	})
	return m
}

// Start seeds every pane from the store and starts the engines and the fault poller.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for _, key := range m.keys {
		e := m.engines[key]
		e.Start(ctx)
		m.seed(e)
	}
	m.faults.Start(ctx)
	m.log.Info("Engines started", "panes", len(m.keys), "interval", m.cfg.PollInterval)
}

// Stop stops the fault poller and then every engine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.faults.Stop()
		for _, key := range m.keys {
			m.engines[key].Stop()
		}
		m.log.Info("Engines stopped")
	})
}

// Keys returns the pane keys in order.
func (m *Manager) Keys() []string { return append([]string(nil), m.keys...) }

// Engine returns the engine of a pane.
func (m *Manager) Engine(key string) (*Engine, error) {
	e, ok := m.engines[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPane, key)
	}
	return e, nil
}

// Emit shows an accepted fault on its pane right away. The store keeps it
// until a poll has seen it or LocalTTL passes.
func (m *Manager) Emit(key string, f core.FaultEvent) {
	e, ok := m.engines[key]
	if !ok {
		return
	}
	m.mu.Lock()
	m.emitted[f.ID] = m.cfg.Now()
	m.mu.Unlock()
	e.Emit(f)
}

// FlyTo centres a pane on a location.
func (m *Manager) FlyTo(key string, loc core.Location) {
	if e, ok := m.engines[key]; ok {
		e.FlyTo(loc)
	}
}

// PopupState forwards a popup interaction to its pane.
func (m *Manager) PopupState(key, id, event string, open bool) error {
	e, err := m.Engine(key)
	if err != nil {
		return err
	}
	e.Popup(id, event, open)
	return nil
}

// ClearLocal drops every pane's not-yet-polled faults.
func (m *Manager) ClearLocal() {
	m.mu.Lock()
	clear(m.emitted)
	m.mu.Unlock()
	for _, key := range m.keys {
		m.engines[key].ClearLocal()
	}
}

// Statuses collects the status of every pane.
func (m *Manager) Statuses(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(m.keys))
	for _, key := range m.keys {
		s, err := m.engines[key].Status(ctx)
		if err != nil {
			return out, fmt.Errorf("status of %s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// FaultPoller reports the shared fault poller's counters.
func (m *Manager) FaultPoller() poller.Stats { return m.faults.Stats() }

func (m *Manager) seed(e *Engine) {
	if m.cfg.Store == nil {
		return
	}
	seg, _ := m.cfg.Registry.Get(e.Key())
	faults, err := m.cfg.Store.List(seg.Ref())
	if err != nil {
		m.log.Warn("Failed to read cached faults", "pane", e.Key(), "error", err)
		return
	}
	if len(faults) > 0 {
		m.log.Debug("Seeding pane from cache", "pane", e.Key(), "faults", len(faults))
		e.Seed(faults)
	}
}

// distribute runs on the poller goroutine.
func (m *Manager) distribute(records []core.CutRecord) {
	owned, orphans := m.cfg.Registry.Partition(records)
	if len(orphans) != m.orphans {
		m.orphans = len(orphans)
		if len(orphans) > 0 {
			m.log.Debug("Faults without a pane", "count", len(orphans))
		}
	}
	for _, key := range m.keys {
		m.engines[key].Faults(owned[key])
	}
	m.mirror(owned)
}

// mirror writes the polled faults to the store whenever the polled id set
// changes, and drops stored faults that are neither polled nor recently emitted.
func (m *Manager) mirror(owned map[string][]core.CutRecord) {
	if m.cfg.Store == nil {
		return
	}
	var events []core.FaultEvent
	polled := make(map[string]struct{})
	for _, key := range m.keys {
		seg, _ := m.cfg.Registry.Get(key)
		for _, rec := range owned[key] {
			f, err := rec.Event(seg.Ref())
			if err != nil {
				continue
			}
			events = append(events, f)
			polled[f.ID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(polled))
	for id := range polled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	joined := strings.Join(ids, ",")
	if joined == m.lastIDs {
		return
	}

	stored, err := m.cfg.Store.List(core.SegmentRef{})
	if err != nil {
		m.log.Warn("Failed to read fault cache", "error", err)
		return
	}
	recent := m.recentEmits(polled)
	var stale []string
	for _, f := range stored {
		_, isPolled := polled[f.ID]
		_, isRecent := recent[f.ID]
		if !isPolled && !isRecent {
			stale = append(stale, f.ID)
		}
	}

	for _, f := range events {
		if err := m.cfg.Store.Save(f); err != nil {
			m.log.Warn("Failed to cache fault", "id", f.ID, "error", err)
			return
		}
	}
	if err := m.cfg.Store.Delete(stale...); err != nil {
		m.log.Warn("Failed to drop stale cached faults", "count", len(stale), "error", err)
		return
	}
	m.lastIDs = joined
}

// recentEmits returns the emitted ids still within LocalTTL. Expired ids and
// ids a poll has seen are forgotten.
func (m *Manager) recentEmits(polled map[string]struct{}) map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.cfg.Now()
	out := make(map[string]struct{}, len(m.emitted))
	for id, at := range m.emitted {
		if _, ok := polled[id]; ok || now.Sub(at) > m.cfg.LocalTTL {
			delete(m.emitted, id)
			continue
		}
		out[id] = struct{}{}
	}
	return out
}
