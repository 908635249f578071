// Package metrics exposes the Prometheus collectors for polling, reconciliation,
// fault submission and the WebSocket surface.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll cycle outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
	OutcomeStale   = "stale"
)

// Collector bundles the service's Prometheus metrics. A nil *Collector is a
// valid no-op recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	PollCycles       *prometheus.CounterVec
	PollDuration     *prometheus.HistogramVec
	ReconcileEffects *prometheus.CounterVec
	ActiveMarkers    *prometheus.GaugeVec
	Submissions      *prometheus.CounterVec
	SurfaceClients   prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cablemap_poll_cycles_total",
		Help: "Poll cycles by poller name and outcome (success, failure, aborted, stale).",
	}, []string{"poller", "outcome"}), "cablemap_poll_cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cablemap_poll_duration_seconds",
		Help:    "Poll fetch latency in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"poller"}), "cablemap_poll_duration_seconds")
	if err != nil {
		return nil, err
	}

	effects, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cablemap_reconcile_effects_total",
		Help: "Marker effects applied, labeled by pane and effect kind.",
	}, []string{"pane", "kind"}), "cablemap_reconcile_effects_total")
	if err != nil {
		return nil, err
	}

	markers, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cablemap_active_markers",
		Help: "Markers currently rendered per pane.",
	}, []string{"pane"}), "cablemap_active_markers")
	if err != nil {
		return nil, err
	}

	submissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cablemap_fault_submissions_total",
		Help: "Operator fault submissions by pane and result.",
	}, []string{"pane", "result"}), "cablemap_fault_submissions_total")
	if err != nil {
		return nil, err
	}

	clients, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cablemap_surface_clients",
		Help: "Connected map surface clients.",
	}), "cablemap_surface_clients")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		PollCycles:       cycles,
		PollDuration:     duration,
		ReconcileEffects: effects,
		ActiveMarkers:    markers,
		Submissions:      submissions,
		SurfaceClients:   clients,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePoll records one poll cycle.
func (c *Collector) ObservePoll(poller, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.PollCycles.WithLabelValues(poller, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		c.PollDuration.WithLabelValues(poller).Observe(elapsed.Seconds())
	}
}

// ObserveEffects adds applied effect counts for a pane.
func (c *Collector) ObserveEffects(pane string, byKind map[string]int) {
	if c == nil {
		return
	}
	for kind, n := range byKind {
		c.ReconcileEffects.WithLabelValues(pane, kind).Add(float64(n))
	}
}

// SetActiveMarkers sets the rendered marker count for a pane.
func (c *Collector) SetActiveMarkers(pane string, n int) {
	if c == nil {
		return
	}
	c.ActiveMarkers.WithLabelValues(pane).Set(float64(n))
}

// ObserveSubmission counts a submission result such as "ok" or "duplicate".
func (c *Collector) ObserveSubmission(pane, result string) {
	if c == nil {
		return
	}
	c.Submissions.WithLabelValues(pane, result).Inc()
}

// AddSurfaceClients adjusts the connected client gauge by delta.
func (c *Collector) AddSurfaceClients(delta int) {
	if c == nil {
		return
	}
	c.SurfaceClients.Add(float64(delta))
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}
