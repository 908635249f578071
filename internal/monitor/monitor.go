package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cablewatch/cablemap/internal/engine"
	"github.com/cablewatch/cablemap/internal/poller"
)

const defaultInterval = time.Minute

// StatusSource reports the state of every pane.
type StatusSource interface {
	Statuses(ctx context.Context) ([]engine.Status, error)
	FaultPoller() poller.Stats
}

// StatusSink records status samples, e.g. as time series.
type StatusSink interface {
	WriteStatus(st engine.Status, at time.Time)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source StatusSource
	Sink   StatusSink
	Logger *slog.Logger

	// StatusFile, when set, is rewritten with the latest report on every tick.
	StatusFile string
	Interval   time.Duration
	Now        func() time.Time
}

// Report is one status sample of the whole service.
type Report struct {
	Time        time.Time       `json:"time"`
	Uptime      string          `json:"uptime"`
	Panes       []engine.Status `json:"panes"`
	FaultPoller PollerReport    `json:"faultPoller"`
}

// PollerReport is the JSON form of poller.Stats.
type PollerReport struct {
	State       string    `json:"state"`
	Cycles      int       `json:"cycles"`
	Failures    int       `json:"failures"`
	Discarded   int       `json:"discarded"`
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
}

// Service periodically logs the status of every pane.
type Service struct {
	deps    Dependencies
	log     *slog.Logger
	started time.Time

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps:    deps,
		log:     log.With("component", "monitor"),
		started: deps.Now(),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Report collects the current status of every pane.
func (s *Service) Report(ctx context.Context) (Report, error) {
	now := s.deps.Now()
	panes, err := s.deps.Source.Statuses(ctx)
	fp := s.deps.Source.FaultPoller()
	r := Report{
		Time:   now,
		Uptime: strings.TrimSpace(humanize.RelTime(s.started, now, "", "")),
		Panes:  panes,
		FaultPoller: PollerReport{
			State:       fp.State.String(),
			Cycles:      fp.Cycles,
			Failures:    fp.Failures,
			Discarded:   fp.Discarded,
			LastSuccess: fp.LastSuccess,
		},
	}
	if fp.LastError != nil {
		r.FaultPoller.LastError = fp.LastError.Error()
	}
	return r, err
}

// ServeHTTP writes the current report as JSON.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report, err := s.Report(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// Start starts the status monitor goroutine
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.log.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.doneChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (s *Service) tick(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, s.deps.Interval)
	defer cancel()

	report, err := s.Report(tctx)
	if err != nil {
		s.log.Warn("Incomplete status report", "error", err)
	}

	for _, p := range report.Panes {
		lastPoll := "never"
		if !p.LastPoll.IsZero() {
			lastPoll = humanize.RelTime(p.LastPoll, report.Time, "ago", "from now")
		}
		s.log.Info("Pane status",
			"pane", p.Key,
			"routeLoaded", p.RouteLoaded,
			"waypoints", p.Waypoints,
			"markers", p.Markers,
			"openPopups", p.OpenPopups,
			"unplaced", p.Unplaced,
			"pending", p.Pending,
			"lastPoll", lastPoll,
		)
		if s.deps.Sink != nil {
			s.deps.Sink.WriteStatus(p, report.Time)
		}
	}
	s.log.Info("Fault poller status",
		"state", report.FaultPoller.State,
		"cycles", humanize.Comma(int64(report.FaultPoller.Cycles)),
		"failures", report.FaultPoller.Failures,
		"uptime", report.Uptime,
	)

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, report); err != nil {
			s.log.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
		}
	}
}

func writeStatusFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
