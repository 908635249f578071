// Package influx records simulated faults and pane status as InfluxDB points.
// When the server cannot be reached at startup, points are appended to a
// gzipped line protocol file instead so they can be imported later.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/engine"
	"github.com/cablewatch/cablemap/internal/queue"
	"github.com/cablewatch/cablemap/pkg/core"
)

const (
	MeasurementFault      = "fault"
	MeasurementPaneStatus = "pane_status"

	defaultFlushInterval = time.Second
	maxPending           = 10000
)

// ErrDisabled is returned by Connect when the sink is switched off.
var ErrDisabled = errors.New("influx sink disabled")

// PointWriter accepts points for delivery.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
	Flush() error
	Close() error
}

// Sink queues points and flushes them to a PointWriter on an interval.
type Sink struct {
	writer   PointWriter
	pending  *queue.Queue[*influxdb2_write.Point]
	interval time.Duration
	log      *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// NewSink creates a sink over w. A zero interval uses one second.
func NewSink(w PointWriter, interval time.Duration, log *slog.Logger) *Sink {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		writer:   w,
		pending:  queue.New[*influxdb2_write.Point](maxPending),
		interval: interval,
		log:      log.With("component", "influx"),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Connect builds a sink from configuration. It writes to the server when it
// answers a ping and to cfg.BackupPath otherwise.
func Connect(ctx context.Context, cfg config.InfluxConfig, log *slog.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = slog.Default()
	}

	client := influxdb2.NewClientWithOptions(cfg.URL(), cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)
	running, err := client.Ping(ctx)
	if err == nil && running {
		log.Info("InfluxDB client initialized", "url", cfg.URL(), "bucket", cfg.Bucket)
		return NewSink(newServerWriter(client, cfg.Org, cfg.Bucket, log), cfg.FlushInterval, log), nil
	}
	client.Close()

	log.Warn("InfluxDB unreachable, writing to backup file", "url", cfg.URL(), "backupPath", cfg.BackupPath, "error", err)
	w, err := OpenBackup(cfg.BackupPath)
	if err != nil {
		return nil, err
	}
	return NewSink(w, cfg.FlushInterval, log), nil
}

// Start launches the flush loop.
func (s *Sink) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Close flushes what is queued and closes the writer.
func (s *Sink) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)
		started := true
		s.startOnce.Do(func() { started = false })
		if started {
			<-s.done
		}
		s.flush()
		err = s.writer.Close()
	})
	return err
}

// WriteFault queues a point for an accepted fault. It never blocks.
func (s *Sink) WriteFault(f core.FaultEvent) {
	s.push(FaultPoint(f))
}

// WriteStatus queues a point for a pane status sample.
func (s *Sink) WriteStatus(st engine.Status, at time.Time) {
	s.push(StatusPoint(st, at))
}

func (s *Sink) push(p *influxdb2_write.Point) {
	if n := s.pending.Push(p); n > 0 {
		s.log.Warn("Point backlog full, dropped oldest", "dropped", n, "total", s.pending.Dropped())
	}
}

// Pending returns the number of queued points.
func (s *Sink) Pending() int { return s.pending.Len() }

func (s *Sink) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Sink) flush() {
	points := s.pending.Drain()
	if len(points) == 0 {
		return
	}
	for _, p := range points {
		if err := s.writer.WritePoint(p); err != nil {
			s.log.Error("Error writing point", "measurement", p.Name(), "error", err)
		}
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Error("Error flushing points", "count", len(points), "error", err)
		return
	}
	s.log.Debug("Flushed points", "count", len(points))
}

// FaultPoint describes an accepted fault.
func FaultPoint(f core.FaultEvent) *influxdb2_write.Point {
	fields := map[string]any{
		"distance_km": f.DistanceKm,
		"latitude":    f.Latitude,
		"longitude":   f.Longitude,
		"id":          f.ID,
	}
	if f.Depth.Known {
		fields["depth_m"] = f.Depth.Meters
	}
	ts := f.SimulatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2_write.NewPoint(MeasurementFault, map[string]string{
		"cable":      f.Segment.CableSystem,
		"segment":    f.Segment.SegmentID,
		"fault_type": f.Type.String(),
	}, fields, ts)
}

// StatusPoint describes one pane status sample.
func StatusPoint(st engine.Status, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementPaneStatus, map[string]string{
		"pane": st.Key,
	}, map[string]any{
		"route_loaded":   st.RouteLoaded,
		"waypoints":      st.Waypoints,
		"markers":        st.Markers,
		"open_popups":    st.OpenPopups,
		"unplaced":       st.Unplaced,
		"pending":        st.Pending,
		"route_failures": st.RoutePoller.Failures,
	}, at)
}

type serverWriter struct {
	client influxdb2.Client
	api    influxdb2_api.WriteAPI
}

func newServerWriter(client influxdb2.Client, org, bucket string, log *slog.Logger) *serverWriter {
	w := client.WriteAPI(org, bucket)
	go func() {
		for err := range w.Errors() {
			log.Error("Error sending data to InfluxDB", "bucket", bucket, "error", err)
		}
	}()
	return &serverWriter{client: client, api: w}
}

func (w *serverWriter) WritePoint(p *influxdb2_write.Point) error {
	w.api.WritePoint(p)
	return nil
}

func (w *serverWriter) Flush() error {
	w.api.Flush()
	return nil
}

func (w *serverWriter) Close() error {
	w.client.Close()
	return nil
}

// BackupWriter appends gzipped line protocol to a file.
type BackupWriter struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
}

// OpenBackup opens path for appending.
func OpenBackup(path string) (*BackupWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating backup file: %w", err)
	}
	return &BackupWriter{file: file, gz: gzip.NewWriter(file)}, nil
}

// WritePoint appends one line.
func (w *BackupWriter) WritePoint(p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := w.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Flush pushes buffered data to the file.
func (w *BackupWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gz.Flush()
}

// Close finishes the gzip stream and closes the file.
func (w *BackupWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.gz.Close(), w.file.Close())
}
