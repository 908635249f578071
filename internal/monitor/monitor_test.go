package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/engine"
	"github.com/cablewatch/cablemap/internal/poller"
)

type fakeSource struct {
	statuses []engine.Status
	err      error
}

func (s *fakeSource) Statuses(context.Context) ([]engine.Status, error) { return s.statuses, s.err }
func (s *fakeSource) FaultPoller() poller.Stats {
	return poller.Stats{State: poller.Fetching, Cycles: 1200, LastError: errors.New("timeout")}
}

type fakeSink struct {
	mu      sync.Mutex
	samples []engine.Status
}

func (s *fakeSink) WriteStatus(st engine.Status, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, st)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func twoPanes() *fakeSource {
	return &fakeSource{statuses: []engine.Status{
		{Key: "sjc2/s1", RouteLoaded: true, Waypoints: 40, Markers: 2},
		{Key: "sjc2/s2"},
	}}
}

func TestReport(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	svc := NewService(Dependencies{Source: twoPanes(), Now: func() time.Time { return now }})
	now = start.Add(2 * time.Hour)

	r, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Len(t, r.Panes, 2)
	assert.Equal(t, "2 hours", r.Uptime)
	assert.Equal(t, "timeout", r.FaultPoller.LastError)
	assert.Equal(t, 1200, r.FaultPoller.Cycles)
}

func TestStart_LogsWritesSinkAndFile(t *testing.T) {
	var out syncBuffer
	sink := &fakeSink{}
	path := filepath.Join(t.TempDir(), "status.json")

	svc := NewService(Dependencies{
		Source:     twoPanes(),
		Sink:       sink,
		Logger:     slog.New(slog.NewJSONHandler(&out, nil)),
		StatusFile: path,
		Interval:   10 * time.Millisecond,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, svc.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Len(t, r.Panes, 2)

	assert.Contains(t, out.String(), `"pane":"sjc2/s1"`)
	assert.Contains(t, out.String(), `"msg":"Fault poller status"`)
}

func TestStop(t *testing.T) {
	svc := NewService(Dependencies{Source: twoPanes(), Interval: time.Hour})
	svc.Stop()

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}

func TestServeHTTP(t *testing.T) {
	svc := NewService(Dependencies{Source: twoPanes()})
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "sjc2/s1", r.Panes[0].Key)
}

func TestServeHTTP_Unavailable(t *testing.T) {
	svc := NewService(Dependencies{Source: &fakeSource{err: engine.ErrStopped}})
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
