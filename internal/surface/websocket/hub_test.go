package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/dispatcher"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/pkg/core"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

type commandFunc func(ctx context.Context, e dispatcher.Event) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, e dispatcher.Event) (any, error) { return f(ctx, e) }

func startHub(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := New(cfg)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env streaming.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readUntil skips envelopes until one of type want arrives.
func readUntil(t *testing.T, conn *ws.Conn, want string) streaming.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Type == want {
			return env
		}
	}
	t.Fatalf("no %s envelope received", want)
	return streaming.Envelope{}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func testMarker(id string) reconcile.Marker {
	return reconcile.Marker{
		ID:        id,
		Latitude:  1.25,
		Longitude: 104,
		Style:     reconcile.StyleFor(core.FullCut),
		Fault:     core.FaultEvent{ID: id, Type: core.FullCut},
	}
}

func TestConnect_ReceivesSnapshot(t *testing.T) {
	hub, srv := startHub(t, Config{})
	_, err := hub.Pane("sjc2/s1").AddMarker(testMarker("sjc2s1-1"), popup.Content{Title: "Full Cut"})
	require.NoError(t, err)

	conn := dial(t, srv)
	env := readEnvelope(t, conn)

	require.Equal(t, streaming.TypeSnapshot, env.Type)
	var snap streaming.SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	require.Len(t, snap.Panes, 1)
	require.Len(t, snap.Panes[0].Markers, 1)
	assert.Equal(t, "sjc2s1-1", snap.Panes[0].Markers[0].ID)
	assert.Equal(t, "Full Cut", snap.Panes[0].Markers[0].Popup.Title)
}

func TestPane_BroadcastsMutations(t *testing.T) {
	hub, srv := startHub(t, Config{})
	conn := dial(t, srv)
	readUntil(t, conn, streaming.TypeSnapshot)
	waitClients(t, hub, 1)

	pane := hub.Pane("sjc2/s1")
	h, err := pane.AddMarker(testMarker("sjc2s1-1"), popup.Content{Title: "Full Cut"})
	require.NoError(t, err)

	add := readUntil(t, conn, streaming.TypeAddMarker)
	var payload streaming.AddMarkerPayload
	require.NoError(t, json.Unmarshal(add.Payload, &payload))
	assert.Equal(t, string(h), payload.Handle)
	assert.Equal(t, "sjc2/s1", payload.Pane)
	assert.Equal(t, "#a3001b", payload.Style.Color)

	require.NoError(t, pane.OpenPopup(h))
	readUntil(t, conn, streaming.TypeOpenPopup)

	require.NoError(t, pane.SetPopupContent(h, popup.Content{Title: "Full Cut", Lines: []popup.Line{{Label: "Age", Value: "now"}}}))
	refresh := readUntil(t, conn, streaming.TypePopupContent)
	var pc streaming.PopupContentPayload
	require.NoError(t, json.Unmarshal(refresh.Payload, &pc))
	require.Len(t, pc.Popup.Lines, 1)

	require.NoError(t, pane.FlyTo(1.25, 104, 8))
	readUntil(t, conn, streaming.TypeFlyTo)

	require.NoError(t, pane.RemoveMarker(h))
	readUntil(t, conn, streaming.TypeRemoveMarker)
	assert.Zero(t, pane.Markers())
}

func TestPane_UnknownHandle(t *testing.T) {
	hub := New(Config{})
	pane := hub.Pane("p")

	assert.ErrorIs(t, pane.RemoveMarker("missing#1"), ErrUnknownHandle)
	assert.ErrorIs(t, pane.OpenPopup("missing#1"), ErrUnknownHandle)
	assert.ErrorIs(t, pane.SetPopupContent("missing#1", popup.Content{}), ErrUnknownHandle)
}

func TestPane_HandlesAreUniquePerMarker(t *testing.T) {
	pane := New(Config{}).Pane("p")

	h1, err := pane.AddMarker(testMarker("a"), popup.Content{})
	require.NoError(t, err)
	require.NoError(t, pane.RemoveMarker(h1))
	h2, err := pane.AddMarker(testMarker("a"), popup.Content{})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestSnapshot_IncludesRouteAndOpenPopups(t *testing.T) {
	hub := New(Config{})
	pane := hub.Pane("sjc2/s1")
	require.NoError(t, pane.SetRoute(streaming.RoutePayload{LengthKm: 42}))
	h, err := pane.AddMarker(testMarker("x"), popup.Content{})
	require.NoError(t, err)
	require.NoError(t, pane.OpenPopup(h))
	hub.Pane("other/s2")

	snap := hub.Snapshot("sjc2/s1")

	require.Len(t, snap.Panes, 1)
	require.NotNil(t, snap.Panes[0].Route)
	assert.Equal(t, "sjc2/s1", snap.Panes[0].Route.Pane)
	assert.Equal(t, []string{string(h)}, snap.Panes[0].OpenPopups)
	assert.Len(t, hub.Snapshot("").Panes, 2)
}

func TestCommand_AckAndError(t *testing.T) {
	seenCh := make(chan dispatcher.Event, 2)
	_, srv := startHub(t, Config{
		Commands: commandFunc(func(_ context.Context, e dispatcher.Event) (any, error) {
			seenCh <- e
			if e.Command == "bad" {
				return nil, errors.New("rejected")
			}
			return map[string]string{"id": "sjc2s1-1"}, nil
		}),
		MapError: func(command string, err error) streaming.ErrorPayload {
			return streaming.ErrorPayload{For: command, Kind: "validation", Message: err.Error(), Field: "distance"}
		},
	})
	conn := dial(t, srv)
	readUntil(t, conn, streaming.TypeSnapshot)

	require.NoError(t, conn.WriteJSON(streaming.Envelope{Type: streaming.TypeSubmitCut, Payload: json.RawMessage(`{"segment":"sjc2/s1"}`)}))
	ack := readUntil(t, conn, streaming.TypeAck)
	var am struct {
		For    string            `json:"for"`
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(ack.Payload, &am))
	assert.Equal(t, streaming.TypeSubmitCut, am.For)
	assert.Equal(t, "sjc2s1-1", am.Result["id"])
	seen := <-seenCh
	assert.NotEmpty(t, seen.Session)
	assert.JSONEq(t, `{"segment":"sjc2/s1"}`, string(seen.Payload))

	require.NoError(t, conn.WriteJSON(streaming.Envelope{Type: "bad"}))
	errEnv := readUntil(t, conn, streaming.TypeError)
	var ep streaming.ErrorPayload
	require.NoError(t, json.Unmarshal(errEnv.Payload, &ep))
	assert.Equal(t, "bad", ep.For)
	assert.Equal(t, "validation", ep.Kind)
	assert.Equal(t, "distance", ep.Field)
}

func TestMalformedMessage(t *testing.T) {
	_, srv := startHub(t, Config{})
	conn := dial(t, srv)
	readUntil(t, conn, streaming.TypeSnapshot)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	env := readUntil(t, conn, streaming.TypeError)

	var ep streaming.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "malformed", ep.Kind)
}

func TestSend_UnknownSession(t *testing.T) {
	hub := New(Config{})
	assert.ErrorIs(t, hub.Send("nope", []byte("{}")), ErrUnknownSession)
}

func TestClientGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	hub, srv := startHub(t, Config{Metrics: m})
	conn := dial(t, srv)
	waitClients(t, hub, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SurfaceClients))

	require.NoError(t, conn.Close())
	waitClients(t, hub, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SurfaceClients))
}
