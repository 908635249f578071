// Package websocket is the map surface that streams marker mutations to
// browser clients and receives their commands.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/cablewatch/cablemap/internal/dispatcher"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/pkg/streaming"
)

// ErrUnknownSession is returned by Send for a session that is not connected.
var ErrUnknownSession = errors.New("unknown session")

// Commands receives client commands.
type Commands interface {
	Dispatch(ctx context.Context, e dispatcher.Event) (any, error)
}

// ErrorMapper turns a failed command into the payload sent back to the client.
type ErrorMapper func(command string, err error) streaming.ErrorPayload

// Config holds hub settings. All fields are optional.
type Config struct {
	Commands    Commands
	MapError    ErrorMapper
	CheckOrigin func(r *http.Request) bool
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Hub tracks connected clients and the panes they render.
type Hub struct {
	cfg      Config
	upgrader ws.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	panes   map[string]*Pane
	closed  bool
}

// New creates a Hub.
func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MapError == nil {
		cfg.MapError = func(command string, err error) streaming.ErrorPayload {
			return streaming.ErrorPayload{For: command, Kind: "error", Message: err.Error()}
		}
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		cfg: cfg,
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log:     cfg.Logger,
		clients: make(map[string]*client),
		panes:   make(map[string]*Pane),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// A new client first receives a snapshot of every pane.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := newClient(uuid.NewString(), conn, h.log)
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	h.log.Info("Map client connected", "session", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()

	if data, err := streaming.Encode(streaming.TypeSnapshot, h.Snapshot("")); err == nil {
		c.send(data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.readLoop(func(env streaming.Envelope) {
		h.handle(ctx, c, env)
	})
	cancel()

	h.remove(c)
	c.close()
	<-c.exited
	_ = conn.Close()
	h.log.Info("Map client disconnected", "session", c.id)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.cfg.Metrics.AddSurfaceClients(1)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.cfg.Metrics.AddSurfaceClients(-1)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, env streaming.Envelope) {
	if h.cfg.Commands == nil {
		c.sendError(streaming.ErrorPayload{For: env.Type, Kind: "unsupported", Message: "commands are not accepted"})
		return
	}

	result, err := h.cfg.Commands.Dispatch(ctx, dispatcher.Event{
		Command: env.Type,
		Session: c.id,
		Payload: env.Payload,
	})
	if err != nil {
		c.sendError(h.cfg.MapError(env.Type, err))
		return
	}

	data, err := streaming.Encode(streaming.TypeAck, streaming.AckMessage{For: env.Type, Result: result})
	if err != nil {
		h.log.Error("Failed to encode ack", "command", env.Type, "error", err)
		return
	}
	c.send(data)
}

// Pane returns the surface for a pane key, creating it on first use.
func (h *Hub) Pane(key string) *Pane {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panes[key]
	if !ok {
		p = newPane(key, h)
		h.panes[key] = p
	}
	return p
}

// Broadcast sends data to every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.send(data)
	}
}

// Send sends data to one session.
func (h *Hub) Send(session string, data []byte) error {
	h.mu.RLock()
	c, ok := h.clients[session]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, session)
	}
	if !c.send(data) {
		return fmt.Errorf("session %s is not accepting messages", session)
	}
	return nil
}

// Snapshot returns the current content of one pane, or of every pane when key is empty.
func (h *Hub) Snapshot(key string) streaming.SnapshotPayload {
	h.mu.RLock()
	panes := make([]*Pane, 0, len(h.panes))
	for k, p := range h.panes {
		if key == "" || k == key {
			panes = append(panes, p)
		}
	}
	h.mu.RUnlock()

	sort.Slice(panes, func(i, j int) bool { return panes[i].key < panes[j].key })
	out := streaming.SnapshotPayload{Panes: make([]streaming.PaneSnapshot, 0, len(panes))}
	for _, p := range panes {
		out.Panes = append(out.Panes, p.snapshot())
	}
	return out
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		<-c.exited
		_ = c.conn.Close()
	}
}
