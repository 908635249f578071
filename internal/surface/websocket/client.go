package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/cablewatch/cablemap/pkg/streaming"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

// client is one connected map client with a single write goroutine.
type client struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	exited chan struct{} // closed when writeLoop returns

	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(id string, conn *ws.Conn, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger.With("session", id),
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket, pinging the
// client between messages. It returns on error or shutdown.
func (c *client) writeLoop() {
	defer close(c.exited)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				c.close()
				return
			}
		}
	}
}

// readLoop reads envelopes from the client and hands them to handle until the
// connection fails or the client is closed.
func (c *client) readLoop(handle func(streaming.Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("WebSocket read error", "error", err)
				}
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.logger.Debug("Malformed message received", "raw", string(message))
			c.sendError(streaming.ErrorPayload{For: "", Kind: "malformed", Message: "message is not a typed envelope"})
			continue
		}
		handle(env)
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *client) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return false
	}
}

func (c *client) sendError(p streaming.ErrorPayload) {
	data, err := streaming.Encode(streaming.TypeError, p)
	if err != nil {
		c.logger.Error("Failed to encode error payload", "error", err)
		return
	}
	c.send(data)
}

// close shuts down the write goroutine; the underlying connection is closed
// by the hub once the read loop exits.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
