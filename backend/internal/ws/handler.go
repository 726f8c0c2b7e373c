// Package ws serves the browser event stream over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"plant-monitor/backend/internal/poller"
	"plant-monitor/backend/internal/session"
	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second
	// Maximum inbound message size.
	maxMessageSize = 4096
	// Outbound messages buffered per connection before events are dropped.
	defaultSendQueue = 64
)

// inbound is the envelope of a client message. Data is decoded per event.
type inbound struct {
	Event types.Event     `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// locationPayload is the data of a location event. Both coordinates are required.
type locationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Handler upgrades requests and runs one read and one write pump per connection.
type Handler struct {
	l         *slog.Logger
	sessions  *session.Manager
	upgrader  websocket.Upgrader
	pongWait  time.Duration
	sendQueue int
}

// Option configures a Handler.
type Option func(*Handler)

// WithPongWait sets how long a silent peer is kept. Pings go out at 90% of it.
func WithPongWait(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithSendQueue sets the per-connection outbound queue length.
func WithSendQueue(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendQueue = n
		}
	}
}

// NewHandler creates a WebSocket handler bound to the session manager.
func NewHandler(l *slog.Logger, sessions *session.Manager, opts ...Option) *Handler {
	h := &Handler{
		l:        l.With(slog.String("component", "ws")),
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard may be served from any origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pongWait:  defaultPongWait,
		sendQueue: defaultSendQueue,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.l.Warn("websocket upgrade failed", slog.String("remote_addr", r.RemoteAddr), utils.ErrAttr(err))
		return
	}

	c := newConn(utils.NewUUID(), wsConn, h.sendQueue)

	if _, err := h.sessions.Connect(c); err != nil {
		h.l.Warn("rejecting connection", slog.String("conn_id", c.id), utils.ErrAttr(err))
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		_ = wsConn.Close()

		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump handles inbound messages until the connection fails, then ends the session.
func (h *Handler) readPump(c *Conn) {
	defer func() {
		h.sessions.Disconnect(c.id)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.l.Info("connection dropped", slog.String("conn_id", c.id), utils.ErrAttr(err))
			}

			return
		}

		h.handleInbound(c, data)
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (h *Handler) writePump(c *Conn) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Handler) handleInbound(c *Conn, data []byte) {
	msg, err := utils.FromJSON[inbound](data)
	if err != nil {
		h.l.Warn("ignoring malformed message", slog.String("conn_id", c.id), utils.ErrAttr(err))
		return
	}

	switch msg.Event {
	case types.EventLocation:
		loc, err := utils.FromJSON[*locationPayload](msg.Data)
		if err != nil || loc == nil || loc.Latitude == nil || loc.Longitude == nil {
			h.l.Warn("ignoring malformed location", slog.String("conn_id", c.id), slog.Any("error", err))
			return
		}

		target := poller.Location{Latitude: *loc.Latitude, Longitude: *loc.Longitude}
		if err := h.sessions.HandleLocation(c.id, target); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, session.ErrUnknownSession) {
				level = slog.LevelDebug
			}

			h.l.Log(context.Background(), level, "location rejected", slog.String("conn_id", c.id), utils.ErrAttr(err))
		}
	default:
		h.l.Debug("ignoring unknown event", slog.String("conn_id", c.id), slog.String("event", string(msg.Event)))
	}
}
