package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"plant-monitor/backend/pkg/utils"
)

// Conn is a live client connection as seen by the Broadcaster.
type Conn interface {
	// ID identifies the connection for scoped emits.
	ID() string
	// Send queues an encoded message without blocking. It reports false
	// when the message could not be queued (closed or backed up).
	Send(msg []byte) bool
}

// Envelope is the wire format of every event pushed to clients.
type Envelope struct {
	// Event is the event name (e.g. "soil_update")
	Event string `json:"event"`
	// Data is the event payload
	Data json.RawMessage `json:"data"`
}

// Broadcaster fans events out to live connections. It holds only lookup
// references and never closes a connection itself.
type Broadcaster struct {
	l     *slog.Logger
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(l *slog.Logger) *Broadcaster {
	return &Broadcaster{
		l:     l.With(slog.String("component", "broadcaster")),
		conns: make(map[string]Conn),
	}
}

// Register adds c to the live set, replacing any connection with the same ID.
func (b *Broadcaster) Register(c Conn) {
	b.mu.Lock()
	b.conns[c.ID()] = c
	n := len(b.conns)
	b.mu.Unlock()

	b.l.Debug("connection registered", slog.String("conn", c.ID()), slog.Int("live", n))
}

// Unregister removes the connection from the live set. Unknown IDs are ignored.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	delete(b.conns, id)
	n := len(b.conns)
	b.mu.Unlock()

	b.l.Debug("connection unregistered", slog.String("conn", id), slog.Int("live", n))
}

// Len returns the number of live connections.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.conns)
}

// BroadcastAll delivers the event to every live connection and returns how
// many accepted it. Connections that fail are skipped for this event only.
func (b *Broadcaster) BroadcastAll(event string, payload any) int {
	msg, err := Encode(event, payload)
	if err != nil {
		b.l.Error("failed to encode event", slog.String("event", event), utils.ErrAttr(err))
		return 0
	}

	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	delivered := 0

	for _, c := range targets {
		if !c.Send(msg) {
			b.l.Debug("dropped event for connection", slog.String("event", event), slog.String("conn", c.ID()))
			continue
		}

		delivered++
	}

	return delivered
}

// EmitTo delivers the event to one connection. It is a no-op when the
// connection is no longer live.
func (b *Broadcaster) EmitTo(id string, event string, payload any) bool {
	b.mu.RLock()
	c, ok := b.conns[id]
	b.mu.RUnlock()

	if !ok {
		return false
	}

	msg, err := Encode(event, payload)
	if err != nil {
		b.l.Error("failed to encode event", slog.String("event", event), utils.ErrAttr(err))
		return false
	}

	return c.Send(msg)
}

// Encode builds the envelope bytes for an event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := utils.ToJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of %s: %w", event, err)
	}

	return utils.ToJSON(Envelope{Event: event, Data: data})
}
