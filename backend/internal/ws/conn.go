package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one browser WebSocket connection. Outbound messages go through a
// bounded queue drained by the write pump.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, queue int) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// ID returns the connection ID.
func (c *Conn) ID() string { return c.id }

// Send queues msg without blocking. It reports false when the connection is
// closed or its queue is full.
func (c *Conn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks the write pump to send a close frame and drop the connection.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
