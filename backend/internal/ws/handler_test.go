package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"plant-monitor/backend/internal/hub"
	"plant-monitor/backend/internal/poller"
	"plant-monitor/backend/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lookupFunc func(ctx context.Context, loc poller.Location) (float64, error)

func (f lookupFunc) AmbientTemperature(ctx context.Context, loc poller.Location) (float64, error) {
	return f(ctx, loc)
}

type fixture struct {
	broadcaster *hub.Broadcaster
	sessions    *session.Manager
	server      *httptest.Server
}

func newFixture(t *testing.T, lookup poller.Lookup) *fixture {
	t.Helper()

	l := testLogger()
	b := hub.NewBroadcaster(l)
	m := session.NewManager(l, b, lookup, time.Hour)
	srv := httptest.NewServer(NewHandler(l, m))

	t.Cleanup(func() {
		m.Shutdown()
		srv.Close()
	})

	return &fixture{broadcaster: b, sessions: m, server: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	return string(data)
}

func fixedLookup(v float64) poller.Lookup {
	return lookupFunc(func(context.Context, poller.Location) (float64, error) { return v, nil })
}

func TestHandler_LocationYieldsTemperature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixedLookup(12.3))
	c := f.dial(t)

	waitFor(t, "session", func() bool { return f.sessions.Len() == 1 })

	err := c.WriteMessage(websocket.TextMessage, []byte(`{"event":"location","data":{"latitude":59.3,"longitude":18.1}}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := `{"event":"ambient_temperature","data":12.3}`
	if got := readText(t, c); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestHandler_BroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixedLookup(0))
	a := f.dial(t)
	b := f.dial(t)

	waitFor(t, "sessions", func() bool { return f.broadcaster.Len() == 2 })

	if n := f.broadcaster.BroadcastAll("soil_update", map[string]int{"value": 41}); n != 2 {
		t.Fatalf("delivered to %d connections, want 2", n)
	}

	want := `{"event":"soil_update","data":{"value":41}}`
	for _, c := range []*websocket.Conn{a, b} {
		if got := readText(t, c); got != want {
			t.Errorf("got %s, want %s", got, want)
		}
	}
}

func TestHandler_MalformedMessagesAreIgnored(t *testing.T) {
	t.Parallel()

	seen := make(chan poller.Location, 16)
	f := newFixture(t, lookupFunc(func(_ context.Context, loc poller.Location) (float64, error) {
		seen <- loc
		return 7, nil
	}))
	c := f.dial(t)

	waitFor(t, "session", func() bool { return f.sessions.Len() == 1 })

	for _, msg := range []string{
		`not json`,
		`{"event":"location"}`,
		`{"event":"location","data":null}`,
		`{"event":"location","data":{}}`,
		`{"event":"location","data":{"latitude":59.3}}`,
		`{"event":"location","data":{"longitude":18.1}}`,
		`{"event":"location","data":{"latitude":"north"}}`,
		`{"event":"location","data":{"latitude":123,"longitude":0}}`,
		`{"event":"dance","data":{}}`,
	} {
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write %q: %v", msg, err)
		}
	}

	// the connection survives and still accepts a valid location
	err := c.WriteMessage(websocket.TextMessage, []byte(`{"event":"location","data":{"latitude":1,"longitude":2}}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := `{"event":"ambient_temperature","data":7}`
	if got := readText(t, c); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	// messages are handled in order, so the valid one must be the first lookup
	select {
	case loc := <-seen:
		if loc != (poller.Location{Latitude: 1, Longitude: 2}) {
			t.Errorf("first lookup at %+v, want {1 2}", loc)
		}
	default:
		t.Fatal("lookup was not called")
	}

	select {
	case loc := <-seen:
		t.Errorf("unexpected extra lookup at %+v", loc)
	default:
	}
}

func TestHandler_ClientCloseEndsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixedLookup(1))
	c := f.dial(t)

	waitFor(t, "session", func() bool { return f.sessions.Len() == 1 })

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Close()

	waitFor(t, "session removal", func() bool { return f.sessions.Len() == 0 && f.broadcaster.Len() == 0 })
}

func TestHandler_ShutdownClosesClients(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixedLookup(1))
	c := f.dial(t)

	waitFor(t, "session", func() bool { return f.sessions.Len() == 1 })

	f.sessions.Shutdown()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}

	// new connections are refused once shut down
	late := f.dial(t)
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err = late.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected try-again-later close, got %v", err)
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	t.Parallel()

	c := newConn("a", nil, 1)

	if !c.Send([]byte("1")) {
		t.Fatal("first send should be queued")
	}

	if c.Send([]byte("2")) {
		t.Error("send on a full queue should report false")
	}

	_ = c.Close()
	_ = c.Close()

	if c.Send([]byte("3")) {
		t.Error("send after close should report false")
	}
}
