package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/hub"
	"plant-monitor/backend/pkg/apidoc"
	"plant-monitor/backend/pkg/mqtt"
)

const (
	soilTopic  = "demo/feeds/soil"
	lightTopic = "demo/feeds/light"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingConn is a hub.Conn that keeps every message.
type recordingConn struct {
	mu   sync.Mutex
	msgs []string
}

func (c *recordingConn) ID() string { return "rec" }

func (c *recordingConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, string(msg))

	return true
}

func (c *recordingConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.msgs...)
}

// fakeMessage implements the paho Message interface.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestIngestor(t *testing.T, capacity int) (*Ingestor, *history.Store, *recordingConn) {
	t.Helper()

	l := testLogger()
	store := history.NewStore(capacity, history.DefaultChannels()...)
	b := hub.NewBroadcaster(l)

	conn := &recordingConn{}
	b.Register(conn)

	in, err := New(l, store, b, map[history.Channel]string{
		history.ChannelSoil:  soilTopic,
		history.ChannelLight: lightTopic,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return in, store, conn
}

func snapshot(t *testing.T, store *history.Store, ch history.Channel) []history.Reading {
	t.Helper()

	buf, ok := store.Buffer(ch)
	if !ok {
		t.Fatalf("no buffer for %s", ch)
	}

	return buf.Snapshot()
}

func TestHandleMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		topic     string
		payload   string
		wantValue float64
		accepted  bool
	}{
		{name: "integer", topic: soilTopic, payload: "41", wantValue: 41, accepted: true},
		{name: "decimal with whitespace", topic: soilTopic, payload: " 12.5\n", wantValue: 12.5, accepted: true},
		{name: "negative", topic: lightTopic, payload: "-3", wantValue: -3, accepted: true},
		{name: "exponent", topic: lightTopic, payload: "1e3", wantValue: 1000, accepted: true},
		{name: "text", topic: soilTopic, payload: "abc"},
		{name: "empty", topic: soilTopic, payload: ""},
		{name: "json object", topic: soilTopic, payload: `{"value":1}`},
		{name: "not a number", topic: soilTopic, payload: "NaN"},
		{name: "infinity", topic: soilTopic, payload: "+Inf"},
		{name: "trailing garbage", topic: soilTopic, payload: "12abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in, store, conn := newTestIngestor(t, 10)
			ch := in.topics[tt.topic]

			in.HandleMessage(tt.topic, []byte(tt.payload))

			readings := snapshot(t, store, ch)
			msgs := conn.messages()
			stats := in.Stats()

			if !tt.accepted {
				if len(readings) != 0 || len(msgs) != 0 {
					t.Fatalf("malformed payload changed state: readings=%v msgs=%v", readings, msgs)
				}
				if stats.Dropped != 1 || stats.Accepted != 0 {
					t.Errorf("Stats() = %+v, want one dropped", stats)
				}
				return
			}

			if len(readings) != 1 || readings[0].Value != tt.wantValue {
				t.Fatalf("readings = %v, want one with value %v", readings, tt.wantValue)
			}

			want := fmt.Sprintf(`{"event":%q,"data":{"time":%d,"value":%v}}`,
				ch.EventName(), readings[0].Time.UnixMilli(), tt.wantValue)
			if len(msgs) != 1 || msgs[0] != want {
				t.Errorf("broadcast = %v, want [%s]", msgs, want)
			}

			if stats.Accepted != 1 {
				t.Errorf("Stats() = %+v, want one accepted", stats)
			}
		})
	}
}

func TestHandleMessage_UnknownTopic(t *testing.T) {
	t.Parallel()

	in, store, conn := newTestIngestor(t, 10)

	in.HandleMessage("demo/feeds/humidity", []byte("50"))

	for _, ch := range history.DefaultChannels() {
		if n := len(snapshot(t, store, ch)); n != 0 {
			t.Errorf("%s has %d readings", ch, n)
		}
	}

	if len(conn.messages()) != 0 || in.Stats().Ignored != 1 {
		t.Errorf("messages = %v, stats = %+v", conn.messages(), in.Stats())
	}
}

func TestHandleMessage_MalformedDoesNotDisturbStream(t *testing.T) {
	t.Parallel()

	in, store, _ := newTestIngestor(t, 10)

	for _, p := range []string{"1", "oops", "2", "", "3"} {
		in.handleMessage(nil, fakeMessage{topic: soilTopic, payload: []byte(p)})
	}

	readings := snapshot(t, store, history.ChannelSoil)
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}

	for i, r := range readings {
		if r.Value != float64(i+1) {
			t.Errorf("reading %d = %v, want %d", i, r.Value, i+1)
		}
	}

	if s := in.Stats(); s.Accepted != 3 || s.Dropped != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

// 501 values into a 500 window keep the latest 500 in arrival order.
func TestHandleMessage_WindowEviction(t *testing.T) {
	t.Parallel()

	in, store, _ := newTestIngestor(t, history.DefaultCapacity)

	for i := 1; i <= 501; i++ {
		in.HandleMessage(soilTopic, []byte(fmt.Sprint(i)))
	}

	readings := snapshot(t, store, history.ChannelSoil)
	if len(readings) != 500 {
		t.Fatalf("len = %d, want 500", len(readings))
	}

	if readings[0].Value != 2 || readings[499].Value != 501 {
		t.Errorf("window = [%v .. %v], want [2 .. 501]", readings[0].Value, readings[499].Value)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	l := testLogger()
	store := history.NewStore(10, history.ChannelSoil)
	b := hub.NewBroadcaster(l)

	tests := map[string]map[history.Channel]string{
		"no topics":         {},
		"empty topic":       {history.ChannelSoil: ""},
		"channel no buffer": {history.ChannelLight: lightTopic},
	}

	for name, topics := range tests {
		if _, err := New(l, store, b, topics); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	both := history.NewStore(10, history.DefaultChannels()...)
	if _, err := New(l, both, b, map[history.Channel]string{
		history.ChannelSoil:  soilTopic,
		history.ChannelLight: soilTopic,
	}); err == nil {
		t.Error("duplicate topic: expected error")
	}
}

func TestFeedTopic(t *testing.T) {
	t.Parallel()

	if got := FeedTopic("jane", "soil"); got != "jane/feeds/soil" {
		t.Errorf("FeedTopic() = %q", got)
	}
}

func TestIngestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an MQTT broker")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	broker := mqttbroker.New(&mqttbroker.Options{InlineClient: true, Logger: testLogger()})
	if err := broker.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatal(err)
	}
	if err := broker.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})); err != nil {
		t.Fatal(err)
	}
	if err := broker.Serve(); err != nil {
		t.Fatal(err)
	}
	defer broker.Close()

	in, store, conn := newTestIngestor(t, 10)

	mb, err := mqtt.NewMQTTBuilder(testLogger(), &apidoc.NoopCollector{}, mqtt.MQTTClientOptions{
		BrokerURL:            "tcp://" + addr,
		ClientID:             "ingest-test",
		ConnectRetryInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := in.Register(mb); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mb.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer mb.Disconnect()

	// the subscription is made right after connecting, so retry until it lands
	deadline := time.Now().Add(5 * time.Second)
	for len(snapshot(t, store, history.ChannelLight)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no reading arrived through the broker")
		}

		if err := broker.Publish(lightTopic, []byte("812"), false, 0); err != nil {
			t.Fatal(err)
		}

		time.Sleep(50 * time.Millisecond)
	}

	if got := snapshot(t, store, history.ChannelLight)[0].Value; got != 812 {
		t.Errorf("value = %v, want 812", got)
	}

	if len(conn.messages()) == 0 {
		t.Error("reading was not broadcast")
	}
}
