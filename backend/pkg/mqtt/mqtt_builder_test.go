package mqtt

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"plant-monitor/backend/pkg/apidoc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	addr := ln.Addr().String()
	_ = ln.Close()

	return addr
}

func startBroker(t *testing.T, addr string) *mqttbroker.Server {
	t.Helper()

	srv := mqttbroker.New(&mqttbroker.Options{InlineClient: true, Logger: testLogger()})

	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatal(err)
	}

	if err := srv.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})); err != nil {
		t.Fatal(err)
	}

	if err := srv.Serve(); err != nil {
		t.Fatal(err)
	}

	return srv
}

func newTestBuilder(t *testing.T, addr string) *MQTTBuilder {
	t.Helper()

	mb, err := NewMQTTBuilder(testLogger(), &apidoc.NoopCollector{}, MQTTClientOptions{
		BrokerURL:            "tcp://" + addr,
		ClientID:             "builder-test",
		ConnectTimeout:       time.Second,
		ConnectRetryInterval: 50 * time.Millisecond,
		MaxReconnectInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	return mb
}

func subscribeSpec(received chan<- string) SubscriptionSpec {
	return SubscriptionSpec{
		OperationID: "receiveSoil",
		Summary:     "Soil readings",
		Description: "Soil moisture from the feed",
		Group:       "Telemetry",
		MessageType: new(float64),
		QoS:         QoSAtMostOnce,
		Handler: func(_ pahomqtt.Client, msg pahomqtt.Message) {
			received <- string(msg.Payload())
		},
	}
}

// publishUntilReceived republishes until the subscriber sees want. Subscriptions
// are set up asynchronously after each connect, and copies of earlier payloads
// may still be in flight, so other values are skipped.
func publishUntilReceived(t *testing.T, publish func() error, received <-chan string, want string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if err := publish(); err != nil {
			t.Logf("publish: %v", err)
		}

		select {
		case got := <-received:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("payload %q never received", want)
		case <-tick.C:
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuilderResubscribesAfterReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an MQTT broker")
	}

	addr := freeAddr(t)
	broker := startBroker(t, addr)

	received := make(chan string, 16)

	mb := newTestBuilder(t, addr)
	if err := mb.RegisterSubscribe("demo/feeds/soil", subscribeSpec(received)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mb.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer mb.Disconnect()

	publishUntilReceived(t, func() error {
		return broker.Publish("demo/feeds/soil", []byte("41"), false, 0)
	}, received, "41")

	// a fresh broker has no memory of the old subscription
	_ = broker.Close()
	waitFor(t, "connection loss", func() bool { return !mb.IsConnected() })

	broker = startBroker(t, addr)
	defer broker.Close()

	waitFor(t, "reconnect", func() bool { return mb.ConnectCount() >= 2 && mb.IsConnected() })

	publishUntilReceived(t, func() error {
		return broker.Publish("demo/feeds/soil", []byte("42"), false, 0)
	}, received, "42")
}

func TestBuilderPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an MQTT broker")
	}

	addr := freeAddr(t)
	broker := startBroker(t, addr)
	defer broker.Close()

	received := make(chan string, 16)

	mb := newTestBuilder(t, addr)
	mb.MustRegisterSubscribe("demo/feeds/light", subscribeSpec(received))
	mb.MustRegisterPublish("demo/feeds/{feed}", PublicationSpec{
		OperationID:     "publishReading",
		Summary:         "Publish a reading",
		Description:     "Simulated sensor value",
		Group:           "Telemetry",
		MessageType:     new(float64),
		TopicParameters: []TopicParameter{{Name: "feed", Description: "Feed key", Type: new(string)}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mb.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer mb.Disconnect()

	publishUntilReceived(t, func() error {
		return mb.Client().Publish(ctx, "publishReading", "demo/feeds/light", 812.5)
	}, received, "812.5")

	if err := mb.Client().Publish(ctx, "unknown", "demo/feeds/light", 1); err == nil {
		t.Error("Publish() with unknown operationID expected error")
	}

	if err := mb.RegisterSubscribe("demo/feeds/late", subscribeSpec(received)); err == nil {
		t.Error("RegisterSubscribe() after Connect expected error")
	}
}

func TestConnectHonoursContext(t *testing.T) {
	t.Parallel()

	// nothing listens here, so the first connect never completes
	mb := newTestBuilder(t, freeAddr(t))
	defer mb.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := mb.Connect(ctx); err == nil {
		t.Fatal("Connect() expected error")
	}

	if mb.IsConnected() {
		t.Error("IsConnected() = true without a broker")
	}
}

func TestNewMQTTBuilderValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]MQTTClientOptions{
		"no broker":    {ClientID: "x"},
		"no client id": {BrokerURL: "tcp://127.0.0.1:1883"},
	}

	for name, opts := range tests {
		if _, err := NewMQTTBuilder(testLogger(), &apidoc.NoopCollector{}, opts); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := NewMQTTBuilder(testLogger(), nil, MQTTClientOptions{BrokerURL: "tcp://x:1", ClientID: "x"}); err == nil {
		t.Error("nil collector: expected error")
	}
}
