// Package ingest turns upstream MQTT feed messages into readings: each one
// is appended to its channel's history and broadcast to every client.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/hub"
	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/mqtt"
)

// maxLoggedPayload caps how much of a rejected payload is logged.
const maxLoggedPayload = 64

// FeedTopic returns the Adafruit IO topic of a feed.
func FeedTopic(user, feed string) string {
	return user + "/feeds/" + feed
}

// Ingestor maps feed topics to channels. The mapping is fixed at construction.
type Ingestor struct {
	l           *slog.Logger
	store       *history.Store
	broadcaster *hub.Broadcaster
	topics      map[string]history.Channel

	accepted atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64
}

// New creates an Ingestor. topics maps each channel to its MQTT topic; every
// channel must have a buffer in store and topics must be distinct.
func New(l *slog.Logger, store *history.Store, broadcaster *hub.Broadcaster, topics map[history.Channel]string) (*Ingestor, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one feed topic is required")
	}

	in := &Ingestor{
		l:           l.With(slog.String("component", "ingest")),
		store:       store,
		broadcaster: broadcaster,
		topics:      make(map[string]history.Channel, len(topics)),
	}

	for ch, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("empty topic for channel %s", ch)
		}

		if _, ok := store.Buffer(ch); !ok {
			return nil, fmt.Errorf("no history buffer for channel %s", ch)
		}

		if other, dup := in.topics[topic]; dup {
			return nil, fmt.Errorf("topic %s used by channels %s and %s", topic, other, ch)
		}

		in.topics[topic] = ch
	}

	return in, nil
}

// Register adds one subscription per feed to the builder. It must be called before Connect.
func (in *Ingestor) Register(mb *mqtt.MQTTBuilder) error {
	title := cases.Title(language.English)

	for _, topic := range slices.Sorted(maps.Keys(in.topics)) {
		ch := in.topics[topic]

		if err := mb.RegisterSubscribe(topic, mqtt.SubscriptionSpec{
			OperationID: "receive" + title.String(string(ch)) + "Reading",
			Summary:     "Receive " + string(ch) + " readings",
			Description: "Decimal sensor value published by the " + string(ch) + " feed. " +
				"Each value is stored in the " + string(ch) + " history and broadcast as " + ch.EventName() + ".",
			Group:       "Telemetry",
			MessageType: new(float64),
			QoS:         mqtt.QoSAtMostOnce,
			Handler:     in.handleMessage,
			Examples:    map[string]any{"Reading": 41.5},
		}); err != nil {
			return fmt.Errorf("failed to register %s feed: %w", ch, err)
		}
	}

	return nil
}

func (in *Ingestor) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	in.HandleMessage(msg.Topic(), msg.Payload())
}

// HandleMessage processes one upstream message. Payloads that are not a
// finite decimal number are dropped without touching history or clients.
func (in *Ingestor) HandleMessage(topic string, payload []byte) {
	ch, ok := in.topics[topic]
	if !ok {
		in.ignored.Add(1)
		in.l.Debug("message on unmapped topic", slog.String("topic", topic))

		return
	}

	value, err := parseValue(payload)
	if err != nil {
		in.dropped.Add(1)
		in.l.Warn("dropping malformed payload",
			slog.String("channel", string(ch)),
			slog.String("payload", truncate(payload)),
			slog.String("reason", err.Error()))

		return
	}

	buf, _ := in.store.Buffer(ch)

	reading := history.NewReading(value)
	buf.Append(reading)

	delivered := in.broadcaster.BroadcastAll(ch.EventName(), reading)

	in.accepted.Add(1)
	in.l.Debug("reading relayed",
		slog.String("channel", string(ch)),
		slog.Float64("value", value),
		slog.Int("delivered", delivered))
}

// Stats returns the message counters.
func (in *Ingestor) Stats() types.IngestStats {
	return types.IngestStats{
		Accepted: in.accepted.Load(),
		Dropped:  in.dropped.Load(),
		Ignored:  in.ignored.Load(),
	}
}

func parseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, errors.New("empty payload")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a decimal number")
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}

	return v, nil
}

func truncate(payload []byte) string {
	if len(payload) <= maxLoggedPayload {
		return string(payload)
	}

	return string(payload[:maxLoggedPayload]) + "..."
}
