package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoS is the MQTT delivery guarantee of an operation. Adafruit IO feeds
// accept 0 and 1 only.
type QoS byte

const (
	QoSAtMostOnce  QoS = 0
	QoSAtLeastOnce QoS = 1
	QoSExactlyOnce QoS = 2
)

// TopicParameter documents a {placeholder} level of a topic pattern such as
// {user}/feeds/{feed}.
type TopicParameter struct {
	Name        string
	Description string
	Type        any // e.g. new(string)
}

// PublicationSpec describes a topic this process publishes to, such as the
// simulated sensor feeds of feedsim.
type PublicationSpec struct {
	OperationID     string // unique across publications and subscriptions, e.g. "publishSimulatedSoil"
	TopicMQTT       string // set on registration from the pattern, placeholders become "+"
	Summary         string
	Description     string
	Group           string // documentation tag, e.g. "Simulation"
	Deprecated      string
	TopicParameters []TopicParameter
	MessageType     any // payload type, new(float64) for decimal feed values
	QoS             QoS
	Retained        bool
	Examples        map[string]any
}

// SubscriptionSpec describes a topic the relay consumes, such as
// <user>/feeds/soil. Handler runs on paho's ordered router goroutine, so
// messages of one subscription are handled in arrival order. The spec is
// re-subscribed after every reconnect.
type SubscriptionSpec struct {
	OperationID     string // e.g. "receiveSoilReading"
	TopicMQTT       string
	Summary         string
	Description     string
	Group           string // e.g. "Telemetry"
	Deprecated      string
	TopicParameters []TopicParameter
	MessageType     any
	Handler         mqtt.MessageHandler
	QoS             QoS
	Examples        map[string]any
}
