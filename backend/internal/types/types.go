// Package types holds the wire types shared by the HTTP API and the WebSocket
// event stream. The browser client's TypeScript definitions are generated from
// this package.
package types

// ErrorResponse is the unified error response type.
//
//nolint:errname // ErrorResponse is an API response type, not a traditional error
type ErrorResponse struct {
	// HTTP status code (internal only, not sent to client)
	StatusCode int `json:"-"`
	// Request ID for tracking
	RequestID string `json:"requestID"`
	// High-level error message
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// PingResponse is the response to a ping request.
type PingResponse struct {
	// Human-readable message
	Message string `json:"message"`
	// Status of the ping
	Status PingStatus `json:"status"`
}

// PingStatus represents the status of a ping request.
type PingStatus string

const (
	// PingStatusOK means the ping was successful.
	PingStatusOK PingStatus = "OK"
	// PingStatusError means there was an error with the ping.
	PingStatusError PingStatus = "ERROR"
)

// HealthResponse reports upstream connectivity and relay load.
type HealthResponse struct {
	// Whether the upstream MQTT connection is up
	MQTT bool `json:"mqtt"`
	// Number of connected browser clients
	Connections int `json:"connections"`
	// Upstream message counters since start
	Ingest IngestStats `json:"ingest"`
	// Newest reading per sensor channel, absent for channels with no data yet
	Latest map[string]Point `json:"latest"`
}

// IngestStats counts upstream messages by outcome.
type IngestStats struct {
	// Messages parsed and relayed
	Accepted uint64 `json:"accepted"`
	// Messages on a known topic whose payload was not a finite number
	Dropped uint64 `json:"dropped"`
	// Messages on topics with no channel
	Ignored uint64 `json:"ignored"`
}

// Point is one sensor reading on the wire.
type Point struct {
	// Arrival time in milliseconds since the Unix epoch
	Time int64 `json:"time"`
	// Sensor value
	Value float64 `json:"value"`
}

// Location is the payload of the inbound location event.
type Location struct {
	// Decimal degrees, -90 to 90
	Latitude float64 `json:"latitude"`
	// Decimal degrees, -180 to 180
	Longitude float64 `json:"longitude"`
}

// Event names an event on the WebSocket stream.
type Event string

const (
	// EventSoilUpdate carries a Point for the soil channel to every client.
	EventSoilUpdate Event = "soil_update"
	// EventLightUpdate carries a Point for the light channel to every client.
	EventLightUpdate Event = "light_update"
	// EventLocation is sent by a client to start temperature polling for its position.
	EventLocation Event = "location"
	// EventAmbientTemperature carries a number in °C, or null when unavailable, to one client.
	EventAmbientTemperature Event = "ambient_temperature"
)

// Message is the envelope of every WebSocket message in either direction.
type Message struct {
	// Event name
	Event Event `json:"event"`
	// Event payload
	Data any `json:"data"`
}
