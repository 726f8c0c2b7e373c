// Package apidoc collects metadata about the HTTP routes and MQTT operations
// registered at startup and renders it as an OpenAPI document and a
// TypeScript definitions file for the browser client.
package apidoc

// ParameterInfo describes one HTTP parameter.
type ParameterInfo struct {
	Name        string
	In          string // path, query or header
	Description string
	Required    bool
	TypeValue   any
}

// ResponseInfo describes one HTTP response.
type ResponseInfo struct {
	Description string
	TypeValue   any
	Examples    map[string]any
}

// RouteInfo describes one HTTP operation.
type RouteInfo struct {
	OperationID string
	Method      string
	Path        string
	Summary     string
	Description string
	Group       string
	Deprecated  string
	Parameters  []ParameterInfo
	Responses   map[int]ResponseInfo
}

// MQTTTopicParameter describes a {param} segment of an MQTT topic.
type MQTTTopicParameter struct {
	Name        string
	Description string
	TypeValue   any
}

// MQTTOperationInfo describes an MQTT publication or subscription.
type MQTTOperationInfo struct {
	OperationID     string
	Topic           string
	TopicMQTT       string
	TopicParameters []MQTTTopicParameter
	Summary         string
	Description     string
	Group           string
	Deprecated      string
	QoS             byte
	Retained        bool
	TypeValue       any
	Examples        map[string]any
}

// HTTPCollector receives HTTP route metadata.
type HTTPCollector interface {
	RegisterRoute(route *RouteInfo) error
}

// MQTTCollector receives MQTT operation metadata.
type MQTTCollector interface {
	RegisterMQTTPublication(pub *MQTTOperationInfo) error
	RegisterMQTTSubscription(sub *MQTTOperationInfo) error
}

// MetadataCollector collects everything and renders the documentation.
type MetadataCollector interface {
	HTTPCollector
	MQTTCollector
	Generate() error
}

// NoopCollector discards all metadata. It is used when not generating.
type NoopCollector struct{}

var _ MetadataCollector = (*NoopCollector)(nil)

func (n *NoopCollector) RegisterRoute(*RouteInfo) error { return nil }
func (n *NoopCollector) RegisterMQTTPublication(*MQTTOperationInfo) error { return nil }
func (n *NoopCollector) RegisterMQTTSubscription(*MQTTOperationInfo) error { return nil }
func (n *NoopCollector) Generate() error { return nil }
