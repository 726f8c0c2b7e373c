package apidoc

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/oasdiff/yaml"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OpenAPIVersion is the OpenAPI specification version used for generated specs.
const OpenAPIVersion = "3.0.3"

// APIInfo is the document-level metadata.
type APIInfo struct {
	Title       string
	Version     string
	Description string
	Servers     []ServerInfo
}

// ServerInfo is one entry of the document's servers list.
type ServerInfo struct {
	URL         string
	Description string
}

type OpenAPICollectorOptions struct {
	GoTypesDirPath        string // Go package whose types are rendered to TypeScript
	OpenAPISpecOutputPath string // Path for generated OpenAPI YAML file
	TypeScriptOutputPath  string // Path for generated TypeScript file, skipped if empty
	APIInfo               APIInfo
}

// OpenAPICollector records registered operations and renders them on Generate.
type OpenAPICollector struct {
	l    *slog.Logger
	opts OpenAPICollectorOptions

	httpOps           map[string]*RouteInfo
	mqttPublications  map[string]*MQTTOperationInfo
	mqttSubscriptions map[string]*MQTTOperationInfo
}

var _ MetadataCollector = (*OpenAPICollector)(nil)

// NewOpenAPICollector creates a collector writing to the paths in opts.
func NewOpenAPICollector(l *slog.Logger, opts OpenAPICollectorOptions) (*OpenAPICollector, error) {
	if opts.OpenAPISpecOutputPath == "" {
		return nil, errors.New("OpenAPISpecOutputPath is required")
	}

	if opts.TypeScriptOutputPath != "" && opts.GoTypesDirPath == "" {
		return nil, errors.New("GoTypesDirPath is required when TypeScriptOutputPath is set")
	}

	return &OpenAPICollector{
		l:                 l.With(slog.String("component", "openapi-collector")),
		opts:              opts,
		httpOps:           make(map[string]*RouteInfo),
		mqttPublications:  make(map[string]*MQTTOperationInfo),
		mqttSubscriptions: make(map[string]*MQTTOperationInfo),
	}, nil
}

func (g *OpenAPICollector) RegisterRoute(route *RouteInfo) error {
	if err := g.validateUniqueOperationID(route.OperationID); err != nil {
		return err
	}

	if len(route.Responses) == 0 {
		return fmt.Errorf("route [%s] must document at least one response", route.OperationID)
	}

	for code, resp := range route.Responses {
		if resp.TypeValue == nil {
			return fmt.Errorf("response TypeValue must not be nil in route [%s] for status %d", route.OperationID, code)
		}
	}

	g.httpOps[route.OperationID] = route

	return nil
}

func (g *OpenAPICollector) RegisterMQTTPublication(pub *MQTTOperationInfo) error {
	if err := g.validateMQTTOperation(pub); err != nil {
		return err
	}

	g.mqttPublications[pub.OperationID] = pub

	return nil
}

func (g *OpenAPICollector) RegisterMQTTSubscription(sub *MQTTOperationInfo) error {
	if err := g.validateMQTTOperation(sub); err != nil {
		return err
	}

	g.mqttSubscriptions[sub.OperationID] = sub

	return nil
}

func (g *OpenAPICollector) validateMQTTOperation(op *MQTTOperationInfo) error {
	if err := g.validateUniqueOperationID(op.OperationID); err != nil {
		return err
	}

	if op.TypeValue == nil {
		return fmt.Errorf("message TypeValue must not be nil in operation [%s]", op.OperationID)
	}

	return nil
}

func (g *OpenAPICollector) validateUniqueOperationID(operationID string) error {
	if err := validateOperationID(operationID); err != nil {
		return err
	}

	if _, exists := g.mqttPublications[operationID]; exists {
		return fmt.Errorf("duplicate operationID (MQTT publication exists): %s", operationID)
	}

	if _, exists := g.mqttSubscriptions[operationID]; exists {
		return fmt.Errorf("duplicate operationID (MQTT subscription exists): %s", operationID)
	}

	if _, exists := g.httpOps[operationID]; exists {
		return fmt.Errorf("duplicate operationID (HTTP operation exists): %s", operationID)
	}

	return nil
}

// Generate writes the OpenAPI spec and, if configured, the TypeScript definitions.
func (g *OpenAPICollector) Generate() error {
	spec, err := g.BuildSpec()
	if err != nil {
		return fmt.Errorf("failed to build OpenAPI spec: %w", err)
	}

	yamlData, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal OpenAPI spec: %w", err)
	}

	if err := writeFile(g.opts.OpenAPISpecOutputPath, yamlData); err != nil {
		return fmt.Errorf("failed to write OpenAPI spec: %w", err)
	}

	g.l.Info("OpenAPI spec written", slog.String("file", g.opts.OpenAPISpecOutputPath))

	if g.opts.TypeScriptOutputPath == "" {
		return nil
	}

	ts, err := GenerateTypeScript(g.l, g.opts.GoTypesDirPath)
	if err != nil {
		return fmt.Errorf("failed to generate TypeScript: %w", err)
	}

	if err := writeFile(g.opts.TypeScriptOutputPath, []byte(ts)); err != nil {
		return fmt.Errorf("failed to write TypeScript: %w", err)
	}

	g.l.Info("TypeScript definitions written", slog.String("file", g.opts.TypeScriptOutputPath))

	return nil
}

// BuildSpec assembles the OpenAPI document from the registered operations.
// MQTT operations are listed under the x-mqtt-publications and
// x-mqtt-subscriptions extensions.
func (g *OpenAPICollector) BuildSpec() (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: OpenAPIVersion,
		Info: &openapi3.Info{
			Title:       g.opts.APIInfo.Title,
			Version:     g.opts.APIInfo.Version,
			Description: g.opts.APIInfo.Description,
		},
		Paths: openapi3.NewPaths(),
	}

	for _, server := range g.opts.APIInfo.Servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{
			URL:         server.URL,
			Description: server.Description,
		})
	}

	title := cases.Title(language.English)
	tags := map[string]struct{}{}

	for _, id := range slices.Sorted(maps.Keys(g.httpOps)) {
		route := g.httpOps[id]

		op, err := buildOperation(route, title)
		if err != nil {
			return nil, fmt.Errorf("failed to build operation [%s]: %w", id, err)
		}

		spec.AddOperation(route.Path, route.Method, op)
		tags[op.Tags[0]] = struct{}{}
	}

	for _, tag := range slices.Sorted(maps.Keys(tags)) {
		spec.Tags = append(spec.Tags, &openapi3.Tag{Name: tag})
	}

	pubs, err := buildMQTTExtension(g.mqttPublications, title)
	if err != nil {
		return nil, err
	}

	subs, err := buildMQTTExtension(g.mqttSubscriptions, title)
	if err != nil {
		return nil, err
	}

	spec.Extensions = map[string]any{}
	if len(pubs) > 0 {
		spec.Extensions["x-mqtt-publications"] = pubs
	}

	if len(subs) > 0 {
		spec.Extensions["x-mqtt-subscriptions"] = subs
	}

	return spec, nil
}

func buildOperation(route *RouteInfo, title cases.Caser) (*openapi3.Operation, error) {
	op := openapi3.NewOperation()
	op.OperationID = route.OperationID
	op.Summary = route.Summary
	op.Description = route.Description
	op.Tags = []string{title.String(route.Group)}

	if route.Deprecated != "" {
		op.Deprecated = true
		op.Description = strings.TrimSpace(op.Description + "\n\nDeprecated: " + route.Deprecated)
	}

	for _, p := range route.Parameters {
		param, err := buildParameter(p)
		if err != nil {
			return nil, err
		}

		op.AddParameter(param)
	}

	var responses []openapi3.NewResponsesOption

	for _, code := range slices.Sorted(maps.Keys(route.Responses)) {
		info := route.Responses[code]

		schema, err := openapi3gen.NewSchemaRefForValue(info.TypeValue, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build schema for status %d: %w", code, err)
		}

		desc := info.Description
		if desc == "" {
			desc = http.StatusText(code)
		}

		resp := openapi3.NewResponse().WithDescription(desc).WithJSONSchemaRef(schema)

		if len(info.Examples) > 0 {
			mt := resp.Content.Get("application/json")
			mt.Examples = openapi3.Examples{}

			for name, value := range info.Examples {
				mt.Examples[name] = &openapi3.ExampleRef{Value: openapi3.NewExample(value)}
			}
		}

		responses = append(responses, openapi3.WithStatus(code, &openapi3.ResponseRef{Value: resp}))
	}

	op.Responses = openapi3.NewResponses(responses...)

	return op, nil
}

func buildParameter(p ParameterInfo) (*openapi3.Parameter, error) {
	var param *openapi3.Parameter

	switch p.In {
	case openapi3.ParameterInPath:
		param = openapi3.NewPathParameter(p.Name)
	case openapi3.ParameterInQuery:
		param = openapi3.NewQueryParameter(p.Name)
	case openapi3.ParameterInHeader:
		param = openapi3.NewHeaderParameter(p.Name)
	default:
		return nil, fmt.Errorf("unsupported parameter location %q for %s", p.In, p.Name)
	}

	schema, err := openapi3gen.NewSchemaRefForValue(p.TypeValue, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema for parameter %s: %w", p.Name, err)
	}

	param.Description = p.Description
	param.Required = p.Required || p.In == openapi3.ParameterInPath
	param.Schema = schema

	return param, nil
}

type mqttOperationDoc struct {
	OperationID string              `json:"operationId"`
	Topic       string              `json:"topic"`
	TopicMQTT   string              `json:"topicMQTT"`
	Parameters  map[string]string   `json:"parameters,omitempty"`
	Summary     string              `json:"summary"`
	Description string              `json:"description"`
	Group       string              `json:"group"`
	Deprecated  string              `json:"deprecated,omitempty"`
	QoS         byte                `json:"qos"`
	Retained    bool                `json:"retained,omitempty"`
	Message     *openapi3.SchemaRef `json:"message"`
	Examples    map[string]any      `json:"examples,omitempty"`
}

func buildMQTTExtension(ops map[string]*MQTTOperationInfo, title cases.Caser) ([]mqttOperationDoc, error) {
	docs := make([]mqttOperationDoc, 0, len(ops))

	for _, id := range slices.Sorted(maps.Keys(ops)) {
		op := ops[id]

		schema, err := openapi3gen.NewSchemaRefForValue(op.TypeValue, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build message schema for [%s]: %w", id, err)
		}

		doc := mqttOperationDoc{
			OperationID: op.OperationID,
			Topic:       op.Topic,
			TopicMQTT:   op.TopicMQTT,
			Summary:     op.Summary,
			Description: op.Description,
			Group:       title.String(op.Group),
			Deprecated:  op.Deprecated,
			QoS:         op.QoS,
			Retained:    op.Retained,
			Message:     schema,
			Examples:    op.Examples,
		}

		if len(op.TopicParameters) > 0 {
			doc.Parameters = make(map[string]string, len(op.TopicParameters))
			for _, p := range op.TopicParameters {
				doc.Parameters[p.Name] = p.Description
			}
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
