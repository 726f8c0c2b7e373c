// Package router wraps chi with a builder that records every route's
// documentation alongside its handler.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"plant-monitor/backend/pkg/apidoc"
	"plant-monitor/backend/pkg/utils"
)

// ParameterIn is where a parameter is carried.
type ParameterIn string

const (
	ParameterInPath   ParameterIn = "path"
	ParameterInQuery  ParameterIn = "query"
	ParameterInHeader ParameterIn = "header"
)

// ParameterSpec documents one parameter, keyed by name in RouteSpec.Parameters.
type ParameterSpec struct {
	In          ParameterIn
	Description string
	Required    bool
	Type        any
}

// ResponseSpec documents one response status.
type ResponseSpec struct {
	Description string
	Type        any
	Examples    map[string]any
}

// RouteSpec describes an HTTP operation.
type RouteSpec struct {
	OperationID string
	Summary     string
	Description string
	Group       string
	Deprecated  string
	Parameters  map[string]ParameterSpec
	Responses   map[int]ResponseSpec
	Handler     http.HandlerFunc

	method   string
	fullPath string
}

// RouteBuilder registers documented routes on a chi router.
type RouteBuilder struct {
	l         *slog.Logger
	router    chi.Router
	collector apidoc.HTTPCollector
	prefix    string
}

// NewRouteBuilder creates a builder on a fresh chi mux.
func NewRouteBuilder(l *slog.Logger, collector apidoc.HTTPCollector) (*RouteBuilder, error) {
	if collector == nil {
		return nil, errors.New("collector is required")
	}

	return &RouteBuilder{
		l:         l.With(slog.String("component", "route-builder")),
		router:    chi.NewRouter(),
		collector: collector,
	}, nil
}

// Router returns the underlying router.
//
//nolint:ireturn // chi.Router is the router's public surface
func (rb *RouteBuilder) Router() chi.Router {
	return rb.router
}

// Use appends middlewares to the current router.
func (rb *RouteBuilder) Use(middlewares ...func(http.Handler) http.Handler) {
	rb.router.Use(middlewares...)
}

// Route mounts a sub-router at pattern and configures it with fn.
func (rb *RouteBuilder) Route(pattern string, fn func(rb *RouteBuilder)) {
	rb.router.Route(pattern, func(r chi.Router) {
		fn(&RouteBuilder{
			l:         rb.l,
			router:    r,
			collector: rb.collector,
			prefix:    apidoc.SanitizePath(rb.prefix + pattern),
		})
	})
}

// Get registers a documented GET route.
func (rb *RouteBuilder) Get(path string, spec RouteSpec) error {
	return rb.register(http.MethodGet, path, spec)
}

// MustGet registers a documented GET route and terminates the program if an error occurs.
func (rb *RouteBuilder) MustGet(path string, spec RouteSpec) {
	if err := rb.Get(path, spec); err != nil {
		rb.l.Error("Failed to register route", slog.String("operationID", spec.OperationID), slog.String("path", path), utils.ErrAttr(err))
		os.Exit(1)
	}
}

func (rb *RouteBuilder) register(method, path string, spec RouteSpec) error {
	spec.method = method
	spec.fullPath = apidoc.SanitizePath(rb.prefix + "/" + path)

	if err := validateRouteSpec(spec); err != nil {
		return fmt.Errorf("invalid route spec for %s %s: %w", method, spec.fullPath, err)
	}

	params, err := generateParameters(spec)
	if err != nil {
		return err
	}

	responses := make(map[int]apidoc.ResponseInfo, len(spec.Responses))
	for code, resp := range spec.Responses {
		responses[code] = apidoc.ResponseInfo{
			Description: resp.Description,
			TypeValue:   resp.Type,
			Examples:    resp.Examples,
		}
	}

	if err := rb.collector.RegisterRoute(&apidoc.RouteInfo{
		OperationID: spec.OperationID,
		Method:      method,
		Path:        spec.fullPath,
		Summary:     spec.Summary,
		Description: spec.Description,
		Group:       spec.Group,
		Deprecated:  spec.Deprecated,
		Parameters:  params,
		Responses:   responses,
	}); err != nil {
		return fmt.Errorf("failed to register route with collector: %w", err)
	}

	rb.router.Method(method, apidoc.SanitizePath("/"+path), spec.Handler)

	rb.l.Debug("Registered route", slog.String("method", method), slog.String("path", spec.fullPath), slog.String("operationID", spec.OperationID))

	return nil
}
