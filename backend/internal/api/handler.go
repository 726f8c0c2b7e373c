package api

import (
	"log/slog"
	"net/http"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/router"
)

const (
	CoreGroup    = "Core"
	HistoryGroup = "History"
	StreamGroup  = "Stream"
)

// MQTTStatus reports whether the upstream client is connected.
type MQTTStatus interface {
	IsConnected() bool
}

// IngestStats reports upstream message counters.
type IngestStats interface {
	Stats() types.IngestStats
}

// ConnCounter reports the number of live client connections.
type ConnCounter interface {
	Len() int
}

// Handler serves the HTTP API.
type Handler struct {
	l      *slog.Logger
	store  *history.Store
	mqtt   MQTTStatus
	ingest IngestStats
	conns  ConnCounter
	stream http.Handler
}

// NewHandler creates the API handler. stream serves WebSocket upgrades.
func NewHandler(
	l *slog.Logger,
	store *history.Store,
	mqtt MQTTStatus,
	ingest IngestStats,
	conns ConnCounter,
	stream http.Handler,
) *Handler {
	return &Handler{
		l:      l.With(slog.String("component", "api")),
		store:  store,
		mqtt:   mqtt,
		ingest: ingest,
		conns:  conns,
		stream: stream,
	}
}

// RegisterRoutes mounts every route under /api.
func (h *Handler) RegisterRoutes(rb *router.RouteBuilder) {
	mw := NewMiddlewareHandler(h.l)

	rb.Route("/api", func(rb *router.RouteBuilder) {
		rb.Use(mw.RequestIDMiddleware)
		rb.Use(mw.LoggerMiddleware)
		rb.Use(mw.RecoveryMiddleware)

		h.RegisterPing("/ping", rb)
		h.RegisterHealth("/health", rb)
		h.RegisterHistory("/history/{channel}", rb)
		h.RegisterStream("/ws", rb)
	})
}
