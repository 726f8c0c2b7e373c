package api

import (
	"net/http"

	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/router"
)

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) error {
	RespondJSON(w, r, http.StatusOK, types.PingResponse{
		Message: "Pong", Status: types.PingStatusOK,
	})

	return nil
}

func (h *Handler) RegisterPing(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "ping",
		Summary:     "Ping the server",
		Description: "Check if the server is alive",
		Group:       CoreGroup,
		Handler:     ErrorHandler(h.Ping),
		Responses: GenerateResponses(map[int]router.ResponseSpec{
			200: {
				Description: "Successful ping response",
				Type:        types.PingResponse{},
				Examples: map[string]any{
					"Success": types.PingResponse{Message: "Pong", Status: types.PingStatusOK},
				},
			},
		}),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	resp := types.HealthResponse{
		MQTT:        h.mqtt.IsConnected(),
		Connections: h.conns.Len(),
		Ingest:      h.ingest.Stats(),
		Latest:      make(map[string]types.Point),
	}

	for _, ch := range h.store.Channels() {
		buf, _ := h.store.Buffer(ch)
		if rd, ok := buf.Last(); ok {
			resp.Latest[string(ch)] = rd.Point()
		}
	}

	code := http.StatusOK
	if !resp.MQTT {
		code = http.StatusServiceUnavailable
	}

	RespondJSON(w, r, code, resp)

	return nil
}

func (h *Handler) RegisterHealth(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "health",
		Summary:     "Check server health",
		Description: "Report upstream connectivity, connected clients, ingest counters and the newest reading per channel",
		Group:       CoreGroup,
		Handler:     ErrorHandler(h.Health),
		Responses: GenerateResponses(map[int]router.ResponseSpec{
			200: {
				Description: "Upstream connected",
				Type:        types.HealthResponse{},
				Examples: map[string]any{
					"Success": types.HealthResponse{
						MQTT:        true,
						Connections: 2,
						Ingest:      types.IngestStats{Accepted: 120, Dropped: 1},
						Latest: map[string]types.Point{
							"soil":  {Time: 1717171717000, Value: 41.5},
							"light": {Time: 1717171712000, Value: 830},
						},
					},
				},
			},
			503: {
				Description: "Upstream disconnected",
				Type:        types.HealthResponse{},
				Examples: map[string]any{
					"MQTT Unavailable": types.HealthResponse{MQTT: false, Connections: 2},
				},
			},
		}),
	})
}
