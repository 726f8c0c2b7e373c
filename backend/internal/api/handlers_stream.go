package api

import (
	"net/http"

	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/router"
)

func (h *Handler) RegisterStream(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "streamEvents",
		Summary:     "Open the event stream",
		Description: "Upgrade to a WebSocket carrying soil_update, light_update and ambient_temperature events. " +
			"Clients send a location event to start temperature polling.",
		Group:   StreamGroup,
		Handler: h.stream.ServeHTTP,
		Responses: map[int]router.ResponseSpec{
			http.StatusSwitchingProtocols: {
				Description: "WebSocket established",
				Type:        types.Message{},
				Examples: map[string]any{
					"Soil Update": types.Message{
						Event: types.EventSoilUpdate,
						Data:  types.Point{Time: 1700000000000, Value: 41},
					},
					"Ambient Temperature": types.Message{Event: types.EventAmbientTemperature, Data: 12.3},
				},
			},
		},
	})
}
