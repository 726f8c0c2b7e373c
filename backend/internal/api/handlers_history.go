package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/types"
	"plant-monitor/backend/pkg/router"
)

// History returns the buffered readings of one channel, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) error {
	ch := history.Channel(chi.URLParam(r, "channel"))

	buf, ok := h.store.Buffer(ch)
	if !ok {
		return NewError(http.StatusNotFound, "Unknown channel '"+string(ch)+"'")
	}

	readings := buf.Snapshot()
	points := make([]types.Point, len(readings))

	for i, rd := range readings {
		points[i] = rd.Point()
	}

	RespondJSON(w, r, http.StatusOK, points)

	return nil
}

func (h *Handler) RegisterHistory(path string, rb *router.RouteBuilder) {
	rb.MustGet(path, router.RouteSpec{
		OperationID: "getHistory",
		Summary:     "Get channel history",
		Description: "Return the most recent readings of a sensor channel in arrival order",
		Group:       HistoryGroup,
		Handler:     ErrorHandler(h.History),
		Parameters: map[string]router.ParameterSpec{
			"channel": {
				In:          router.ParameterInPath,
				Description: "Sensor channel (soil or light)",
				Required:    true,
				Type:        "",
			},
		},
		Responses: GenerateResponses(map[int]router.ResponseSpec{
			200: {
				Description: "Buffered readings, oldest first",
				Type:        []types.Point{},
				Examples: map[string]any{
					"Soil": []types.Point{
						{Time: 1700000000000, Value: 41},
						{Time: 1700000060000, Value: 40.5},
					},
					"Empty": []types.Point{},
				},
			},
			404: {
				Description: "Unknown channel",
				Type:        types.ErrorResponse{},
				Examples: map[string]any{
					"Not Found": types.ErrorResponse{RequestID: zeroUUID, Message: "Unknown channel 'water'"},
				},
			},
		}),
	})
}
