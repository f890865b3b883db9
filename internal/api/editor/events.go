// Package editor streams resource change events to connected clients.
package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapdeck/mapdeck/internal/humastar"
	"github.com/mapdeck/mapdeck/internal/service"
)

// EventHandler streams resource change events to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	bus *service.EventBus
}

// NewEventHandler creates a new event handler over a bus. A nil bus
// falls back to the process-wide default.
func NewEventHandler(bus *service.EventBus) *EventHandler {
	if bus == nil {
		bus = service.DefaultBus
	}
	return &EventHandler{bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/events", h.Events,
		huma.OperationTags("editor"),
	)
}

// Events holds the SSE connection open and forwards every bus event as a
// custom browser event, so clients re-fetch whatever the event names.
func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}
