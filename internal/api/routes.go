// Package api defines the Huma API routes and handlers.
package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapdeck/mapdeck/internal/geom"
	"github.com/mapdeck/mapdeck/internal/service"
	"github.com/mapdeck/mapdeck/internal/shell"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer   *service.LayerService
	Map     *service.MapService
	Comment *service.CommentService
	Source  *service.SourceService
	Shells  *shell.Manager
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Resource ID" example:"fishing-zones"`
}

type MapIDInput struct {
	MapID string `path:"mapId" doc:"Map ID" example:"harbor-plan"`
}

type LayerOutput struct {
	Body service.Layer
}

type LayersOutput struct {
	Body map[string]service.Layer
}

type MapOutput struct {
	Body service.MapConfig
}

type MapsOutput struct {
	Body map[string]service.MapConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

// CreateLayerInput is a layer plus an optional flat heatmap sample
// array, converted to GeoJSON points server-side.
type CreateLayerInput struct {
	Body struct {
		service.Layer
		HeatPoints []geom.HeatPoint `json:"heatPoints,omitempty" doc:"Heatmap samples; converted to point features with an intensity property"`
	}
}

type CreatedLayerBody struct {
	ID      string        `json:"id" doc:"Generated layer ID"`
	Layer   service.Layer `json:"layer" doc:"Created layer"`
	Message string        `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RegisterRoutes registers all REST API routes.
func RegisterRoutes(humaAPI huma.API, svc *Services) {
	huma.AutoRegister(humaAPI, NewAPIHandler(svc))
	if svc != nil && svc.Shells != nil {
		huma.AutoRegister(humaAPI, NewSessionHandler(svc.Shells, svc.Source))
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer CRUD routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

// RegisterMaps registers map CRUD and membership routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	huma.Get(api, "/api/v1/maps", h.GetMaps, huma.OperationTags("maps"))
	huma.Post(api, "/api/v1/maps", h.CreateMap, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/maps/{id}", h.GetMap, huma.OperationTags("maps"))
	huma.Put(api, "/api/v1/maps/{id}", h.PutMap, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/maps/{id}", h.DeleteMap, huma.OperationTags("maps"))
	huma.Post(api, "/api/v1/maps/{id}/layers/{layerId}", h.AttachLayer, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/maps/{id}/layers/{layerId}", h.DetachLayer, huma.OperationTags("maps"))
}

// RegisterComments registers comment routes.
func (h *APIHandler) RegisterComments(api huma.API) {
	huma.Get(api, "/api/v1/maps/{mapId}/comments", h.GetComments, huma.OperationTags("comments"))
	huma.Post(api, "/api/v1/maps/{mapId}/comments", h.CreateComment, huma.OperationTags("comments"))
	huma.Delete(api, "/api/v1/comments/{id}", h.DeleteComment, huma.OperationTags("comments"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return &LayersOutput{Body: map[string]service.Layer{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *CreateLayerInput) (*struct{ Body CreatedLayerBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	layer := input.Body.Layer
	if len(input.Body.HeatPoints) > 0 {
		if layer.Kind == "" {
			layer.Kind = service.KindHeatmap
		}
		if layer.Kind != service.KindHeatmap {
			return nil, huma.Error400BadRequest("heatPoints are only valid for heatmap layers")
		}
		layer.Data = geom.HeatmapPoints(input.Body.HeatPoints)
	}
	created, err := h.svc.Layer.Create(layer)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body CreatedLayerBody }{Body: CreatedLayerBody{
		ID: created.ID, Layer: created, Message: "Layer created",
	}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layer}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.Layer
}) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Layer.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) GetMaps(ctx context.Context, input *struct{}) (*MapsOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return &MapsOutput{Body: map[string]service.MapConfig{}}, nil
	}
	return &MapsOutput{Body: h.svc.Map.List()}, nil
}

func (h *APIHandler) CreateMap(ctx context.Context, input *struct{ Body service.MapConfig }) (*MapOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	created, err := h.svc.Map.Create(input.Body)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &MapOutput{Body: created}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *IDInput) (*MapOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	m, ok := h.svc.Map.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("map not found")
	}
	return &MapOutput{Body: m}, nil
}

func (h *APIHandler) PutMap(ctx context.Context, input *struct {
	IDInput
	Body service.MapConfig
}) (*MapOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Map.Update(input.ID, input.Body)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &MapOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteMap(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Map.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Map deleted"}}, nil
}

type MapLayerInput struct {
	IDInput
	LayerID string `path:"layerId" doc:"Layer ID"`
}

func (h *APIHandler) AttachLayer(ctx context.Context, input *MapLayerInput) (*MapOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	m, err := h.svc.Map.AttachLayer(input.ID, input.LayerID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &MapOutput{Body: m}, nil
}

func (h *APIHandler) DetachLayer(ctx context.Context, input *MapLayerInput) (*MapOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	m, err := h.svc.Map.DetachLayer(input.ID, input.LayerID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &MapOutput{Body: m}, nil
}

func (h *APIHandler) GetComments(ctx context.Context, input *MapIDInput) (*struct{ Body []service.Comment }, error) {
	if h.svc == nil || h.svc.Comment == nil {
		return &struct{ Body []service.Comment }{Body: []service.Comment{}}, nil
	}
	return &struct{ Body []service.Comment }{Body: h.svc.Comment.ListByMap(input.MapID)}, nil
}

func (h *APIHandler) CreateComment(ctx context.Context, input *struct {
	MapIDInput
	Body service.Comment
}) (*struct{ Body service.Comment }, error) {
	if h.svc == nil || h.svc.Comment == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	c := input.Body
	c.MapID = input.MapID
	created, err := h.svc.Comment.Create(c)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body service.Comment }{Body: created}, nil
}

func (h *APIHandler) DeleteComment(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Comment == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Comment.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Comment deleted"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}
