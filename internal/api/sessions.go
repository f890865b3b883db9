package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/mapdeck/mapdeck/internal/canvas"
	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
	"github.com/mapdeck/mapdeck/internal/shell"
)

// SessionHandler exposes per-session editor operations: each browser tab
// opens one session whose shell owns the canvas and editing state.
type SessionHandler struct {
	shells  *shell.Manager
	sources *service.SourceService
}

func NewSessionHandler(shells *shell.Manager, sources *service.SourceService) *SessionHandler {
	return &SessionHandler{shells: shells, sources: sources}
}

func (h *SessionHandler) RegisterSessions(api huma.API) {
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{sid}", h.CloseSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{sid}", h.GetSession, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{sid}/map/{mapId}", h.OpenMap, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{sid}/basemap", h.SetBasemap, huma.OperationTags("sessions"))

	huma.Post(api, "/api/v1/sessions/{sid}/view/layers/{id}", h.AddViewLayer, huma.OperationTags("view"))
	huma.Delete(api, "/api/v1/sessions/{sid}/view/layers/{id}", h.RemoveViewLayer, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/sessions/{sid}/view/order", h.ReorderView, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/sessions/{sid}/view/layers/{id}/opacity", h.SetOpacity, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/sessions/{sid}/view/layers/{id}/visibility", h.SetVisibility, huma.OperationTags("view"))
	huma.Post(api, "/api/v1/sessions/{sid}/view/layers/{id}/fit", h.FitLayer, huma.OperationTags("view"))

	huma.Post(api, "/api/v1/sessions/{sid}/draw/start", h.StartDrawing, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/mode", h.SetDrawMode, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/cancel", h.CancelDrawing, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/import", h.Import, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/import-source/{name}", h.ImportSource, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/edit/{id}", h.EditLayer, huma.OperationTags("draw"))
	huma.Put(api, "/api/v1/sessions/{sid}/draw/meta", h.SetSessionMeta, huma.OperationTags("draw"))
	huma.Put(api, "/api/v1/sessions/{sid}/draw/features/{id}", h.SetFeatureEntry, huma.OperationTags("draw"))
	huma.Delete(api, "/api/v1/sessions/{sid}/draw/features/{id}", h.RemoveFeature, huma.OperationTags("draw"))
	huma.Get(api, "/api/v1/sessions/{sid}/draw/features", h.GetFeatures, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/save", h.SaveLayer, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/sessions/{sid}/draw/discard", h.Discard, huma.OperationTags("draw"))
}

type SessionIDInput struct {
	SID string `path:"sid" doc:"Session ID"`
}

type SessionLayerInput struct {
	SessionIDInput
	ID string `path:"id" doc:"Layer or feature ID"`
}

type SessionBody struct {
	ID          string          `json:"id" doc:"Session ID"`
	MapID       string          `json:"mapId,omitempty" doc:"Open map ID"`
	Layers      []service.Layer `json:"layers" doc:"View layers, first renders topmost"`
	Highlighted string          `json:"highlighted,omitempty" doc:"Highlighted layer ID"`
	Ready       bool            `json:"ready" doc:"Whether the drawing engine is usable"`
}

func (h *SessionHandler) lookup(sid string) (*shell.Shell, error) {
	sh, ok := h.shells.Get(sid)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return sh, nil
}

func sessionBody(sh *shell.Shell) SessionBody {
	return SessionBody{
		ID:          sh.ID(),
		MapID:       sh.MapID(),
		Layers:      sh.Layers(),
		Highlighted: sh.Highlighted(),
		Ready:       sh.Controller().Ready(),
	}
}

type CreateSessionInput struct {
	Body struct {
		Center  [2]float64 `json:"center,omitempty" doc:"Initial center as [lng, lat]"`
		Zoom    float64    `json:"zoom,omitempty" minimum:"0" maximum:"22" doc:"Initial zoom"`
		Basemap string     `json:"basemap,omitempty" default:"streets" doc:"Basemap style key"`
	}
}

func (h *SessionHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*struct{ Body SessionBody }, error) {
	basemap := input.Body.Basemap
	if basemap == "" {
		basemap = "streets"
	}
	if !canvas.ValidBasemap(basemap) {
		return nil, huma.Error400BadRequest("unknown basemap: " + basemap)
	}
	sh := h.shells.Open(canvas.Options{
		Center:  orb.Point(input.Body.Center),
		Zoom:    input.Body.Zoom,
		Basemap: basemap,
	})
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

func (h *SessionHandler) GetSession(ctx context.Context, input *SessionIDInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

func (h *SessionHandler) CloseSession(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.shells.Close(input.SID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session closed"}}, nil
}

type OpenMapInput struct {
	SessionIDInput
	MapID string `path:"mapId" doc:"Map ID to open"`
}

func (h *SessionHandler) OpenMap(ctx context.Context, input *OpenMapInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if _, err := sh.OpenMap(input.MapID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

type BasemapInput struct {
	SessionIDInput
	Body struct {
		Basemap string `json:"basemap" required:"true" enum:"streets,satellite,terrain,dark" doc:"Basemap style key"`
	}
}

func (h *SessionHandler) SetBasemap(ctx context.Context, input *BasemapInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.Controller().SetBasemap(input.Body.Basemap)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Basemap updated"}}, nil
}

func (h *SessionHandler) AddViewLayer(ctx context.Context, input *SessionLayerInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.AddLayer(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

func (h *SessionHandler) RemoveViewLayer(ctx context.Context, input *SessionLayerInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.RemoveLayer(input.ID)
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

type ReorderInput struct {
	SessionIDInput
	Body struct {
		LayerIDs []string `json:"layerIds" required:"true" doc:"Complete view order, first renders topmost"`
	}
}

func (h *SessionHandler) ReorderView(ctx context.Context, input *ReorderInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.Reorder(input.Body.LayerIDs); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

type OpacityInput struct {
	SessionLayerInput
	Body struct {
		Opacity float64 `json:"opacity" required:"true" minimum:"0" maximum:"1" doc:"Layer opacity"`
	}
}

func (h *SessionHandler) SetOpacity(ctx context.Context, input *OpacityInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.SetLayerOpacity(input.ID, input.Body.Opacity); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

type VisibilityInput struct {
	SessionLayerInput
	Body struct {
		Visible bool `json:"visible" doc:"Whether the layer is shown"`
	}
}

func (h *SessionHandler) SetVisibility(ctx context.Context, input *VisibilityInput) (*struct{ Body SessionBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.SetLayerVisibility(input.ID, input.Body.Visible); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body SessionBody }{Body: sessionBody(sh)}, nil
}

func (h *SessionHandler) FitLayer(ctx context.Context, input *SessionLayerInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.FitLayer(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Viewport updated"}}, nil
}

type StartDrawingInput struct {
	SessionIDInput
	Body struct {
		Type  string `json:"type" required:"true" enum:"point,linestring,polygon,rectangle,circle,freehand" doc:"Geometry type to draw"`
		Color string `json:"color,omitempty" doc:"Draw color (CSS)" example:"#3388ff"`
	}
}

func (h *SessionHandler) StartDrawing(ctx context.Context, input *StartDrawingInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.Controller().StartDrawing(engine.GeometryType(input.Body.Type), input.Body.Color)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Drawing started"}}, nil
}

type DrawModeInput struct {
	SessionIDInput
	Body struct {
		Mode string `json:"mode" required:"true" enum:"select,delete,delete-selection" doc:"Interaction mode"`
	}
}

func (h *SessionHandler) SetDrawMode(ctx context.Context, input *DrawModeInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.Controller().SetDrawMode(engine.Mode(input.Body.Mode))
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Mode updated"}}, nil
}

func (h *SessionHandler) CancelDrawing(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.Controller().CancelDrawing()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Drawing cancelled"}}, nil
}

type ImportInput struct {
	SessionIDInput
	RawBody []byte `contentType:"application/geo+json"`
}

type ImportBody struct {
	Imported int    `json:"imported" doc:"Number of features queued"`
	Message  string `json:"message" doc:"Result message"`
}

func (h *SessionHandler) Import(ctx context.Context, input *ImportInput) (*struct{ Body ImportBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	n, err := sh.ImportGeoJSON(input.RawBody)
	if err != nil {
		// The client keeps its text area content; nothing was queued.
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body ImportBody }{Body: ImportBody{Imported: n, Message: "Features imported"}}, nil
}

type ImportSourceInput struct {
	SessionIDInput
	Name string `path:"name" doc:"Uploaded source file name" example:"harbor.geojson"`
}

// ImportSource queues a previously uploaded source file into the session.
func (h *SessionHandler) ImportSource(ctx context.Context, input *ImportSourceInput) (*struct{ Body ImportBody }, error) {
	if h.sources == nil {
		return nil, huma.Error400BadRequest("sources not available")
	}
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	raw, err := h.sources.Read(input.Name)
	if err != nil {
		return nil, huma.Error404NotFound("source not found: " + input.Name)
	}
	n, err := sh.ImportGeoJSON(raw)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body ImportBody }{Body: ImportBody{Imported: n, Message: "Features imported from " + input.Name}}, nil
}

func (h *SessionHandler) EditLayer(ctx context.Context, input *SessionLayerInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if err := sh.EditLayer(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Editing layer"}}, nil
}

type SessionMetaInput struct {
	SessionIDInput
	Body struct {
		Name  string `json:"name,omitempty" maxLength:"100" doc:"Layer name"`
		Color string `json:"color,omitempty" doc:"Layer base color (CSS)"`
	}
}

func (h *SessionHandler) SetSessionMeta(ctx context.Context, input *SessionMetaInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	if input.Body.Name != "" {
		sh.SetLayerName(input.Body.Name)
	}
	if input.Body.Color != "" {
		sh.SetLayerColor(input.Body.Color)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session updated"}}, nil
}

type FeatureEntryInput struct {
	SessionLayerInput
	Body struct {
		Name        string `json:"name,omitempty" doc:"Feature name"`
		Description string `json:"description,omitempty" doc:"Feature description"`
		Icon        string `json:"icon,omitempty" doc:"Point icon key"`
		LineStyle   string `json:"lineStyle,omitempty" enum:"solid,dashed,dotted" doc:"Line style"`
	}
}

func (h *SessionHandler) SetFeatureEntry(ctx context.Context, input *FeatureEntryInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.SetFeatureEntry(input.ID, metadata.Entry{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Icon:        input.Body.Icon,
		LineStyle:   metadata.LineStyle(input.Body.LineStyle),
	})
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Feature updated"}}, nil
}

func (h *SessionHandler) RemoveFeature(ctx context.Context, input *SessionLayerInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.Controller().RemoveFeature(input.ID)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Feature removed"}}, nil
}

type FeatureBody struct {
	ID          string `json:"id" doc:"Engine feature ID"`
	Type        string `json:"type" doc:"Geometry type"`
	Name        string `json:"name,omitempty" doc:"Feature name"`
	Description string `json:"description,omitempty" doc:"Feature description"`
}

func (h *SessionHandler) GetFeatures(ctx context.Context, input *SessionIDInput) (*struct{ Body []FeatureBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	features := []FeatureBody{}
	meta := sh.Session().Meta()
	for _, f := range sh.Controller().Adapter().Snapshot() {
		e, _ := meta.Get(f.ID)
		features = append(features, FeatureBody{
			ID: f.ID, Type: string(f.Type), Name: e.Name, Description: e.Description,
		})
	}
	return &struct{ Body []FeatureBody }{Body: features}, nil
}

type SavedLayerBody struct {
	Layer    service.Layer `json:"layer" doc:"Saved layer"`
	Warnings []string      `json:"warnings,omitempty" doc:"Non-fatal validation warnings"`
	Message  string        `json:"message" doc:"Result message"`
}

func (h *SessionHandler) SaveLayer(ctx context.Context, input *SessionIDInput) (*struct{ Body SavedLayerBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	saved, warnings, err := sh.SaveDrawnLayer()
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body SavedLayerBody }{Body: SavedLayerBody{
		Layer: saved, Warnings: warnings, Message: "Layer saved",
	}}, nil
}

func (h *SessionHandler) Discard(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	sh, err := h.lookup(input.SID)
	if err != nil {
		return nil, err
	}
	sh.DiscardDrawing()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Drawing discarded"}}, nil
}
