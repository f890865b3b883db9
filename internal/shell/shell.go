// Package shell composes the per-user editor surface: one map view, its
// ordered layer list, the canvas controller, and the layer-authoring
// session, held together behind a single mutex.
package shell

import (
	"fmt"
	"log"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/canvas"
	"github.com/mapdeck/mapdeck/internal/editor"
	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
)

// GeometrySink receives saved layer geometry for analytical storage.
// A nil sink is valid; persistence then stops at the layer service.
type GeometrySink interface {
	SaveLayerGeometry(layerID string, fc *geojson.FeatureCollection) error
}

// Shell is one user's editing surface. It owns the view state that the
// services do not: which map is open, the resolved layer objects in
// render order, the highlighted layer, and panel visibility.
type Shell struct {
	mu sync.Mutex
	id string

	layerSvc *service.LayerService
	mapSvc   *service.MapService
	bus      *service.EventBus
	sink     GeometrySink

	ctrl    *canvas.Controller
	session *editor.Session

	mapID       string
	basemap     string
	current     []service.Layer
	highlighted string
	panelOpen   bool
}

// New wires a shell over a freshly constructed canvas controller. The
// controller's callbacks route into the editing session and onto the
// event bus so connected clients observe the changes.
func New(id string, ctrl *canvas.Controller, layerSvc *service.LayerService, mapSvc *service.MapService, bus *service.EventBus, sink GeometrySink) *Shell {
	sh := &Shell{
		id:       id,
		layerSvc: layerSvc,
		mapSvc:   mapSvc,
		bus:      bus,
		sink:     sink,
		ctrl:     ctrl,
		session:  editor.NewSession(ctrl.Adapter(), metadata.NewStore()),
		basemap:  ctrl.InitialOptions().Basemap,
	}

	ctrl.SetOnDrawComplete(func(f engine.Feature) {
		sh.mu.Lock()
		sh.session.HandleFinish(f.ID)
		sh.mu.Unlock()
		sh.publish("editor", "drawn", f.ID)
	})
	ctrl.SetOnChange(func([]engine.Feature) {
		sh.mu.Lock()
		sh.session.SyncFromEngine()
		sh.mu.Unlock()
	})
	ctrl.SetOnFeatureClick(func(layerID string) {
		sh.mu.Lock()
		sh.highlighted = layerID
		sh.mu.Unlock()
		sh.publish("layers", "highlighted", layerID)
	})
	ctrl.SetOnReady(func() {
		// Imports accepted before the engine attached are still pending;
		// push them in now that it can hold them.
		sh.mu.Lock()
		ids := sh.session.Materialize()
		sh.mu.Unlock()
		if len(ids) > 0 {
			sh.publish("editor", "materialized", sh.id)
		}
	})
	return sh
}

func (s *Shell) publish(resource, action, id string) {
	if s.bus != nil {
		s.bus.Publish(service.Event{Resource: resource, Action: action, ID: id})
	}
}

// ID returns the shell's session identifier.
func (s *Shell) ID() string { return s.id }

// Controller exposes the underlying canvas controller.
func (s *Shell) Controller() *canvas.Controller { return s.ctrl }

// Session exposes the layer-authoring session.
func (s *Shell) Session() *editor.Session { return s.session }

// OpenMap loads a map configuration and resolves its layer list into the
// view. Layer IDs that no longer resolve are skipped rather than failing
// the whole map.
func (s *Shell) OpenMap(mapID string) (service.MapConfig, error) {
	cfg, ok := s.mapSvc.Get(mapID)
	if !ok {
		return service.MapConfig{}, fmt.Errorf("map %q not found", mapID)
	}

	resolved := make([]service.Layer, 0, len(cfg.LayerIDs))
	for _, id := range cfg.LayerIDs {
		l, ok := s.layerSvc.Get(id)
		if !ok {
			log.Printf("map %s references missing layer %s", mapID, id)
			continue
		}
		resolved = append(resolved, l)
	}

	s.mu.Lock()
	s.mapID = mapID
	s.current = resolved
	s.highlighted = ""
	swap := cfg.Basemap != "" && cfg.Basemap != s.basemap
	if swap {
		s.basemap = cfg.Basemap
	}
	s.mu.Unlock()

	if swap {
		s.ctrl.SetBasemap(cfg.Basemap)
	}
	s.applyLayers()
	s.publish("maps", "opened", mapID)
	return cfg, nil
}

// MapID returns the open map's ID, empty when none is open.
func (s *Shell) MapID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapID
}

// Layers returns the view's layer list in render order, first topmost.
func (s *Shell) Layers() []service.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.Layer, len(s.current))
	copy(out, s.current)
	return out
}

func (s *Shell) applyLayers() {
	s.mu.Lock()
	layers := make([]service.Layer, len(s.current))
	copy(layers, s.current)
	s.mu.Unlock()
	s.ctrl.SetLayers(layers)
}

// AddLayer places a stored layer at the top of the view and, when a map
// is open, attaches it to the map configuration.
func (s *Shell) AddLayer(layerID string) error {
	l, ok := s.layerSvc.Get(layerID)
	if !ok {
		return fmt.Errorf("layer %q not found", layerID)
	}

	s.mu.Lock()
	for _, cur := range s.current {
		if cur.ID == layerID {
			s.mu.Unlock()
			return nil
		}
	}
	s.current = append([]service.Layer{l}, s.current...)
	mapID := s.mapID
	s.mu.Unlock()

	if mapID != "" {
		if _, err := s.mapSvc.AttachLayer(mapID, layerID); err != nil {
			log.Printf("attach layer %s to map %s: %v", layerID, mapID, err)
		}
	}
	s.applyLayers()
	s.publish("layers", "added", layerID)
	return nil
}

// RemoveLayer drops a layer from the view and detaches it from the open
// map. The stored layer itself is untouched.
func (s *Shell) RemoveLayer(layerID string) {
	s.mu.Lock()
	kept := s.current[:0]
	for _, l := range s.current {
		if l.ID != layerID {
			kept = append(kept, l)
		}
	}
	s.current = kept
	if s.highlighted == layerID {
		s.highlighted = ""
	}
	mapID := s.mapID
	s.mu.Unlock()

	if mapID != "" {
		if _, err := s.mapSvc.DetachLayer(mapID, layerID); err != nil {
			log.Printf("detach layer %s from map %s: %v", layerID, mapID, err)
		}
	}
	s.applyLayers()
	s.publish("layers", "removed", layerID)
}

// Reorder replaces the view order with ids, which must be a permutation
// of the current list. The open map's configuration follows.
func (s *Shell) Reorder(ids []string) error {
	s.mu.Lock()
	if len(ids) != len(s.current) {
		s.mu.Unlock()
		return fmt.Errorf("reorder needs %d ids, got %d", len(s.current), len(ids))
	}
	byID := make(map[string]service.Layer, len(s.current))
	for _, l := range s.current {
		byID[l.ID] = l
	}
	next := make([]service.Layer, 0, len(ids))
	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("layer %q is not in the view", id)
		}
		next = append(next, l)
		delete(byID, id)
	}
	s.current = next
	mapID := s.mapID
	s.mu.Unlock()

	if mapID != "" {
		if cfg, ok := s.mapSvc.Get(mapID); ok {
			cfg.LayerIDs = append([]string(nil), ids...)
			if _, err := s.mapSvc.Update(mapID, cfg); err != nil {
				log.Printf("persist layer order for map %s: %v", mapID, err)
			}
		}
	}
	s.applyLayers()
	s.publish("layers", "reordered", mapID)
	return nil
}

// SetLayerOpacity updates one layer's opacity in the view and persists
// it to the layer store.
func (s *Shell) SetLayerOpacity(layerID string, opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("opacity %v out of range", opacity)
	}
	return s.mutateLayer(layerID, "opacity", func(l *service.Layer) { l.Opacity = opacity })
}

// SetLayerVisibility toggles one layer's visibility.
func (s *Shell) SetLayerVisibility(layerID string, visible bool) error {
	return s.mutateLayer(layerID, "visibility", func(l *service.Layer) { l.Visible = visible })
}

func (s *Shell) mutateLayer(layerID, action string, fn func(*service.Layer)) error {
	s.mu.Lock()
	idx := -1
	for i := range s.current {
		if s.current[i].ID == layerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("layer %q is not in the view", layerID)
	}
	fn(&s.current[idx])
	updated := s.current[idx]
	s.mu.Unlock()

	if _, err := s.layerSvc.Update(layerID, updated); err != nil {
		log.Printf("persist layer %s: %v", layerID, err)
	}
	s.applyLayers()
	s.publish("layers", action, layerID)
	return nil
}

// Highlight marks a layer as highlighted in the view.
func (s *Shell) Highlight(layerID string) {
	s.mu.Lock()
	s.highlighted = layerID
	s.mu.Unlock()
	s.publish("layers", "highlighted", layerID)
}

// Highlighted returns the highlighted layer's ID, empty for none.
func (s *Shell) Highlighted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighted
}

// SetPanelOpen toggles the layer panel.
func (s *Shell) SetPanelOpen(open bool) {
	s.mu.Lock()
	s.panelOpen = open
	s.mu.Unlock()
}

// PanelOpen reports whether the layer panel is open.
func (s *Shell) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

// FitLayer moves the viewport to a layer's geometry.
func (s *Shell) FitLayer(layerID string) error {
	s.mu.Lock()
	var target *service.Layer
	for i := range s.current {
		if s.current[i].ID == layerID {
			target = &s.current[i]
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("layer %q is not in the view", layerID)
	}
	s.ctrl.FitLayer(*target)
	return nil
}

// ImportGeoJSON queues raw GeoJSON into the editing session and pushes
// the new features into the drawing engine. The parse error preserves
// the caller's input: nothing is queued on failure.
func (s *Shell) ImportGeoJSON(raw []byte) (int, error) {
	s.mu.Lock()
	n, err := s.session.Import(raw)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.session.Materialize()
	s.mu.Unlock()
	s.publish("editor", "imported", s.id)
	return n, nil
}

// EditLayer loads a saved layer into the editing session.
func (s *Shell) EditLayer(layerID string) error {
	l, ok := s.layerSvc.Get(layerID)
	if !ok {
		return fmt.Errorf("layer %q not found", layerID)
	}
	s.mu.Lock()
	s.session.EditLayer(l)
	s.session.Materialize()
	s.mu.Unlock()
	s.publish("editor", "editing", layerID)
	return nil
}

// SetFeatureEntry updates one drawn feature's metadata.
func (s *Shell) SetFeatureEntry(featureID string, e metadata.Entry) {
	s.mu.Lock()
	s.session.SetEntry(featureID, e)
	s.mu.Unlock()
}

// SetLayerName names the layer being authored.
func (s *Shell) SetLayerName(name string) {
	s.mu.Lock()
	s.session.SetName(name)
	s.mu.Unlock()
}

// SetLayerColor sets the authored layer's base color.
func (s *Shell) SetLayerColor(color string) {
	s.mu.Lock()
	s.session.SetColor(color)
	s.mu.Unlock()
}

// SaveDrawnLayer assembles the session into a stored layer, persists it,
// attaches it to the open map, and places it in the view. The session
// continues editing the saved layer so further tweaks update in place.
func (s *Shell) SaveDrawnLayer() (service.Layer, []string, error) {
	s.mu.Lock()
	built, warnings, err := s.session.BuildLayer()
	if err != nil {
		s.mu.Unlock()
		return service.Layer{}, warnings, err
	}
	mapID := s.mapID
	s.mu.Unlock()

	var saved service.Layer
	if built.ID == "" {
		saved, err = s.layerSvc.Create(built)
	} else {
		saved, err = s.layerSvc.Update(built.ID, built)
	}
	if err != nil {
		return service.Layer{}, warnings, err
	}

	if s.sink != nil && saved.Data != nil {
		if err := s.sink.SaveLayerGeometry(saved.ID, saved.Data); err != nil {
			log.Printf("store geometry for layer %s: %v", saved.ID, err)
		}
	}
	if mapID != "" {
		if _, err := s.mapSvc.AttachLayer(mapID, saved.ID); err != nil {
			log.Printf("attach layer %s to map %s: %v", saved.ID, mapID, err)
		}
	}

	s.mu.Lock()
	replaced := false
	for i := range s.current {
		if s.current[i].ID == saved.ID {
			s.current[i] = saved
			replaced = true
			break
		}
	}
	if !replaced {
		s.current = append([]service.Layer{saved}, s.current...)
	}
	s.session.EditLayer(saved)
	s.session.Materialize()
	s.mu.Unlock()

	s.applyLayers()
	s.publish("layers", "saved", saved.ID)
	return saved, warnings, nil
}

// DiscardDrawing abandons the editing session and clears the engine.
func (s *Shell) DiscardDrawing() {
	s.mu.Lock()
	s.session.Reset()
	s.mu.Unlock()
	s.publish("editor", "discarded", s.id)
}

// Close tears down the canvas. The shell is unusable afterwards.
func (s *Shell) Close() {
	s.ctrl.Close()
}
