package reconcile

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MemoryRenderer is the in-process Renderer used by headless sessions and
// tests. It records sources, sub-layers, paint patches and stack order,
// and counts source creations so the fast path is observable.
type MemoryRenderer struct {
	mu sync.Mutex

	geoSources    map[string]*geojson.FeatureCollection
	rasterSources map[string]string
	layers        map[string]LayerSpec
	order         []string // layer IDs, last is topmost

	paint  map[string]map[string]any
	clicks map[string]func()
	hovers map[string]func(bool)

	styleLoaded  bool
	manualStyle  bool
	styleWaiters []func()

	fitBound   orb.Bound
	fitCount   int
	fitPadding float64
	fitMaxZoom float64

	sourceCreates int
	destroyed     bool
}

// NewMemoryRenderer creates a renderer whose style loads synchronously.
func NewMemoryRenderer() *MemoryRenderer {
	return &MemoryRenderer{
		geoSources:    make(map[string]*geojson.FeatureCollection),
		rasterSources: make(map[string]string),
		layers:        make(map[string]LayerSpec),
		paint:         make(map[string]map[string]any),
		clicks:        make(map[string]func()),
		hovers:        make(map[string]func(bool)),
		styleLoaded:   true,
	}
}

// NewManualStyleRenderer creates a renderer whose style stays unloaded
// until CompleteStyleLoad is called. Exercises the readiness-gating
// paths.
func NewManualStyleRenderer() *MemoryRenderer {
	r := NewMemoryRenderer()
	r.styleLoaded = false
	r.manualStyle = true
	return r
}

// AddGeoJSONSource registers a GeoJSON-backed data source.
func (r *MemoryRenderer) AddGeoJSONSource(id string, fc *geojson.FeatureCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geoSources[id] = fc
	r.sourceCreates++
}

// AddRasterSource registers a raster tile source.
func (r *MemoryRenderer) AddRasterSource(id, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rasterSources[id] = url
	r.sourceCreates++
}

// RemoveSource drops a source of either kind.
func (r *MemoryRenderer) RemoveSource(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.geoSources, id)
	delete(r.rasterSources, id)
}

// HasSource reports whether a source exists.
func (r *MemoryRenderer) HasSource(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, geo := r.geoSources[id]
	_, raster := r.rasterSources[id]
	return geo || raster
}

// AddLayer appends a sub-layer to the top of the stack.
func (r *MemoryRenderer) AddLayer(spec LayerSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layers[spec.ID]; !exists {
		r.order = append(r.order, spec.ID)
	}
	r.layers[spec.ID] = spec
}

// RemoveLayer drops a sub-layer and its handlers.
func (r *MemoryRenderer) RemoveLayer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layers[id]; !exists {
		return
	}
	delete(r.layers, id)
	delete(r.paint, id)
	delete(r.clicks, id)
	delete(r.hovers, id)
	kept := r.order[:0]
	for _, lid := range r.order {
		if lid != id {
			kept = append(kept, lid)
		}
	}
	r.order = kept
}

// HasLayer reports whether a sub-layer exists.
func (r *MemoryRenderer) HasLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.layers[id]
	return ok
}

// SetPaintProperty records a paint patch for a sub-layer.
func (r *MemoryRenderer) SetPaintProperty(layerID, prop string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layers[layerID]; !ok {
		return
	}
	if r.paint[layerID] == nil {
		r.paint[layerID] = make(map[string]any)
	}
	r.paint[layerID][prop] = value
}

// MoveLayerToTop moves a sub-layer to the top of the stack.
func (r *MemoryRenderer) MoveLayerToTop(layerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layers[layerID]; !ok {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if id != layerID {
			kept = append(kept, id)
		}
	}
	r.order = append(kept, layerID)
}

// FitBounds records a viewport fit request.
func (r *MemoryRenderer) FitBounds(b orb.Bound, padding float64, maxZoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fitBound = b
	r.fitPadding = padding
	r.fitMaxZoom = maxZoom
	r.fitCount++
}

// OnLayerClick registers a click handler for a sub-layer.
func (r *MemoryRenderer) OnLayerClick(layerID string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks[layerID] = fn
}

// OnLayerHover registers a hover handler for a sub-layer.
func (r *MemoryRenderer) OnLayerHover(layerID string, fn func(bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hovers[layerID] = fn
}

// Click simulates a pointer click on a sub-layer.
func (r *MemoryRenderer) Click(layerID string) {
	r.mu.Lock()
	fn := r.clicks[layerID]
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetStyle replaces the basemap style, wiping every source and layer. In
// auto mode the new style loads synchronously and waiters fire; in manual
// mode callers drive CompleteStyleLoad.
func (r *MemoryRenderer) SetStyle(basemap string) {
	r.mu.Lock()
	r.geoSources = make(map[string]*geojson.FeatureCollection)
	r.rasterSources = make(map[string]string)
	r.layers = make(map[string]LayerSpec)
	r.paint = make(map[string]map[string]any)
	r.clicks = make(map[string]func())
	r.hovers = make(map[string]func(bool))
	r.order = nil
	r.styleLoaded = false
	manual := r.manualStyle
	r.mu.Unlock()

	if !manual {
		r.CompleteStyleLoad(true)
	}
}

// CompleteStyleLoad marks the style loaded. With notify false the load
// event is swallowed, reproducing the unreliable-event case the poll
// fallback exists for.
func (r *MemoryRenderer) CompleteStyleLoad(notify bool) {
	r.mu.Lock()
	r.styleLoaded = true
	waiters := r.styleWaiters
	r.styleWaiters = nil
	r.mu.Unlock()

	if notify {
		for _, w := range waiters {
			w()
		}
	}
}

// StyleLoaded reports whether the current style has finished loading.
func (r *MemoryRenderer) StyleLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.styleLoaded
}

// OnStyleLoad registers a style-load callback. Fires immediately when the
// style is already loaded.
func (r *MemoryRenderer) OnStyleLoad(fn func()) {
	r.mu.Lock()
	loaded := r.styleLoaded
	if !loaded {
		r.styleWaiters = append(r.styleWaiters, fn)
	}
	r.mu.Unlock()

	if loaded {
		fn()
	}
}

// Destroy tears the renderer down.
func (r *MemoryRenderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	r.geoSources = nil
	r.rasterSources = nil
	r.layers = nil
	r.order = nil
}

// Inspection helpers for tests and session snapshots.

// SourceCreates returns how many sources have been created.
func (r *MemoryRenderer) SourceCreates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceCreates
}

// ResetCounters zeroes the source-create counter.
func (r *MemoryRenderer) ResetCounters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceCreates = 0
}

// Order returns the stack order, bottom first.
func (r *MemoryRenderer) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Paint returns the recorded paint patches for one sub-layer.
func (r *MemoryRenderer) Paint(layerID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.paint[layerID]))
	for k, v := range r.paint[layerID] {
		out[k] = v
	}
	return out
}

// LastFit returns the most recent viewport fit request.
func (r *MemoryRenderer) LastFit() (orb.Bound, float64, float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fitBound, r.fitPadding, r.fitMaxZoom, r.fitCount
}

// Destroyed reports whether Destroy has been called.
func (r *MemoryRenderer) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}
