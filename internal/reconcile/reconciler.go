package reconcile

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/mapdeck/mapdeck/internal/geom"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
)

const (
	fitPadding = 40
	fitMaxZoom = 16

	// Fill opacity is softened relative to lines so overlapping polygons
	// stay readable.
	fillOpacityFactor = 0.4

	// Heatmap visual weight is pre-multiplied by intensity, so its
	// opacity is scaled down relative to plain circles.
	heatOpacityFactor = 0.8
)

// lineStyles are the per-feature stroke variants; each gets its own
// sub-layer plus a catch-all default for features lacking the property.
var lineStyles = []metadata.LineStyle{metadata.LineSolid, metadata.LineDashed, metadata.LineDotted}

var dashArrays = map[metadata.LineStyle][]float64{
	metadata.LineDashed: {4, 3},
	metadata.LineDotted: {1, 2},
}

// renderState is the per-layer cache from the previous pass, used to
// decide between a cheap opacity patch and a full teardown/recreate.
type renderState struct {
	visible bool
	opacity float64
	hash    string
}

// Reconciler applies declarative layer lists to a Renderer with minimal
// destructive work. Passes are serialized: view operations arrive from
// concurrent request handlers.
type Reconciler struct {
	mu       sync.Mutex
	renderer Renderer
	prev     map[string]renderState

	onFeatureClick func(layerID string)
}

// New creates a reconciler over a renderer.
func New(r Renderer) *Reconciler {
	return &Reconciler{
		renderer: r,
		prev:     make(map[string]renderState),
	}
}

// SetFeatureClickHandler sets the callback reporting which layer was
// clicked. Applies to sub-layers created on subsequent passes.
func (rc *Reconciler) SetFeatureClickHandler(fn func(layerID string)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.onFeatureClick = fn
}

func (rc *Reconciler) clickHandler() func(layerID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.onFeatureClick
}

// Reset forgets all cached render state, forcing the next Apply to
// recreate everything. Used after a basemap swap wipes the style.
func (rc *Reconciler) Reset() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.prev = make(map[string]renderState)
}

// Apply diffs the layer list against the previous pass and issues
// renderer operations. Layers earlier in the slice render on top.
func (rc *Reconciler) Apply(layers []service.Layer) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	current := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		current[l.ID] = struct{}{}
	}

	// Layers gone since last pass: tear down completely.
	for id := range rc.prev {
		if _, ok := current[id]; !ok {
			rc.removeElements(id)
			delete(rc.prev, id)
		}
	}

	for _, l := range layers {
		prev, known := rc.prev[l.ID]
		hash := geom.ContentHash(l.Data)

		switch {
		case !l.Visible && known && prev.visible:
			rc.removeElements(l.ID)
			rc.prev[l.ID] = renderState{visible: false, opacity: l.Opacity, hash: hash}

		case !l.Visible:
			rc.prev[l.ID] = renderState{visible: false, opacity: l.Opacity, hash: hash}

		case known && prev.visible && prev.hash == hash && rc.renderer.HasSource(l.ID):
			// Only display properties changed: patch opacity in place.
			rc.patchOpacity(l)
			rc.prev[l.ID] = renderState{visible: true, opacity: l.Opacity, hash: hash}

		default:
			rc.removeElements(l.ID)
			rc.createElements(l)
			rc.prev[l.ID] = renderState{visible: true, opacity: l.Opacity, hash: hash}
		}
	}

	rc.restack(layers)
}

// FitLayer requests the viewport fit a layer's geometry. No-op when the
// layer has no finite coordinates.
func (rc *Reconciler) FitLayer(l service.Layer) {
	b, ok := geom.Bounds(l.Data)
	if !ok {
		return
	}
	rc.renderer.FitBounds(b, fitPadding, fitMaxZoom)
}

// sublayerIDs returns every rendering sub-layer a layer may own, in
// bottom-to-top paint order.
func sublayerIDs(id string) []string {
	ids := []string{id + "-fill"}
	for _, style := range lineStyles {
		ids = append(ids, fmt.Sprintf("%s-line-%s", id, style))
	}
	ids = append(ids, id+"-line", id+"-point", id+"-heat", id+"-raster")
	return ids
}

func (rc *Reconciler) removeElements(id string) {
	for _, sub := range sublayerIDs(id) {
		if rc.renderer.HasLayer(sub) {
			rc.renderer.RemoveLayer(sub)
		}
	}
	if rc.renderer.HasSource(id) {
		rc.renderer.RemoveSource(id)
	}
}

func (rc *Reconciler) patchOpacity(l service.Layer) {
	op := l.Opacity
	switch l.Kind {
	case service.KindHeatmap:
		rc.renderer.SetPaintProperty(l.ID+"-heat", "heatmap-opacity", op*heatOpacityFactor)
	case service.KindWMS, service.KindGeoTIFF:
		rc.renderer.SetPaintProperty(l.ID+"-raster", "raster-opacity", op)
	default:
		rc.renderer.SetPaintProperty(l.ID+"-fill", "fill-opacity", op*fillOpacityFactor)
		for _, style := range lineStyles {
			rc.renderer.SetPaintProperty(fmt.Sprintf("%s-line-%s", l.ID, style), "line-opacity", op)
		}
		rc.renderer.SetPaintProperty(l.ID+"-line", "line-opacity", op)
		rc.renderer.SetPaintProperty(l.ID+"-point", "circle-opacity", op)
	}
}

func (rc *Reconciler) createElements(l service.Layer) {
	switch l.Kind {
	case service.KindWMS:
		rc.renderer.AddRasterSource(l.ID, wmsTileURL(l))
		rc.renderer.AddLayer(LayerSpec{
			ID:     l.ID + "-raster",
			Source: l.ID,
			Type:   "raster",
			Paint:  map[string]any{"raster-opacity": l.Opacity},
		})

	case service.KindGeoTIFF:
		var u string
		if l.GeoTIFF != nil {
			u = l.GeoTIFF.URL
		}
		rc.renderer.AddRasterSource(l.ID, u)
		rc.renderer.AddLayer(LayerSpec{
			ID:     l.ID + "-raster",
			Source: l.ID,
			Type:   "raster",
			Paint:  map[string]any{"raster-opacity": l.Opacity},
		})

	case service.KindHeatmap:
		rc.renderer.AddGeoJSONSource(l.ID, l.Data)
		rc.renderer.AddLayer(LayerSpec{
			ID:     l.ID + "-heat",
			Source: l.ID,
			Type:   "heatmap",
			Paint: map[string]any{
				"heatmap-opacity": l.Opacity * heatOpacityFactor,
				"heatmap-weight":  []any{"get", "intensity"},
			},
		})

	default: // vector, marker
		rc.renderer.AddGeoJSONSource(l.ID, l.Data)
		rc.createVectorSublayers(l)
	}
}

func (rc *Reconciler) createVectorSublayers(l service.Layer) {
	color := l.Color
	if color == "" {
		color = "#3388ff"
	}

	rc.renderer.AddLayer(LayerSpec{
		ID:     l.ID + "-fill",
		Source: l.ID,
		Type:   "fill",
		Paint: map[string]any{
			"fill-color":   color,
			"fill-opacity": l.Opacity * fillOpacityFactor,
		},
	})

	for _, style := range lineStyles {
		paint := map[string]any{
			"line-color":   color,
			"line-width":   float64(2),
			"line-opacity": l.Opacity,
		}
		if dash, ok := dashArrays[style]; ok {
			paint["line-dasharray"] = dash
		}
		rc.renderer.AddLayer(LayerSpec{
			ID:     fmt.Sprintf("%s-line-%s", l.ID, style),
			Source: l.ID,
			Type:   "line",
			Paint:  paint,
			Filter: []any{"==", []any{"get", "lineStyle"}, string(style)},
		})
	}

	// Catch-all for features without a lineStyle property.
	rc.renderer.AddLayer(LayerSpec{
		ID:     l.ID + "-line",
		Source: l.ID,
		Type:   "line",
		Paint: map[string]any{
			"line-color":   color,
			"line-width":   float64(2),
			"line-opacity": l.Opacity,
		},
		Filter: []any{"!", []any{"has", "lineStyle"}},
	})

	rc.renderer.AddLayer(LayerSpec{
		ID:     l.ID + "-point",
		Source: l.ID,
		Type:   "circle",
		Paint: map[string]any{
			"circle-color":   color,
			"circle-radius":  float64(5),
			"circle-opacity": l.Opacity,
		},
	})

	layerID := l.ID
	for _, sub := range []string{l.ID + "-fill", l.ID + "-point"} {
		rc.renderer.OnLayerClick(sub, func() {
			if fn := rc.clickHandler(); fn != nil {
				fn(layerID)
			}
		})
		rc.renderer.OnLayerHover(sub, func(entered bool) {
			// Hover only toggles the cursor; nothing to propagate.
			_ = entered
		})
	}
}

// restack reorders the renderer so layers earlier in the slice render on
// top: iterate visible IDs in reverse and move each layer's sub-elements
// to the top, bottom-to-top paint order within each layer.
func (rc *Reconciler) restack(layers []service.Layer) {
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if !l.Visible {
			continue
		}
		for _, sub := range sublayerIDs(l.ID) {
			if rc.renderer.HasLayer(sub) {
				rc.renderer.MoveLayerToTop(sub)
			}
		}
	}
}

func wmsTileURL(l service.Layer) string {
	if l.WMS == nil {
		return ""
	}
	format := l.WMS.Format
	if format == "" {
		format = "image/png"
	}
	// The bbox placeholder must stay literal for the renderer to substitute
	// per tile, so the query is assembled by hand.
	return fmt.Sprintf(
		"%s?service=WMS&request=GetMap&layers=%s&format=%s&width=256&height=256&bbox={bbox-epsg-3857}",
		l.WMS.URL, url.QueryEscape(l.WMS.Layers), url.QueryEscape(format),
	)
}
