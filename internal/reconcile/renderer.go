// Package reconcile translates a declarative layer list into imperative
// renderer operations, minimizing destructive work: full teardown and
// recreate flickers and is expensive for large geometry payloads.
package reconcile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LayerSpec describes one rendering sub-layer in renderer terms.
type LayerSpec struct {
	ID     string
	Source string
	Type   string // "fill", "line", "circle", "heatmap", "raster"
	Paint  map[string]any
	Filter []any
}

// Renderer is the imperative map renderer the reconciler drives. It
// models a maplibre-style engine: data sources, styled sub-layers, paint
// property patches, stack reordering, viewport fitting, and asynchronous
// style lifecycle.
type Renderer interface {
	AddGeoJSONSource(id string, fc *geojson.FeatureCollection)
	AddRasterSource(id, url string)
	RemoveSource(id string)
	HasSource(id string) bool

	AddLayer(spec LayerSpec)
	RemoveLayer(id string)
	HasLayer(id string) bool
	SetPaintProperty(layerID, prop string, value any)
	MoveLayerToTop(layerID string)

	FitBounds(b orb.Bound, padding float64, maxZoom float64)

	OnLayerClick(layerID string, fn func())
	OnLayerHover(layerID string, fn func(entered bool))

	// Style lifecycle. Replacing the style wipes every source and layer
	// bound into it; StyleLoaded flips false until the new style settles.
	SetStyle(basemap string)
	StyleLoaded() bool
	OnStyleLoad(fn func())
	Destroy()
}
