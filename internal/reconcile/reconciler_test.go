package reconcile

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/service"
)

func vectorLayer(id string, coords ...orb.Point) service.Layer {
	fc := geojson.NewFeatureCollection()
	for _, p := range coords {
		fc.Append(geojson.NewFeature(p))
	}
	return service.Layer{
		ID:      id,
		Name:    id,
		Kind:    service.KindVector,
		Visible: true,
		Opacity: 1,
		Data:    fc,
	}
}

func TestOpacityOnlyFastPath(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	l := vectorLayer("a", orb.Point{1, 1})
	rc.Apply([]service.Layer{l})
	r.ResetCounters()

	l.Opacity = 0.3
	rc.Apply([]service.Layer{l})

	if got := r.SourceCreates(); got != 0 {
		t.Fatalf("source creates = %d, want 0 on opacity-only change", got)
	}
	if got := r.Paint("a-point")["circle-opacity"]; got != 0.3 {
		t.Fatalf("circle-opacity = %v, want 0.3", got)
	}
	if got := r.Paint("a-fill")["fill-opacity"]; got != 0.3*fillOpacityFactor {
		t.Fatalf("fill-opacity = %v", got)
	}
}

func TestFullRecreateOnDataChange(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	rc.Apply([]service.Layer{vectorLayer("a", orb.Point{1, 1})})
	r.ResetCounters()

	rc.Apply([]service.Layer{vectorLayer("a", orb.Point{2, 2})})

	if got := r.SourceCreates(); got != 1 {
		t.Fatalf("source creates = %d, want 1 on geometry change", got)
	}
}

func TestVisibilityTransitions(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	l := vectorLayer("a", orb.Point{1, 1})
	rc.Apply([]service.Layer{l})

	l.Visible = false
	rc.Apply([]service.Layer{l})
	if r.HasSource("a") {
		t.Fatalf("hidden layer's source should be removed")
	}

	// Hidden before and now: nothing changes.
	r.ResetCounters()
	rc.Apply([]service.Layer{l})
	if got := r.SourceCreates(); got != 0 {
		t.Fatalf("source creates = %d, want 0 for still-hidden layer", got)
	}

	// Reappearing requires a full recreate.
	l.Visible = true
	rc.Apply([]service.Layer{l})
	if got := r.SourceCreates(); got != 1 {
		t.Fatalf("source creates = %d, want 1 when layer reappears", got)
	}
}

func TestRemovedLayerIsTornDown(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	rc.Apply([]service.Layer{vectorLayer("a", orb.Point{1, 1}), vectorLayer("b", orb.Point{2, 2})})
	rc.Apply([]service.Layer{vectorLayer("b", orb.Point{2, 2})})

	if r.HasSource("a") {
		t.Fatalf("removed layer's source should be gone")
	}
	for _, sub := range sublayerIDs("a") {
		if r.HasLayer(sub) {
			t.Fatalf("removed layer's sub-layer %q should be gone", sub)
		}
	}
	if !r.HasSource("b") {
		t.Fatalf("surviving layer's source must remain")
	}
}

func stackPosition(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestRenderOrder(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	a := vectorLayer("a", orb.Point{1, 1})
	b := vectorLayer("b", orb.Point{2, 2})
	c := vectorLayer("c", orb.Point{3, 3})

	// First in the slice renders topmost.
	rc.Apply([]service.Layer{a, b, c})
	order := r.Order()
	if !(stackPosition(order, "a-point") > stackPosition(order, "b-point") &&
		stackPosition(order, "b-point") > stackPosition(order, "c-point")) {
		t.Fatalf("order = %v, want a above b above c", order)
	}

	// Permuting the list inverts accordingly.
	rc.Apply([]service.Layer{c, a, b})
	order = r.Order()
	if !(stackPosition(order, "c-point") > stackPosition(order, "a-point") &&
		stackPosition(order, "a-point") > stackPosition(order, "b-point")) {
		t.Fatalf("order = %v, want c above a above b", order)
	}
}

func TestOrderWithinLayer(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	rc.Apply([]service.Layer{vectorLayer("a", orb.Point{1, 1})})

	order := r.Order()
	if !(stackPosition(order, "a-fill") < stackPosition(order, "a-line") &&
		stackPosition(order, "a-line") < stackPosition(order, "a-point")) {
		t.Fatalf("order = %v, want fill below line below point", order)
	}
}

func TestHeatmapLayer(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 1})
	f.Properties = geojson.Properties{"intensity": 0.5}
	fc.Append(f)
	l := service.Layer{ID: "h", Name: "Heat", Kind: service.KindHeatmap, Visible: true, Opacity: 1, Data: fc}

	rc.Apply([]service.Layer{l})
	if !r.HasLayer("h-heat") {
		t.Fatalf("expected heatmap sub-layer")
	}

	// Heatmap opacity patches are pre-multiplied.
	l.Opacity = 0.5
	rc.Apply([]service.Layer{l})
	if got := r.Paint("h-heat")["heatmap-opacity"]; got != 0.5*heatOpacityFactor {
		t.Fatalf("heatmap-opacity = %v", got)
	}
}

func TestRasterLayers(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	wms := service.Layer{
		ID: "w", Name: "WMS", Kind: service.KindWMS, Visible: true, Opacity: 1,
		WMS: &service.WMSOptions{URL: "https://example.com/wms", Layers: "base"},
	}
	tiff := service.Layer{
		ID: "t", Name: "TIFF", Kind: service.KindGeoTIFF, Visible: true, Opacity: 1,
		GeoTIFF: &service.GeoTIFFOptions{URL: "https://example.com/dem.tif"},
	}

	rc.Apply([]service.Layer{wms, tiff})

	if !r.HasLayer("w-raster") || !r.HasLayer("t-raster") {
		t.Fatalf("expected raster sub-layers")
	}
	if got := r.SourceCreates(); got != 2 {
		t.Fatalf("source creates = %d, want 2", got)
	}
}

func TestMalformedPayloadRendersNothing(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	// Nil data must not panic; the layer contributes no renderable content
	// beyond its (empty) source.
	l := service.Layer{ID: "bad", Name: "Bad", Kind: service.KindVector, Visible: true, Opacity: 1}
	rc.Apply([]service.Layer{l})
}

func TestFeatureClickReportsLayer(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	var clicked string
	rc.SetFeatureClickHandler(func(layerID string) { clicked = layerID })
	rc.Apply([]service.Layer{vectorLayer("a", orb.Point{1, 1})})

	r.Click("a-fill")
	if clicked != "a" {
		t.Fatalf("clicked = %q, want a", clicked)
	}
}

func TestFitLayer(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}))
	rc.FitLayer(service.Layer{ID: "a", Data: fc})

	b, padding, maxZoom, count := r.LastFit()
	if count != 1 {
		t.Fatalf("fit count = %d, want 1", count)
	}
	if b.Min != (orb.Point{0, 0}) || b.Max != (orb.Point{1, 1}) {
		t.Fatalf("bound = %v, want unit square", b)
	}
	if padding != fitPadding || maxZoom != fitMaxZoom {
		t.Fatalf("padding/maxZoom = %v/%v", padding, maxZoom)
	}

	// Empty geometry: no fit issued.
	rc.FitLayer(service.Layer{ID: "b"})
	if _, _, _, count := r.LastFit(); count != 1 {
		t.Fatalf("fit count = %d, want unchanged", count)
	}
}

func TestConcurrentApply(t *testing.T) {
	r := NewMemoryRenderer()
	rc := New(r)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			a := vectorLayer("a", orb.Point{1, 1})
			b := vectorLayer("b", orb.Point{2, 2})
			for i := 0; i < 50; i++ {
				a.Opacity = float64(i%10) / 10
				b.Visible = i%2 == 0
				rc.Apply([]service.Layer{a, b})
			}
		}(g)
	}
	wg.Wait()

	if !r.HasSource("a") {
		t.Fatalf("layer a missing after concurrent passes")
	}
	rc.Apply(nil)
	if r.HasSource("a") || r.HasSource("b") {
		t.Fatalf("teardown left sources behind")
	}
}
