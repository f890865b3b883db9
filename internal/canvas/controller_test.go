package canvas

import (
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/reconcile"
	"github.com/mapdeck/mapdeck/internal/service"
)

// memoryLoader records the backend each controller constructs so tests
// can drive it directly.
func memoryLoader() (*engine.Loader, *backendCell) {
	cell := &backendCell{}
	l := engine.NewLoader(func() (engine.Constructor, error) {
		return func() engine.Backend {
			b := engine.NewMemoryBackend()
			cell.set(b)
			return b
		}, nil
	})
	return l, cell
}

type backendCell struct {
	mu sync.Mutex
	b  *engine.MemoryBackend
}

func (c *backendCell) set(b *engine.MemoryBackend) {
	c.mu.Lock()
	c.b = b
	c.mu.Unlock()
}

func (c *backendCell) get() *engine.MemoryBackend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.b
}

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Ready() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never became ready")
}

func TestInitViaStyleLoadEvent(t *testing.T) {
	r := reconcile.NewMemoryRenderer() // style loads synchronously
	l, _ := memoryLoader()
	c := New(r, l, Options{Basemap: "streets"})
	defer c.Close()

	waitReady(t, c)
}

func TestInitViaPollFallback(t *testing.T) {
	r := reconcile.NewManualStyleRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{Basemap: "streets"})
	defer c.Close()

	if c.Ready() {
		t.Fatalf("must not be ready before style load")
	}

	// Complete the style load without firing the event: only the fallback
	// poll can observe it.
	r.CompleteStyleLoad(false)
	waitReady(t, c)
}

func TestOperationsNoOpBeforeReady(t *testing.T) {
	r := reconcile.NewManualStyleRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{})
	defer c.Close()

	c.StartDrawing(engine.TypePolygon, "#ff0000")
	c.ClearDrawings()
	if ids := c.AddFeatures([]engine.Feature{{Type: engine.TypePoint, Geometry: orb.Point{0, 0}}}, ""); ids != nil {
		t.Fatalf("ids = %v, want nil before ready", ids)
	}
}

func TestLayersHeldUntilInit(t *testing.T) {
	r := reconcile.NewManualStyleRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{})
	defer c.Close()

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	c.SetLayers([]service.Layer{{ID: "a", Name: "A", Kind: service.KindVector, Visible: true, Opacity: 1, Data: fc}})

	if r.HasSource("a") {
		t.Fatalf("layers must not be applied before init")
	}

	r.CompleteStyleLoad(true)
	waitReady(t, c)
	if !r.HasSource("a") {
		t.Fatalf("held layers should be applied on attach")
	}
}

func TestLatestCallbackCell(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, cell := memoryLoader()
	c := New(r, l, Options{})
	defer c.Close()
	waitReady(t, c)

	got := make(chan string, 2)
	c.SetOnDrawComplete(func(f engine.Feature) { got <- "first:" + f.ID })

	// Swapping the callback must take effect without re-registering
	// engine listeners.
	c.SetOnDrawComplete(func(f engine.Feature) { got <- "latest:" + f.ID })

	id := cell.get().FinishDraw(engine.Feature{Type: engine.TypePoint, Geometry: orb.Point{1, 1}})

	select {
	case v := <-got:
		if v != "latest:"+id {
			t.Fatalf("got %q, want latest callback", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("draw-complete callback never fired")
	}
	select {
	case v := <-got:
		t.Fatalf("unexpected second invocation %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOnChangeDeliversSnapshot(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{})
	defer c.Close()
	waitReady(t, c)

	snapshots := make(chan []engine.Feature, 4)
	c.SetOnChange(func(fs []engine.Feature) { snapshots <- fs })

	c.AddFeatures([]engine.Feature{
		{Type: engine.TypePoint, Geometry: orb.Point{0, 0}},
		{Type: engine.TypePoint, Geometry: orb.Point{1, 1}},
	}, "")

	select {
	case fs := <-snapshots:
		if len(fs) != 2 {
			t.Fatalf("snapshot = %d, want 2", len(fs))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("change callback never fired")
	}
}

func TestBasemapSwap(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{Basemap: "streets"})
	defer c.Close()
	waitReady(t, c)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	c.SetLayers([]service.Layer{{ID: "a", Name: "A", Kind: service.KindVector, Visible: true, Opacity: 1, Data: fc}})

	c.SetBasemap("satellite")
	waitReady(t, c)

	// The style swap wiped everything; layers must have been re-applied.
	if !r.HasSource("a") {
		t.Fatalf("layers should be re-applied after basemap swap")
	}
}

func TestFeatureClickCallback(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{})
	defer c.Close()
	waitReady(t, c)

	var clicked string
	c.SetOnFeatureClick(func(layerID string) { clicked = layerID })

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	c.SetLayers([]service.Layer{{ID: "zones", Name: "Zones", Kind: service.KindVector, Visible: true, Opacity: 1, Data: fc}})

	r.Click("zones-fill")
	if clicked != "zones" {
		t.Fatalf("clicked = %q, want zones", clicked)
	}
}

func TestClose(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{})
	waitReady(t, c)

	c.Close()
	if !r.Destroyed() {
		t.Fatalf("renderer should be destroyed on close")
	}
	// Idempotent.
	c.Close()

	if c.Ready() {
		t.Fatalf("closed controller must not report ready")
	}
}

func TestEngineLoadFailureStaysInert(t *testing.T) {
	failing := engine.NewLoader(func() (engine.Constructor, error) {
		return nil, errBoom
	})
	r := reconcile.NewMemoryRenderer()
	c := New(r, failing, Options{})
	defer c.Close()

	time.Sleep(50 * time.Millisecond)
	if c.Ready() {
		t.Fatalf("controller must stay not-ready after engine load failure")
	}
	// Operations remain silent no-ops.
	c.StartDrawing(engine.TypePoint, "")
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestValidBasemap(t *testing.T) {
	if !ValidBasemap("streets") || ValidBasemap("neon") {
		t.Fatalf("basemap validation broken")
	}
}

func TestConcurrentSetLayers(t *testing.T) {
	r := reconcile.NewMemoryRenderer()
	l, _ := memoryLoader()
	c := New(r, l, Options{Basemap: "streets"})
	defer c.Close()
	waitReady(t, c)

	// View operations arrive from concurrent request handlers; passes
	// must serialize rather than corrupt the render cache.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc := geojson.NewFeatureCollection()
			fc.Append(geojson.NewFeature(orb.Point{1, 1}))
			layer := service.Layer{ID: "a", Name: "A", Kind: service.KindVector, Visible: true, Opacity: 1, Data: fc}
			for i := 0; i < 50; i++ {
				layer.Opacity = float64(i%10) / 10
				c.SetLayers([]service.Layer{layer})
			}
		}()
	}
	wg.Wait()

	if !r.HasSource("a") {
		t.Fatalf("layer a missing after concurrent passes")
	}
}
