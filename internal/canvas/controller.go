// Package canvas owns the renderer instance for the lifetime of a
// mounted map view and mediates between declarative state (layers,
// basemap) and the imperative renderer and drawing engine APIs.
package canvas

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/reconcile"
	"github.com/mapdeck/mapdeck/internal/service"

	"github.com/paulmach/orb"
)

// Basemaps is the fixed set of basemap style keys.
var Basemaps = []string{"streets", "satellite", "terrain", "dark"}

// ValidBasemap reports whether a basemap key is known.
func ValidBasemap(name string) bool {
	for _, b := range Basemaps {
		if b == name {
			return true
		}
	}
	return false
}

// Options capture the initial viewport. They are read once at
// construction; later changes go through explicit update calls because
// renderer construction is expensive and disruptive.
type Options struct {
	Center  orb.Point
	Zoom    float64
	Basemap string
}

// The renderer's load event is not always reliably delivered, so
// readiness is additionally polled on a fallback timer.
const pollInterval = 25 * time.Millisecond

// Controller owns one renderer and one drawing-engine adapter. All
// engine access goes through it: single writer.
type Controller struct {
	mu       sync.Mutex
	renderer reconcile.Renderer
	rec      *reconcile.Reconciler
	adapter  *engine.Adapter
	loader   *engine.Loader

	// opts are captured once at construction; prop-style updates never
	// recreate the renderer.
	opts Options

	layers   []service.Layer
	initDone bool
	ready    bool
	closed   bool
	pollStop chan struct{}

	// Listeners are registered once; these cells always hold the latest
	// application callback and are dereferenced at call time.
	onDrawComplete atomic.Pointer[func(engine.Feature)]
	onChange       atomic.Pointer[func([]engine.Feature)]
	onFeatureClick atomic.Pointer[func(layerID string)]
	onReady        atomic.Pointer[func()]
}

// New creates a controller over a renderer. The drawing engine attaches
// once the renderer's style has finished loading.
func New(r reconcile.Renderer, loader *engine.Loader, opts Options) *Controller {
	c := &Controller{
		renderer: r,
		rec:      reconcile.New(r),
		adapter:  engine.NewAdapter(),
		loader:   loader,
		opts:     opts,
	}
	c.rec.SetFeatureClickHandler(func(layerID string) {
		if fn := c.onFeatureClick.Load(); fn != nil {
			(*fn)(layerID)
		}
	})

	r.OnStyleLoad(c.tryInit)
	c.startPoll()
	return c
}

// startPoll begins the fallback readiness poll. Caller must not hold mu.
func (c *Controller) startPoll() {
	c.mu.Lock()
	if c.closed || c.initDone || c.pollStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.renderer.StyleLoaded() {
					c.tryInit()
					return
				}
			}
		}
	}()
}

func (c *Controller) stopPollLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

// tryInit attaches the drawing engine once the style is loaded. Invoked
// from both the style-load event and the fallback poll, so it must be
// idempotent and guarded against double-invocation.
func (c *Controller) tryInit() {
	c.mu.Lock()
	if c.closed || c.initDone || !c.renderer.StyleLoaded() {
		c.mu.Unlock()
		return
	}
	c.initDone = true
	c.stopPollLocked()
	c.mu.Unlock()

	c.loader.Load(func(ctor engine.Constructor, err error) {
		if err != nil {
			// The canvas stays usable for viewing; drawing operations
			// remain no-ops for this session.
			log.Printf("drawing engine failed to load: %v", err)
			return
		}
		c.attach(ctor())
	})
}

func (c *Controller) attach(b engine.Backend) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.adapter.Attach(b)
	b.Start()

	// Engine events are delivered on a fresh goroutine: the engine fires
	// them synchronously from inside mutating calls, and handlers must be
	// free to call back into the controller without deadlocking.
	b.OnFinish(func(id string) {
		go func() {
			// The callback carries only an ID; the canonical snapshot is
			// re-read from the engine, never cached.
			var finished *engine.Feature
			for _, f := range b.Snapshot() {
				if f.ID == id {
					f := f
					finished = &f
					break
				}
			}
			if finished == nil {
				return
			}
			if fn := c.onDrawComplete.Load(); fn != nil {
				(*fn)(*finished)
			}
		}()
	})
	b.OnChange(func() {
		go func() {
			if fn := c.onChange.Load(); fn != nil {
				(*fn)(b.Snapshot())
			}
		}()
	})

	c.ready = true
	layers := c.layers
	c.mu.Unlock()

	if layers != nil {
		c.rec.Apply(layers)
	}

	if fn := c.onReady.Load(); fn != nil {
		go (*fn)()
	}
}

// InitialOptions returns the viewport the renderer was created with.
func (c *Controller) InitialOptions() Options {
	return c.opts
}

// Ready reports whether the drawing engine is attached and usable.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Adapter returns the drawing engine adapter for session composition.
func (c *Controller) Adapter() *engine.Adapter {
	return c.adapter
}

// SetOnDrawComplete swaps the draw-finish callback without
// re-registering engine listeners.
func (c *Controller) SetOnDrawComplete(fn func(engine.Feature)) {
	if fn == nil {
		c.onDrawComplete.Store(nil)
		return
	}
	c.onDrawComplete.Store(&fn)
}

// SetOnChange swaps the engine-change callback.
func (c *Controller) SetOnChange(fn func([]engine.Feature)) {
	if fn == nil {
		c.onChange.Store(nil)
		return
	}
	c.onChange.Store(&fn)
}

// SetOnFeatureClick swaps the layer-click callback.
func (c *Controller) SetOnFeatureClick(fn func(layerID string)) {
	if fn == nil {
		c.onFeatureClick.Store(nil)
		return
	}
	c.onFeatureClick.Store(&fn)
}

// SetOnReady swaps the engine-attached callback. It also fires after
// every basemap swap re-attach, so work queued while the engine was
// detached gets a chance to run.
func (c *Controller) SetOnReady(fn func()) {
	if fn == nil {
		c.onReady.Store(nil)
		return
	}
	c.onReady.Store(&fn)
}

// SetLayers reconciles the declarative layer list into the renderer.
// Before initialization the list is held and applied on attach.
func (c *Controller) SetLayers(layers []service.Layer) {
	c.mu.Lock()
	c.layers = layers
	apply := c.initDone && !c.closed
	c.mu.Unlock()

	if apply {
		c.rec.Apply(layers)
	}
}

// SetBasemap swaps the basemap style. The drawing engine binds rendering
// layers into the style that a style replacement wipes out, so it is
// detached first and re-attached after the new style loads; layers are
// re-applied then too.
func (c *Controller) SetBasemap(name string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.ready = false
	c.initDone = false
	c.stopPollLocked()
	c.adapter.Detach()
	c.rec.Reset()
	c.mu.Unlock()

	c.renderer.SetStyle(name)
	c.renderer.OnStyleLoad(c.tryInit)
	c.startPoll()
}

// FitLayer requests the viewport fit a layer's geometry.
func (c *Controller) FitLayer(l service.Layer) {
	c.rec.FitLayer(l)
}

// Imperative drawing operations, delegated to the adapter. All are
// no-ops before readiness.

func (c *Controller) StartDrawing(t engine.GeometryType, color string) {
	c.adapter.StartDrawing(t, color)
}

func (c *Controller) SetDrawMode(m engine.Mode) {
	c.adapter.SetDrawMode(m)
}

func (c *Controller) CancelDrawing() {
	c.adapter.CancelDrawing()
}

func (c *Controller) ClearDrawings() {
	c.adapter.ClearDrawings()
}

func (c *Controller) AddFeatures(features []engine.Feature, color string) []string {
	return c.adapter.AddFeatures(features, color)
}

func (c *Controller) RemoveFeature(id string) {
	c.adapter.RemoveFeature(id)
}

func (c *Controller) UpdateDrawingStyles(s engine.Styles) {
	c.adapter.UpdateDrawingStyles(s)
}

// Close tears the controller down: pending polls are cancelled, the
// engine detached, the renderer destroyed, and references dropped so no
// handler outlives the instance.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.ready = false
	c.stopPollLocked()
	c.mu.Unlock()

	c.adapter.Detach()
	c.renderer.Destroy()
	c.onDrawComplete.Store(nil)
	c.onChange.Store(nil)
	c.onFeatureClick.Store(nil)
}
