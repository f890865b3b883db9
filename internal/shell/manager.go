package shell

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mapdeck/mapdeck/internal/canvas"
	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/reconcile"
	"github.com/mapdeck/mapdeck/internal/service"
)

// RendererFactory builds a renderer for a new shell. The default uses
// the in-process recording renderer.
type RendererFactory func() reconcile.Renderer

// Manager tracks live shells by session ID.
type Manager struct {
	mu     sync.RWMutex
	shells map[string]*Shell

	layerSvc    *service.LayerService
	mapSvc      *service.MapService
	bus         *service.EventBus
	sink        GeometrySink
	loader      *engine.Loader
	newRenderer RendererFactory
}

// NewManager creates a shell manager over shared services. A nil
// renderer factory falls back to in-memory renderers; a nil loader uses
// the process-wide engine loader.
func NewManager(layerSvc *service.LayerService, mapSvc *service.MapService, bus *service.EventBus, sink GeometrySink, loader *engine.Loader, factory RendererFactory) *Manager {
	if loader == nil {
		loader = engine.DefaultLoader()
	}
	if factory == nil {
		factory = func() reconcile.Renderer { return reconcile.NewMemoryRenderer() }
	}
	return &Manager{
		shells:      make(map[string]*Shell),
		layerSvc:    layerSvc,
		mapSvc:      mapSvc,
		bus:         bus,
		sink:        sink,
		loader:      loader,
		newRenderer: factory,
	}
}

// Open creates a shell with its own canvas and registers it.
func (m *Manager) Open(opts canvas.Options) *Shell {
	id := uuid.NewString()
	ctrl := canvas.New(m.newRenderer(), m.loader, opts)
	sh := New(id, ctrl, m.layerSvc, m.mapSvc, m.bus, m.sink)

	m.mu.Lock()
	m.shells[id] = sh
	m.mu.Unlock()
	return sh
}

// Get looks a shell up by session ID.
func (m *Manager) Get(id string) (*Shell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sh, ok := m.shells[id]
	return sh, ok
}

// Close tears a shell down and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sh, ok := m.shells[id]
	delete(m.shells, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	sh.Close()
	return nil
}

// Len reports how many shells are live.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shells)
}

// CloseAll tears down every live shell, for server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	shells := m.shells
	m.shells = make(map[string]*Shell)
	m.mu.Unlock()
	for _, sh := range shells {
		sh.Close()
	}
}
