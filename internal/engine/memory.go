package engine

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is the in-process reference Backend. It is what headless
// editor sessions and tests drive, and it reproduces the quirks the
// adapter has to handle: IDs are regenerated on every add, and callbacks
// deliver IDs only.
type MemoryBackend struct {
	mu       sync.Mutex
	enabled  bool
	mode     Mode
	styles   map[Mode]Styles
	features map[string]Feature
	order    []string

	onFinish func(id string)
	onChange func()
}

// NewMemoryBackend creates a stopped backend in select mode.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		mode:     ModeSelect,
		styles:   make(map[Mode]Styles),
		features: make(map[string]Feature),
	}
}

// Start enables the backend.
func (b *MemoryBackend) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = true
}

// Stop detaches the backend. Features are kept; TerraDraw-style controls
// drop their rendering but not their store on detach.
func (b *MemoryBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
}

// Enabled reports whether the backend is started.
func (b *MemoryBackend) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// SetMode switches the interaction mode.
func (b *MemoryBackend) SetMode(m Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = m
}

// Mode returns the current mode.
func (b *MemoryBackend) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// SetModeStyles replaces one mode's paint styles.
func (b *MemoryBackend) SetModeStyles(m Mode, s Styles) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.styles[m] = s
}

// ModeStyles returns one mode's paint styles.
func (b *MemoryBackend) ModeStyles(m Mode) Styles {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.styles[m]
}

// AddFeatures stores the batch under freshly assigned IDs and returns
// them in input order.
func (b *MemoryBackend) AddFeatures(features []Feature) []string {
	b.mu.Lock()
	ids := make([]string, 0, len(features))
	for _, f := range features {
		f.ID = uuid.NewString()
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		b.features[f.ID] = f
		b.order = append(b.order, f.ID)
		ids = append(ids, f.ID)
	}
	b.mu.Unlock()

	b.fireChange()
	return ids
}

// RemoveFeatures removes the given IDs.
func (b *MemoryBackend) RemoveFeatures(ids []string) {
	b.mu.Lock()
	for _, id := range ids {
		delete(b.features, id)
	}
	kept := b.order[:0]
	for _, id := range b.order {
		if _, ok := b.features[id]; ok {
			kept = append(kept, id)
		}
	}
	b.order = kept
	b.mu.Unlock()

	b.fireChange()
}

// ClearAll removes every feature.
func (b *MemoryBackend) ClearAll() {
	b.mu.Lock()
	b.features = make(map[string]Feature)
	b.order = nil
	b.mu.Unlock()

	b.fireChange()
}

// Select marks a feature selected. Test and session helper; the real
// engine flips this on pointer interaction.
func (b *MemoryBackend) Select(id string) {
	b.setSelected(id, true)
}

// Deselect clears the selection flag on one feature.
func (b *MemoryBackend) Deselect(id string) {
	b.setSelected(id, false)
}

func (b *MemoryBackend) setSelected(id string, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.features[id]
	if !ok {
		return
	}
	props := make(map[string]any, len(f.Properties)+1)
	for k, pv := range f.Properties {
		props[k] = pv
	}
	props["selected"] = v
	f.Properties = props
	b.features[id] = f
}

// Snapshot returns a copy of every feature in insertion order.
func (b *MemoryBackend) Snapshot() []Feature {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Feature, 0, len(b.order))
	for _, id := range b.order {
		f := b.features[id]
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		f.Properties = props
		out = append(out, f)
	}
	return out
}

// OnFinish registers the draw-finish callback.
func (b *MemoryBackend) OnFinish(fn func(id string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFinish = fn
}

// OnChange registers the change callback.
func (b *MemoryBackend) OnChange(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// FinishDraw simulates the user completing a drawing in the current draw
// mode: the feature is stored under a new ID and the finish callback
// fires with that ID only.
func (b *MemoryBackend) FinishDraw(f Feature) string {
	b.mu.Lock()
	f.ID = uuid.NewString()
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	f.Properties["mode"] = string(b.mode)
	b.features[f.ID] = f
	b.order = append(b.order, f.ID)
	finish := b.onFinish
	b.mu.Unlock()

	if finish != nil {
		finish(f.ID)
	}
	b.fireChange()
	return f.ID
}

func (b *MemoryBackend) fireChange() {
	b.mu.Lock()
	change := b.onChange
	b.mu.Unlock()
	if change != nil {
		change()
	}
}
