package engine

import "sync"

// Adapter hides the drawing backend behind a stable operation set. Until
// Attach is called every operation is a silent no-op: not-ready is an
// expected transient state, never an error.
type Adapter struct {
	mu      sync.Mutex
	backend Backend
	styles  Styles
}

// NewAdapter creates a detached adapter with default styles.
func NewAdapter() *Adapter {
	return &Adapter{
		styles: Styles{Color: "#3388ff", LineWidth: 2, FillPolygons: true},
	}
}

// Attach binds the loaded backend and registers no callbacks; listener
// registration happens once in the canvas controller.
func (a *Adapter) Attach(b Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backend = b
}

// Detach drops the backend reference, returning to the no-op state.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend != nil && a.backend.Enabled() {
		a.backend.Stop()
	}
	a.backend = nil
}

// Ready reports whether a backend is attached.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backend != nil
}

// StartDrawing enables the backend if needed, applies the color to every
// draw mode's paint style, and switches to the matching draw mode.
// Existing features are kept: multiple features may be drawn before
// commit.
func (a *Adapter) StartDrawing(t GeometryType, color string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return
	}
	if !a.backend.Enabled() {
		a.backend.Start()
	}
	if color != "" {
		a.styles.Color = color
	}
	for _, m := range drawModes {
		a.backend.SetModeStyles(m, a.styles)
	}
	a.backend.SetMode(DrawMode(t))
}

// SetDrawMode switches to select or delete, or performs the immediate
// delete-selection action: remove every selected feature from the current
// snapshot, then revert to select.
func (a *Adapter) SetDrawMode(m Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return
	}

	if m != ModeDeleteSelection {
		a.backend.SetMode(m)
		return
	}

	var selected []string
	for _, f := range a.backend.Snapshot() {
		if f.Selected() {
			selected = append(selected, f.ID)
		}
	}
	if len(selected) > 0 {
		a.backend.RemoveFeatures(selected)
	}
	a.backend.SetMode(ModeSelect)
}

// CancelDrawing forces select mode and clears all features. Idempotent.
func (a *Adapter) CancelDrawing() {
	a.clear()
}

// ClearDrawings forces select mode and clears all features. Idempotent.
func (a *Adapter) ClearDrawings() {
	a.clear()
}

func (a *Adapter) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return
	}
	a.backend.SetMode(ModeSelect)
	if len(a.backend.Snapshot()) > 0 {
		a.backend.ClearAll()
	}
}

// AddFeatures submits a batch of features, tagging each with its
// mode-derived discriminator, and returns the backend-assigned IDs in
// input order. Switches to select mode afterward so the injected features
// are immediately interactive. Callers must not assume IDs are stable
// across repeated calls with the same logical feature.
func (a *Adapter) AddFeatures(features []Feature, color string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil || len(features) == 0 {
		return nil
	}
	if !a.backend.Enabled() {
		a.backend.Start()
	}
	if color != "" {
		a.styles.Color = color
		for _, m := range drawModes {
			a.backend.SetModeStyles(m, a.styles)
		}
	}

	batch := make([]Feature, len(features))
	for i, f := range features {
		props := make(map[string]any, len(f.Properties)+1)
		for k, v := range f.Properties {
			props[k] = v
		}
		// The backend classifies geometry by the mode property.
		props["mode"] = string(DrawMode(f.Type))
		f.Properties = props
		batch[i] = f
	}

	ids := a.backend.AddFeatures(batch)
	a.backend.SetMode(ModeSelect)
	return ids
}

// RemoveFeature removes one feature. A selected feature is deselected
// first; skipping that can leave dangling selection state in the backend.
// When it is the only feature present the bulk clear path is used
// instead: single-feature removal does not reliably refresh the target
// engine. Engine-specific workaround, re-verify when swapping backends.
func (a *Adapter) RemoveFeature(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return
	}

	snapshot := a.backend.Snapshot()
	var found *Feature
	for i := range snapshot {
		if snapshot[i].ID == id {
			found = &snapshot[i]
			break
		}
	}
	if found == nil {
		return
	}

	if found.Selected() {
		a.backend.Deselect(id)
	}
	if len(snapshot) == 1 {
		a.backend.ClearAll()
		return
	}
	a.backend.RemoveFeatures([]string{id})
}

// UpdateDrawingStyles updates paint options for every mode including the
// select mode's highlight, so currently-selected features pick up the new
// color. Already-drawn unselected features do not restyle; re-adding them
// would flicker.
func (a *Adapter) UpdateDrawingStyles(s Styles) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.styles = s
	if a.backend == nil {
		return
	}
	for _, m := range drawModes {
		a.backend.SetModeStyles(m, s)
	}
	a.backend.SetModeStyles(ModeSelect, s)
}

// Snapshot returns the backend's current features, or nil before ready.
func (a *Adapter) Snapshot() []Feature {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return nil
	}
	return a.backend.Snapshot()
}

// Mode returns the backend's current mode, or select before ready.
func (a *Adapter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == nil {
		return ModeSelect
	}
	return a.backend.Mode()
}

// Styles returns the adapter's current paint options.
func (a *Adapter) Styles() Styles {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.styles
}
