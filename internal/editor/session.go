package editor

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
)

// Session orchestrates one layer-authoring flow: it feeds pending
// features into the drawing engine, remaps engine-assigned IDs back into
// the metadata store, and assembles the final layer from the engine's
// snapshot.
type Session struct {
	adapter *engine.Adapter
	meta    *metadata.Store

	name    string
	color   string
	pending []PendingFeature
	seen    map[string]struct{}

	// editing is the ID of the saved layer being edited, empty for a new
	// layer. Switching it resets materialization tracking so stale
	// features never bleed into the new edit session.
	editing string

	// base is the stored layer as of the last EditLayer call. Re-saving
	// builds on it so display fields the editor does not own (opacity,
	// visibility, legend, temporal) survive the round trip.
	base service.Layer
}

// NewSession creates a session over an adapter and metadata store.
func NewSession(adapter *engine.Adapter, meta *metadata.Store) *Session {
	return &Session{
		adapter: adapter,
		meta:    meta,
		seen:    make(map[string]struct{}),
	}
}

// SetName sets the layer name field.
func (s *Session) SetName(name string) { s.name = name }

// Name returns the layer name field.
func (s *Session) Name() string { return s.name }

// SetColor sets the layer's base color.
func (s *Session) SetColor(color string) { s.color = color }

// Meta returns the session's metadata store.
func (s *Session) Meta() *metadata.Store { return s.meta }

// Import parses raw GeoJSON and queues the resulting pending features.
// Returns how many were queued. The caller keeps the raw text on error.
func (s *Session) Import(raw []byte) (int, error) {
	pendings, err := ParseImport(raw)
	if err != nil {
		return 0, err
	}
	s.queue(pendings)
	return len(pendings), nil
}

// EditLayer initializes the session from an existing saved layer. A
// layer-identity change resets all tracking first.
func (s *Session) EditLayer(l service.Layer) {
	if s.editing != l.ID {
		s.Reset()
		s.editing = l.ID
	}
	s.name = l.Name
	s.color = l.Color
	s.base = l
	s.queue(FromLayer(l))
}

func (s *Session) queue(pendings []PendingFeature) {
	for _, p := range pendings {
		s.pending = append(s.pending, p)
		s.meta.Set(p.ID, p.Meta)
	}
}

// Reset clears pending features, materialization tracking, metadata, and
// the engine's drawings.
func (s *Session) Reset() {
	s.pending = nil
	s.seen = make(map[string]struct{})
	s.editing = ""
	s.name = ""
	s.base = service.Layer{}
	s.meta.Reset()
	s.adapter.ClearDrawings()
}

// Materialize injects every pending feature not yet seen into the engine
// and remaps the metadata keys from pending IDs to engine IDs in one
// atomic batch. Safe to call repeatedly: the seen set prevents
// double-adding. Returns the engine IDs assigned this call.
func (s *Session) Materialize() []string {
	var batch []engine.Feature
	var oldIDs []string
	for _, p := range s.pending {
		if _, done := s.seen[p.ID]; done {
			continue
		}
		batch = append(batch, engine.Feature{
			Type:     p.Type,
			Geometry: p.Geometry,
		})
		oldIDs = append(oldIDs, p.ID)
	}
	if len(batch) == 0 {
		return nil
	}

	newIDs := s.adapter.AddFeatures(batch, s.color)
	if newIDs == nil {
		// Engine not ready; leave the batch pending for a later pass.
		return nil
	}

	pairs := make([]metadata.RenamePair, 0, len(newIDs))
	for i, newID := range newIDs {
		pairs = append(pairs, metadata.RenamePair{Old: oldIDs[i], New: newID})
		s.seen[oldIDs[i]] = struct{}{}
	}
	s.meta.Rename(pairs)
	return newIDs
}

// SyncFromEngine drops metadata entries whose feature no longer exists in
// the engine snapshot. Call whenever the engine reports a change.
func (s *Session) SyncFromEngine() {
	snapshot := s.adapter.Snapshot()
	live := make(map[string]struct{}, len(snapshot))
	for _, f := range snapshot {
		live[f.ID] = struct{}{}
	}
	// Pending features not yet materialized keep their metadata.
	for _, p := range s.pending {
		if _, done := s.seen[p.ID]; !done {
			live[p.ID] = struct{}{}
		}
	}
	s.meta.Retain(live)
}

// HandleFinish records a freshly hand-drawn feature. The engine already
// assigned the ID, so no remap is needed on this path.
func (s *Session) HandleFinish(id string) {
	if _, ok := s.meta.Get(id); !ok {
		s.meta.Set(id, metadata.Entry{})
	}
}

// SetEntry updates one feature's metadata.
func (s *Session) SetEntry(id string, e metadata.Entry) {
	s.meta.Set(id, e)
}

// Validate checks the session before save. The error is a
// *ValidationError for user-correctable problems; warnings are non-fatal
// (save proceeds).
func (s *Session) Validate() ([]string, error) {
	if s.name == "" {
		return nil, &ValidationError{Msg: "name required"}
	}
	snapshot := s.adapter.Snapshot()
	if len(snapshot) == 0 {
		return nil, &ValidationError{Msg: "no features"}
	}

	var warnings []string
	for _, f := range snapshot {
		e, _ := s.meta.Get(f.ID)
		if e.Name == "" {
			warnings = append(warnings, fmt.Sprintf("feature %s has no name", f.ID))
		}
	}
	return warnings, nil
}

// BuildLayer validates and assembles the final layer. The engine snapshot
// is the source of truth for what exists: geometry without metadata gets
// default (empty-name) metadata rather than being dropped.
func (s *Session) BuildLayer() (service.Layer, []string, error) {
	warnings, err := s.Validate()
	if err != nil {
		return service.Layer{}, nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, ef := range s.adapter.Snapshot() {
		f := geojson.NewFeature(ef.Geometry)
		e, _ := s.meta.Get(ef.ID)
		props := geojson.Properties{"name": e.Name}
		if e.Description != "" {
			props["description"] = e.Description
		}
		switch ef.Type {
		case engine.TypePoint:
			if e.Icon != "" {
				props["icon"] = e.Icon
			}
		default:
			if e.LineStyle != "" {
				props["lineStyle"] = string(e.LineStyle)
			}
		}
		f.Properties = props
		fc.Append(f)
	}

	layer := service.Layer{Kind: service.KindVector, Visible: true, Opacity: 1}
	if s.editing != "" {
		layer = s.base
	}
	layer.ID = s.editing
	layer.Name = s.name
	layer.Color = s.color
	layer.Data = fc
	return layer, warnings, nil
}
