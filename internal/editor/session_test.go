package editor

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
)

const sampleImport = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {"name": "Dock"}, "geometry": {"type": "Point", "coordinates": [1, 2]}},
		{"type": "Feature", "properties": {"name": "Channel", "lineStyle": "dashed"}, "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}}
	]
}`

func newSession(t *testing.T) (*Session, *engine.MemoryBackend) {
	t.Helper()
	b := engine.NewMemoryBackend()
	a := engine.NewAdapter()
	a.Attach(b)
	return NewSession(a, metadata.NewStore()), b
}

func TestParseImport(t *testing.T) {
	t.Run("feature collection", func(t *testing.T) {
		pendings, err := ParseImport([]byte(sampleImport))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pendings) != 2 {
			t.Fatalf("pendings = %d, want 2", len(pendings))
		}
		if pendings[0].Meta.Name != "Dock" || pendings[0].Type != engine.TypePoint {
			t.Fatalf("pending[0] = %+v", pendings[0])
		}
		if pendings[1].Meta.LineStyle != metadata.LineDashed {
			t.Fatalf("lineStyle = %q, want dashed", pendings[1].Meta.LineStyle)
		}
	})

	t.Run("single feature", func(t *testing.T) {
		raw := `{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [3, 4]}}`
		pendings, err := ParseImport([]byte(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pendings) != 1 {
			t.Fatalf("pendings = %d, want 1", len(pendings))
		}
	})

	t.Run("multi geometries explode", func(t *testing.T) {
		raw := `{"type": "Feature", "properties": {"name": "Zones"}, "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,0],[0,1],[1,1],[0,0]]], [[[2,2],[2,3],[3,3],[2,2]]]]}}`
		pendings, err := ParseImport([]byte(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pendings) != 2 {
			t.Fatalf("pendings = %d, want 2 exploded polygons", len(pendings))
		}
		for _, p := range pendings {
			if p.Type != engine.TypePolygon || p.Meta.Name != "Zones" {
				t.Fatalf("pending = %+v", p)
			}
		}
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := ParseImport([]byte("not geojson"))
		var ie *ImportError
		if !errors.As(err, &ie) {
			t.Fatalf("expected ImportError, got %v", err)
		}
	})
}

func TestMaterializeRemapsAtomically(t *testing.T) {
	s, _ := newSession(t)
	if _, err := s.Import([]byte(sampleImport)); err != nil {
		t.Fatalf("import: %v", err)
	}

	pendingIDs := s.meta.IDs()
	newIDs := s.Materialize()

	if len(newIDs) != 2 {
		t.Fatalf("new ids = %d, want 2", len(newIDs))
	}
	if s.meta.Len() != 2 {
		t.Fatalf("metadata entries = %d, want exactly 2", s.meta.Len())
	}
	for _, old := range pendingIDs {
		if _, ok := s.meta.Get(old); ok {
			t.Fatalf("old pending key %q survived remap", old)
		}
	}
	for _, id := range newIDs {
		if _, ok := s.meta.Get(id); !ok {
			t.Fatalf("no metadata under engine id %q", id)
		}
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	s, b := newSession(t)
	s.Import([]byte(sampleImport))

	s.Materialize()
	again := s.Materialize()

	if again != nil {
		t.Fatalf("second materialize added ids: %v", again)
	}
	if got := len(b.Snapshot()); got != 2 {
		t.Fatalf("snapshot = %d, want 2 (no double-add)", got)
	}
}

func TestMaterializeNotReady(t *testing.T) {
	b := engine.NewMemoryBackend()
	a := engine.NewAdapter() // never attached
	s := NewSession(a, metadata.NewStore())
	s.Import([]byte(sampleImport))

	if ids := s.Materialize(); ids != nil {
		t.Fatalf("ids = %v, want nil while engine not ready", ids)
	}

	// Once the engine is ready the same batch goes through.
	a.Attach(b)
	if ids := s.Materialize(); len(ids) != 2 {
		t.Fatalf("ids = %v, want 2 after attach", ids)
	}
}

func TestEditLayerIdentityChangeResets(t *testing.T) {
	s, b := newSession(t)

	first := layerWithPoint("alpha", "Alpha", 1, 1)
	s.EditLayer(first)
	s.Materialize()
	if got := len(b.Snapshot()); got != 1 {
		t.Fatalf("snapshot = %d, want 1", got)
	}

	second := layerWithPoint("beta", "Beta", 2, 2)
	s.EditLayer(second)
	s.Materialize()

	// Features from the previous layer must not bleed into this session.
	if got := len(b.Snapshot()); got != 1 {
		t.Fatalf("snapshot = %d, want 1 after switching layers", got)
	}
	if s.Name() != "Beta" {
		t.Fatalf("name = %q, want Beta", s.Name())
	}
}

func TestSyncFromEngine(t *testing.T) {
	s, b := newSession(t)
	s.Import([]byte(sampleImport))
	ids := s.Materialize()

	b.RemoveFeatures(ids[:1])
	s.SyncFromEngine()

	if _, ok := s.meta.Get(ids[0]); ok {
		t.Fatalf("metadata for deleted feature should be gone")
	}
	if _, ok := s.meta.Get(ids[1]); !ok {
		t.Fatalf("metadata for surviving feature should remain")
	}
}

func TestMetadataGeometryConsistency(t *testing.T) {
	s, b := newSession(t)

	// import, draw, delete, sync: metadata keys always match the snapshot.
	s.Import([]byte(sampleImport))
	s.Materialize()

	b.SetMode(engine.ModePolygon)
	drawn := b.FinishDraw(engine.Feature{
		Type:     engine.TypePolygon,
		Geometry: orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}},
	})
	s.HandleFinish(drawn)

	snapshot := b.Snapshot()
	b.RemoveFeatures([]string{snapshot[0].ID})
	s.SyncFromEngine()

	live := make(map[string]struct{})
	for _, f := range b.Snapshot() {
		live[f.ID] = struct{}{}
	}
	for _, id := range s.meta.IDs() {
		if _, ok := live[id]; !ok {
			t.Fatalf("orphaned metadata key %q", id)
		}
	}
	if s.meta.Len() != len(live) {
		t.Fatalf("metadata entries = %d, live features = %d", s.meta.Len(), len(live))
	}
}

func TestValidate(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		s, b := newSession(t)
		b.SetMode(engine.ModePolygon)
		b.FinishDraw(engine.Feature{Type: engine.TypePolygon, Geometry: orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}})

		_, err := s.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Msg != "name required" {
			t.Fatalf("err = %v, want name required", err)
		}
	})

	t.Run("zero features", func(t *testing.T) {
		s, _ := newSession(t)
		s.SetName("Fishing Zones")

		_, err := s.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Msg != "no features" {
			t.Fatalf("err = %v, want no features", err)
		}
	})

	t.Run("unnamed feature is a warning only", func(t *testing.T) {
		s, b := newSession(t)
		s.SetName("Fishing Zones")
		id1 := b.FinishDraw(engine.Feature{Type: engine.TypePoint, Geometry: orb.Point{0, 0}})
		id2 := b.FinishDraw(engine.Feature{Type: engine.TypePoint, Geometry: orb.Point{1, 1}})
		s.HandleFinish(id1)
		s.HandleFinish(id2)
		s.SetEntry(id1, metadata.Entry{Name: "North buoy"})

		warnings, err := s.Validate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(warnings) != 1 {
			t.Fatalf("warnings = %v, want 1", warnings)
		}
	})
}

func TestBuildLayer(t *testing.T) {
	s, b := newSession(t)
	s.SetName("Fishing Zones")
	s.SetColor("#ff8800")

	s.Import([]byte(sampleImport))
	ids := s.Materialize()
	s.SetEntry(ids[0], metadata.Entry{Name: "Dock", Icon: "anchor"})

	// A feature drawn by hand with no metadata entry at all still makes it
	// into the layer with default metadata.
	b.FinishDraw(engine.Feature{Type: engine.TypePoint, Geometry: orb.Point{5, 5}})

	layer, warnings, err := s.BuildLayer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layer.Data.Features) != 3 {
		t.Fatalf("features = %d, want 3 (geometry is source of truth)", len(layer.Data.Features))
	}
	if layer.Kind != service.KindVector || layer.Name != "Fishing Zones" {
		t.Fatalf("layer = %+v", layer)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected warning for the unnamed drawn feature")
	}

	named := 0
	for _, f := range layer.Data.Features {
		if f.Properties.MustString("name", "") != "" {
			named++
		}
	}
	if named != 2 {
		t.Fatalf("named features = %d, want 2", named)
	}
}

func layerWithPoint(id, name string, lng, lat float64) service.Layer {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{lng, lat}))
	return service.Layer{ID: id, Name: name, Kind: service.KindVector, Visible: true, Opacity: 1, Data: fc}
}

func TestBuildLayerKeepsStoredDisplayFields(t *testing.T) {
	s, _ := newSession(t)

	stored := layerWithPoint("zones", "Zones", 1, 1)
	stored.Opacity = 0.35
	stored.Visible = false
	stored.Legend = &service.Legend{Categories: []service.LegendItem{{Label: "Zone", Color: "#ff8800"}}}
	s.EditLayer(stored)
	s.Materialize()

	layer, _, err := s.BuildLayer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if layer.Opacity != 0.35 || layer.Visible {
		t.Fatalf("display fields = opacity %v visible %v, want stored values", layer.Opacity, layer.Visible)
	}
	if layer.Legend == nil || len(layer.Legend.Categories) != 1 {
		t.Fatalf("legend = %+v, want stored legend", layer.Legend)
	}

	// A fresh session still builds with display defaults.
	s.Reset()
	s.SetName("New Layer")
	s.Import([]byte(sampleImport))
	s.Materialize()
	fresh, _, err := s.BuildLayer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.Opacity != 1 || !fresh.Visible || fresh.Legend != nil {
		t.Fatalf("fresh layer = %+v, want default display fields", fresh)
	}
}
