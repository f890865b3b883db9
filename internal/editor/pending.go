// Package editor reconciles three independently mutating views of the
// same feature set: the metadata store (UI truth for names and
// descriptions), the pending-feature list (features not yet drawn), and
// the drawing engine's live snapshot (geometry truth).
package editor

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mapdeck/mapdeck/internal/engine"
	"github.com/mapdeck/mapdeck/internal/metadata"
	"github.com/mapdeck/mapdeck/internal/service"
)

// PendingFeature is a drawn-feature-to-be: parsed from an import or from
// a layer entering edit mode, not yet materialized in the engine. Its ID
// is locally generated and replaced by the engine's on materialization.
type PendingFeature struct {
	ID       string
	Type     engine.GeometryType
	Geometry orb.Geometry
	Meta     metadata.Entry
}

// ParseImport parses raw GeoJSON text (a FeatureCollection or a single
// Feature) into pending features. Multi-part geometries are exploded into
// one pending feature per part; unsupported geometry types are skipped.
func ParseImport(raw []byte) ([]PendingFeature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		f, ferr := geojson.UnmarshalFeature(raw)
		if ferr != nil {
			return nil, &ImportError{Err: err}
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(f)
	}
	return fromCollection(fc), nil
}

// FromLayer converts an existing layer's stored geometry into pending
// features for edit-mode initialization. Both this and ParseImport funnel
// through the identical materialize/remap pipeline.
func FromLayer(l service.Layer) []PendingFeature {
	if l.Data == nil {
		return nil
	}
	return fromCollection(l.Data)
}

func fromCollection(fc *geojson.FeatureCollection) []PendingFeature {
	var out []PendingFeature
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		meta := entryFromProperties(f.Properties)
		for _, g := range explode(f.Geometry) {
			t, ok := drawableType(g)
			if !ok {
				continue
			}
			out = append(out, PendingFeature{
				ID:       uuid.NewString(),
				Type:     t,
				Geometry: g,
				Meta:     meta,
			})
		}
	}
	return out
}

// explode splits multi-part geometries into single parts the engine can
// hold as individual features.
func explode(g orb.Geometry) []orb.Geometry {
	switch geom := g.(type) {
	case orb.MultiPoint:
		out := make([]orb.Geometry, 0, len(geom))
		for _, p := range geom {
			out = append(out, p)
		}
		return out
	case orb.MultiLineString:
		out := make([]orb.Geometry, 0, len(geom))
		for _, ls := range geom {
			out = append(out, ls)
		}
		return out
	case orb.MultiPolygon:
		out := make([]orb.Geometry, 0, len(geom))
		for _, poly := range geom {
			out = append(out, poly)
		}
		return out
	case orb.Collection:
		var out []orb.Geometry
		for _, sub := range geom {
			out = append(out, explode(sub)...)
		}
		return out
	default:
		return []orb.Geometry{g}
	}
}

func drawableType(g orb.Geometry) (engine.GeometryType, bool) {
	switch g.(type) {
	case orb.Point:
		return engine.TypePoint, true
	case orb.LineString:
		return engine.TypeLineString, true
	case orb.Polygon:
		return engine.TypePolygon, true
	}
	return "", false
}

func entryFromProperties(props geojson.Properties) metadata.Entry {
	e := metadata.Entry{}
	if props == nil {
		return e
	}
	if v, ok := props["name"].(string); ok {
		e.Name = v
	}
	if v, ok := props["description"].(string); ok {
		e.Description = v
	}
	if v, ok := props["icon"].(string); ok {
		e.Icon = v
	}
	if v, ok := props["lineStyle"].(string); ok {
		e.LineStyle = metadata.LineStyle(v)
	}
	return e
}
