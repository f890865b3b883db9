package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestBounds(t *testing.T) {
	t.Run("unit square polygon", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Polygon{
			{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}},
		}))

		b, ok := Bounds(fc)
		if !ok {
			t.Fatalf("expected bounds")
		}
		if b.Min[0] != 0 || b.Min[1] != 0 || b.Max[0] != 1 || b.Max[1] != 1 {
			t.Fatalf("bounds = %v, want west 0 south 0 east 1 north 1", b)
		}
	})

	t.Run("mixed geometry types", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{-3, 5}))
		fc.Append(geojson.NewFeature(orb.LineString{{2, -1}, {4, 0}}))
		fc.Append(geojson.NewFeature(orb.MultiPolygon{
			{{{0, 0}, {0, 2}, {2, 2}, {0, 0}}},
		}))

		b, ok := Bounds(fc)
		if !ok {
			t.Fatalf("expected bounds")
		}
		if b.Min[0] != -3 || b.Min[1] != -1 || b.Max[0] != 4 || b.Max[1] != 5 {
			t.Fatalf("bounds = %v", b)
		}
	})

	t.Run("non-finite coordinates are skipped", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{math.NaN(), 1}))
		fc.Append(geojson.NewFeature(orb.Point{3, math.Inf(1)}))
		fc.Append(geojson.NewFeature(orb.Point{1, 2}))

		b, ok := Bounds(fc)
		if !ok {
			t.Fatalf("expected bounds from remaining finite point")
		}
		if b.Min != (orb.Point{1, 2}) || b.Max != (orb.Point{1, 2}) {
			t.Fatalf("bounds = %v", b)
		}
	})

	t.Run("nil and empty collections", func(t *testing.T) {
		if _, ok := Bounds(nil); ok {
			t.Fatalf("expected no bounds for nil collection")
		}
		if _, ok := Bounds(geojson.NewFeatureCollection()); ok {
			t.Fatalf("expected no bounds for empty collection")
		}
	})
}

func TestHeatmapPoints(t *testing.T) {
	fc := HeatmapPoints([]HeatPoint{
		{Lat: 52.5, Lng: 13.4, Intensity: 0.8},
		{Lat: 48.1, Lng: 11.6, Intensity: 0.2},
	})
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(fc.Features))
	}
	p, ok := fc.Features[0].Geometry.(orb.Point)
	if !ok {
		t.Fatalf("expected point geometry, got %T", fc.Features[0].Geometry)
	}
	if p[0] != 13.4 || p[1] != 52.5 {
		t.Fatalf("point = %v, want [lng lat]", p)
	}
	if got := fc.Features[0].Properties.MustFloat64("intensity"); got != 0.8 {
		t.Fatalf("intensity = %v, want 0.8", got)
	}
}

func TestContentHash(t *testing.T) {
	t.Run("stable across calls", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		f := geojson.NewFeature(orb.Point{1, 2})
		f.Properties = geojson.Properties{"a": "x", "b": "y"}
		fc.Append(f)

		if ContentHash(fc) != ContentHash(fc) {
			t.Fatalf("hash is not deterministic")
		}
	})

	t.Run("differs when geometry changes", func(t *testing.T) {
		a := geojson.NewFeatureCollection()
		a.Append(geojson.NewFeature(orb.Point{1, 2}))
		b := geojson.NewFeatureCollection()
		b.Append(geojson.NewFeature(orb.Point{1, 3}))

		if ContentHash(a) == ContentHash(b) {
			t.Fatalf("expected different hashes for different geometry")
		}
	})

	t.Run("nil collection", func(t *testing.T) {
		if ContentHash(nil) != "" {
			t.Fatalf("expected empty hash for nil collection")
		}
	})
}
