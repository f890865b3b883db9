// Package geom provides GeoJSON geometry helpers shared by the drawing
// and rendering subsystems.
//
// Uses paulmach/orb for geometry types and GeoJSON (de)serialization.
package geom

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Bounds computes the bounding box of every finite coordinate in the
// collection. Returns false when the collection is nil, empty, or contains
// no finite coordinate.
func Bounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	acc := boundAcc{}
	if fc != nil {
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			acc.addGeometry(f.Geometry)
		}
	}
	if !acc.any {
		return orb.Bound{}, false
	}
	return acc.bound, true
}

type boundAcc struct {
	bound orb.Bound
	any   bool
}

func (a *boundAcc) addPoint(p orb.Point) {
	if !finite(p[0]) || !finite(p[1]) {
		return
	}
	if !a.any {
		a.bound = orb.Bound{Min: p, Max: p}
		a.any = true
		return
	}
	a.bound = a.bound.Extend(p)
}

func (a *boundAcc) addGeometry(g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Point:
		a.addPoint(geom)
	case orb.MultiPoint:
		for _, p := range geom {
			a.addPoint(p)
		}
	case orb.LineString:
		for _, p := range geom {
			a.addPoint(p)
		}
	case orb.MultiLineString:
		for _, ls := range geom {
			for _, p := range ls {
				a.addPoint(p)
			}
		}
	case orb.Ring:
		for _, p := range geom {
			a.addPoint(p)
		}
	case orb.Polygon:
		for _, ring := range geom {
			for _, p := range ring {
				a.addPoint(p)
			}
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, ring := range poly {
				for _, p := range ring {
					a.addPoint(p)
				}
			}
		}
	case orb.Collection:
		for _, sub := range geom {
			a.addGeometry(sub)
		}
	case orb.Bound:
		a.addPoint(geom.Min)
		a.addPoint(geom.Max)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HeatPoint is one heatmap sample as delivered by callers: a location plus
// a visual weight.
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
}

// HeatmapPoints converts heatmap samples into a GeoJSON collection of
// points carrying an "intensity" property.
func HeatmapPoints(points []HeatPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, hp := range points {
		f := geojson.NewFeature(orb.Point{hp.Lng, hp.Lat})
		f.Properties = geojson.Properties{"intensity": hp.Intensity}
		fc.Append(f)
	}
	return fc
}

// ContentHash returns a cheap content fingerprint of a geometry payload.
// The payload is re-serialized canonically (Go's encoding/json sorts map
// keys) before hashing, so key-order differences in the input never change
// the hash. Not cryptographic: it only gates a render fast path.
func ContentHash(fc *geojson.FeatureCollection) string {
	if fc == nil {
		return ""
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	h.Write(canonical)
	return fmt.Sprintf("%016x", h.Sum64())
}
