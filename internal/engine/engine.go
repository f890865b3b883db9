// Package engine wraps an imperative drawing backend behind an operation
// set independent of its lifecycle quirks: the backend is constructed
// asynchronously and is unusable until the renderer's style has loaded,
// so every adapter operation is a silent no-op until readiness.
package engine

import (
	"github.com/paulmach/orb"
)

// GeometryType is the shape the user draws.
type GeometryType string

const (
	TypePoint      GeometryType = "point"
	TypeLineString GeometryType = "linestring"
	TypePolygon    GeometryType = "polygon"
	TypeRectangle  GeometryType = "rectangle"
	TypeCircle     GeometryType = "circle"
	TypeFreehand   GeometryType = "freehand"
)

// DrawTypes lists every drawable geometry type.
var DrawTypes = []GeometryType{
	TypePoint, TypeLineString, TypePolygon, TypeRectangle, TypeCircle, TypeFreehand,
}

// Mode is a backend interaction mode. Every geometry type has a matching
// draw mode; select and delete are persistent non-draw modes, while
// delete-selection is an immediate action that reverts to select.
type Mode string

const (
	ModeSelect          Mode = "select"
	ModeDelete          Mode = "delete"
	ModeDeleteSelection Mode = "delete-selection"

	ModePoint      Mode = Mode(TypePoint)
	ModeLineString Mode = Mode(TypeLineString)
	ModePolygon    Mode = Mode(TypePolygon)
	ModeRectangle  Mode = Mode(TypeRectangle)
	ModeCircle     Mode = Mode(TypeCircle)
	ModeFreehand   Mode = Mode(TypeFreehand)
)

// DrawMode returns the draw mode for a geometry type.
func DrawMode(t GeometryType) Mode {
	return Mode(t)
}

// drawModes lists every mode that carries paint styles for drawing.
var drawModes = []Mode{
	ModePoint, ModeLineString, ModePolygon, ModeRectangle, ModeCircle, ModeFreehand,
}

// Feature is one geometry object known to the backend. The ID is assigned
// by the backend and is stable only within one drawing session: re-adding
// the same logical feature yields a new ID.
type Feature struct {
	ID         string
	Type       GeometryType
	Geometry   orb.Geometry
	Properties map[string]any
}

// Selected reports the backend's selection flag for this feature.
func (f Feature) Selected() bool {
	v, ok := f.Properties["selected"].(bool)
	return ok && v
}

// Styles are the paint options applied per mode.
type Styles struct {
	Color        string
	LineWidth    float64
	FillPolygons bool
}

// Backend is the imperative third-party drawing library surface the
// adapter drives. Implementations are not required to be safe for
// concurrent use; the adapter serializes access.
type Backend interface {
	// Start enables the backend's map control; Stop detaches it.
	Start()
	Stop()
	Enabled() bool

	// SetMode switches the persistent interaction mode.
	SetMode(m Mode)
	Mode() Mode

	// SetModeStyles replaces the paint styles for one mode.
	SetModeStyles(m Mode, s Styles)

	// AddFeatures submits a batch and returns the backend-assigned IDs in
	// input order.
	AddFeatures(features []Feature) []string

	// RemoveFeatures removes the given IDs.
	RemoveFeatures(ids []string)

	// ClearAll removes every feature.
	ClearAll()

	// Deselect clears the selection flag on one feature.
	Deselect(id string)

	// Snapshot returns a copy of every feature currently held.
	Snapshot() []Feature

	// OnFinish registers the draw-finish callback. The backend delivers
	// only the finished feature's ID; callers re-read the snapshot.
	OnFinish(fn func(id string))

	// OnChange registers the change callback fired after any mutation.
	OnChange(fn func())
}
