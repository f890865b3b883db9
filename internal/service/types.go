// Package service contains business logic for the mapdeck platform.
package service

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Kind identifies what a layer renders. Exactly one kind is active per
// layer and determines which optional fields are meaningful.
type Kind string

const (
	KindVector  Kind = "vector"
	KindHeatmap Kind = "heatmap"
	KindWMS     Kind = "wms"
	KindGeoTIFF Kind = "geotiff"
	KindMarker  Kind = "marker"
)

// Layer represents a renderable data source composed into maps.
// Single source of truth: Huma reads tags for OpenAPI + validation.
type Layer struct {
	ID      string  `json:"id,omitempty" doc:"Unique layer identifier" example:"fishing_zones"`
	Name    string  `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Fishing Zones"`
	Kind    Kind    `json:"kind" required:"true" enum:"vector,heatmap,wms,geotiff,marker" doc:"Layer kind" example:"vector"`
	Visible bool    `json:"visible" default:"true" doc:"Whether layer is currently shown"`
	Opacity float64 `json:"opacity" minimum:"0" maximum:"1" default:"1" doc:"Layer opacity (0-1)" example:"0.7"`
	Color   string  `json:"color,omitempty" doc:"Base color (CSS)" example:"#3388ff"`

	// Data carries the GeoJSON payload for vector, marker and heatmap kinds.
	Data *geojson.FeatureCollection `json:"data,omitempty" doc:"GeoJSON feature collection"`

	Legend   *Legend   `json:"legend,omitempty" doc:"Legend for this layer"`
	Temporal *Temporal `json:"temporal,omitempty" doc:"Temporal metadata and snapshots"`

	// WMS is only valid when Kind is "wms"; GeoTIFF only when Kind is "geotiff".
	WMS     *WMSOptions     `json:"wms,omitempty" doc:"WMS raster options"`
	GeoTIFF *GeoTIFFOptions `json:"geotiff,omitempty" doc:"GeoTIFF raster options"`
}

// WMSOptions configures a WMS raster layer.
type WMSOptions struct {
	URL    string `json:"url" required:"true" doc:"WMS endpoint URL"`
	Layers string `json:"layers,omitempty" doc:"Comma-separated WMS layer names"`
	Format string `json:"format,omitempty" default:"image/png" doc:"Tile image format"`
}

// GeoTIFFOptions configures a GeoTIFF raster layer.
type GeoTIFFOptions struct {
	URL string `json:"url" required:"true" doc:"Cloud-optimized GeoTIFF URL"`
}

// Legend describes how a layer's values map to colors. Either Gradient
// (ordered color stops) or Categories (discrete entries) is set, not both.
type Legend struct {
	Gradient   []GradientStop `json:"gradient,omitempty" doc:"Ordered gradient color stops"`
	Categories []LegendItem   `json:"categories,omitempty" doc:"Categorical legend entries"`
}

// GradientStop is one stop in a gradient legend.
type GradientStop struct {
	Offset float64 `json:"offset" minimum:"0" maximum:"1" doc:"Stop position (0-1)"`
	Color  string  `json:"color" doc:"Stop color (CSS)"`
}

// LegendItem defines a categorical legend entry.
type LegendItem struct {
	Label string `json:"label" doc:"Legend label"`
	Color string `json:"color" doc:"Legend color (CSS)"`
}

// Temporal holds a layer's time range plus ordered geometry snapshots.
type Temporal struct {
	Start     time.Time          `json:"start" doc:"Range start"`
	End       time.Time          `json:"end" doc:"Range end"`
	Snapshots []TemporalSnapshot `json:"snapshots,omitempty" doc:"Ordered snapshots"`
}

// TemporalSnapshot is the layer's geometry at one instant.
type TemporalSnapshot struct {
	Timestamp time.Time                  `json:"timestamp" doc:"Snapshot instant"`
	Data      *geojson.FeatureCollection `json:"data" doc:"Geometry at this instant"`
}

// ValidateKind checks that only the active kind's optional fields are set.
func (l Layer) ValidateKind() error {
	if l.WMS != nil && l.Kind != KindWMS {
		return fmt.Errorf("wms options only valid for kind %q, layer kind is %q", KindWMS, l.Kind)
	}
	if l.GeoTIFF != nil && l.Kind != KindGeoTIFF {
		return fmt.Errorf("geotiff options only valid for kind %q, layer kind is %q", KindGeoTIFF, l.Kind)
	}
	if l.Kind == KindWMS && l.WMS == nil {
		return fmt.Errorf("layer kind %q requires wms options", KindWMS)
	}
	if l.Kind == KindGeoTIFF && l.GeoTIFF == nil {
		return fmt.Errorf("layer kind %q requires geotiff options", KindGeoTIFF)
	}
	return nil
}

// Role is a member's capability on a map. Enforcement is the backend's
// concern; roles are carried as data here.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// MapMember associates a user with a role on a map.
type MapMember struct {
	UserID string `json:"userId" required:"true" doc:"Member user ID"`
	Role   Role   `json:"role" required:"true" enum:"owner,editor,viewer" doc:"Member role"`
}

// MapConfig represents a map composed from layers.
type MapConfig struct {
	ID       string      `json:"id,omitempty" doc:"Unique map identifier" example:"harbor_plan"`
	Name     string      `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Harbor Plan"`
	Center   [2]float64  `json:"center" doc:"Initial center as [lng, lat]"`
	Zoom     float64     `json:"zoom" minimum:"0" maximum:"22" default:"10" doc:"Initial zoom level"`
	Basemap  string      `json:"basemap,omitempty" default:"streets" doc:"Basemap style key" example:"streets"`
	LayerIDs []string    `json:"layerIds,omitempty" doc:"Ordered layer IDs, first renders topmost"`
	Members  []MapMember `json:"members,omitempty" doc:"Map members and their roles"`
}

// Comment is one entry in a map's threaded discussion. A non-empty
// ParentID makes it a reply; Location optionally anchors it to a point.
type Comment struct {
	ID        string      `json:"id,omitempty" doc:"Unique comment identifier"`
	MapID     string      `json:"mapId" required:"true" doc:"Map this comment belongs to"`
	ParentID  string      `json:"parentId,omitempty" doc:"Parent comment ID for replies"`
	Author    string      `json:"author" required:"true" doc:"Author user ID"`
	Body      string      `json:"body" required:"true" minLength:"1" doc:"Comment text"`
	Location  *[2]float64 `json:"location,omitempty" doc:"Optional anchor as [lng, lat]"`
	CreatedAt time.Time   `json:"createdAt" doc:"Creation time"`
}
