// Package store keeps saved layer geometry in DuckDB for analytical
// queries alongside the JSON persistence the services own.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/mapdeck/mapdeck/internal/geom"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Open returns the singleton DuckDB connection with the geometry schema
// applied.
func Open(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}

		dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", dbPath)
		if initErr != nil {
			return
		}

		// Extensions might already be installed, continue on error.
		for _, ext := range []string{"spatial", "json"} {
			instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
		}

		_, initErr = instance.Exec(`
			CREATE TABLE IF NOT EXISTS layer_geometry (
				layer_id VARCHAR PRIMARY KEY,
				feature_count INTEGER NOT NULL,
				geojson VARCHAR NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`)
	})
	return instance, initErr
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

// GeometryStore persists layer feature collections. A nil *GeometryStore
// is valid and turns every method into a no-op, so callers degrade
// gracefully when DuckDB is unavailable.
type GeometryStore struct {
	db *sql.DB
}

// NewGeometryStore wraps an open database.
func NewGeometryStore(db *sql.DB) *GeometryStore {
	if db == nil {
		return nil
	}
	return &GeometryStore{db: db}
}

// DB exposes the raw connection for the query endpoints.
func (s *GeometryStore) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// SaveLayerGeometry upserts one layer's feature collection.
func (s *GeometryStore) SaveLayerGeometry(layerID string, fc *geojson.FeatureCollection) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal layer %s: %w", layerID, err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO layer_geometry (layer_id, feature_count, geojson, updated_at)
		VALUES (?, ?, ?, ?)`,
		layerID, len(fc.Features), string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store layer %s: %w", layerID, err)
	}
	return nil
}

// LayerGeometry reads one layer's feature collection back.
func (s *GeometryStore) LayerGeometry(layerID string) (*geojson.FeatureCollection, error) {
	if s == nil {
		return nil, fmt.Errorf("geometry store not available")
	}
	var raw string
	err := s.db.QueryRow(`SELECT geojson FROM layer_geometry WHERE layer_id = ?`, layerID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load layer %s: %w", layerID, err)
	}
	return geojson.UnmarshalFeatureCollection([]byte(raw))
}

// DeleteLayerGeometry drops a layer's stored geometry.
func (s *GeometryStore) DeleteLayerGeometry(layerID string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`DELETE FROM layer_geometry WHERE layer_id = ?`, layerID)
	return err
}

// LayerStat summarizes one stored layer.
type LayerStat struct {
	LayerID      string    `json:"layerId"`
	FeatureCount int       `json:"featureCount"`
	BBox         []float64 `json:"bbox,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LayerStats returns one layer's stat including its bounding box,
// computed from the stored geometry.
func (s *GeometryStore) LayerStats(layerID string) (LayerStat, error) {
	if s == nil {
		return LayerStat{}, fmt.Errorf("geometry store not available")
	}
	var st LayerStat
	var raw string
	err := s.db.QueryRow(`
		SELECT layer_id, feature_count, geojson, updated_at
		FROM layer_geometry WHERE layer_id = ?`, layerID).
		Scan(&st.LayerID, &st.FeatureCount, &raw, &st.UpdatedAt)
	if err != nil {
		return LayerStat{}, fmt.Errorf("stat layer %s: %w", layerID, err)
	}
	if fc, err := geojson.UnmarshalFeatureCollection([]byte(raw)); err == nil {
		if b, ok := geom.Bounds(fc); ok {
			st.BBox = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		}
	}
	return st, nil
}

// Stats lists stored layers with their feature counts.
func (s *GeometryStore) Stats() ([]LayerStat, error) {
	if s == nil {
		return []LayerStat{}, nil
	}
	rows, err := s.db.Query(`
		SELECT layer_id, feature_count, updated_at
		FROM layer_geometry ORDER BY layer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []LayerStat{}
	for rows.Next() {
		var st LayerStat
		if err := rows.Scan(&st.LayerID, &st.FeatureCount, &st.UpdatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
