package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MapService manages map configurations.
type MapService struct {
	dataDir string
	maps    map[string]MapConfig
	mu      sync.RWMutex
}

// NewMapService creates a new map service.
func NewMapService(dataDir string) *MapService {
	s := &MapService{
		dataDir: dataDir,
		maps:    make(map[string]MapConfig),
	}
	s.loadFromDisk()
	return s
}

// List returns all maps.
func (s *MapService) List() map[string]MapConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]MapConfig, len(s.maps))
	for k, v := range s.maps {
		result[k] = v
	}
	return result
}

// Get returns a map by ID.
func (s *MapService) Get(id string) (MapConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.maps[id]
	return m, ok
}

// Create adds a new map.
func (s *MapService) Create(m MapConfig) (MapConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = generateID(m.Name)
	}
	if m.Basemap == "" {
		m.Basemap = "streets"
	}

	if _, exists := s.maps[m.ID]; exists {
		return MapConfig{}, fmt.Errorf("map with ID %q already exists", m.ID)
	}

	s.maps[m.ID] = m
	if err := s.saveToDisk(); err != nil {
		return MapConfig{}, err
	}

	return m, nil
}

// Update replaces a map by ID.
func (s *MapService) Update(id string, m MapConfig) (MapConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.maps[id]; !exists {
		return MapConfig{}, fmt.Errorf("map %q not found", id)
	}

	m.ID = id
	s.maps[id] = m
	if err := s.saveToDisk(); err != nil {
		return MapConfig{}, err
	}

	return m, nil
}

// Delete removes a map by ID. Layers referenced by the map stay in the
// layer library.
func (s *MapService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.maps[id]; !exists {
		return fmt.Errorf("map %q not found", id)
	}

	delete(s.maps, id)
	return s.saveToDisk()
}

// AttachLayer appends a layer ID to a map's layer list if not present.
func (s *MapService) AttachLayer(mapID, layerID string) (MapConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.maps[mapID]
	if !exists {
		return MapConfig{}, fmt.Errorf("map %q not found", mapID)
	}
	for _, id := range m.LayerIDs {
		if id == layerID {
			return m, nil
		}
	}
	m.LayerIDs = append(m.LayerIDs, layerID)
	s.maps[mapID] = m
	if err := s.saveToDisk(); err != nil {
		return MapConfig{}, err
	}
	return m, nil
}

// DetachLayer removes a layer ID from a map's layer list.
func (s *MapService) DetachLayer(mapID, layerID string) (MapConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.maps[mapID]
	if !exists {
		return MapConfig{}, fmt.Errorf("map %q not found", mapID)
	}
	kept := m.LayerIDs[:0]
	for _, id := range m.LayerIDs {
		if id != layerID {
			kept = append(kept, id)
		}
	}
	m.LayerIDs = kept
	s.maps[mapID] = m
	if err := s.saveToDisk(); err != nil {
		return MapConfig{}, err
	}
	return m, nil
}

func (s *MapService) configFile() string {
	return filepath.Join(s.dataDir, "maps.json")
}

func (s *MapService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var maps map[string]MapConfig
	if err := json.Unmarshal(data, &maps); err != nil {
		return // Invalid JSON, start empty
	}

	s.maps = maps
}

func (s *MapService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.maps, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
