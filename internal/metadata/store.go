// Package metadata holds user-entered annotations for drawn features,
// keyed by the drawing engine's current feature ID. It has no knowledge
// of geometry.
package metadata

import "sync"

// LineStyle is the stroke style choice for lines and polygons.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
	LineDotted LineStyle = "dotted"
)

// Entry is the user-authored annotation for one drawn feature.
type Entry struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	LineStyle   LineStyle `json:"lineStyle,omitempty"`
}

// RenamePair maps a stale feature ID to the engine's current ID for the
// same geometry.
type RenamePair struct {
	Old string
	New string
}

// Store is a thread-safe map from feature ID to metadata entry.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Get returns the entry for an ID.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

// Set inserts or replaces the entry for an ID.
func (s *Store) Set(id string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
}

// Delete removes the entry for an ID.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns the current key set.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a copy of all entries.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		result[k] = v
	}
	return result
}

// Rename applies a batch of old-to-new key moves as one atomic step.
// Values are collected for every old key first, then all old keys are
// deleted, then all values are inserted under their new keys, so a swap
// inside one batch cannot clobber an entry and no reader ever observes a
// half-migrated map. Pairs whose old key is absent are skipped.
func (s *Store) Rename(pairs []RenamePair) {
	if len(pairs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type move struct {
		newID string
		entry Entry
	}
	moves := make([]move, 0, len(pairs))
	for _, p := range pairs {
		e, ok := s.entries[p.Old]
		if !ok {
			continue
		}
		moves = append(moves, move{newID: p.New, entry: e})
		delete(s.entries, p.Old)
	}
	for _, m := range moves {
		s.entries[m.newID] = m.entry
	}
}

// Retain drops every entry whose key is not in live. Returns the number
// of entries removed. Used to sync metadata down to the engine's current
// snapshot: metadata must never reference a nonexistent geometry.
func (s *Store) Retain(live map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.entries {
		if _, ok := live[id]; !ok {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Reset removes all entries.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}
