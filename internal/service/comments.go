package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommentService manages threaded map comments.
type CommentService struct {
	dataDir  string
	comments map[string]Comment
	mu       sync.RWMutex
}

// NewCommentService creates a new comment service.
func NewCommentService(dataDir string) *CommentService {
	s := &CommentService{
		dataDir:  dataDir,
		comments: make(map[string]Comment),
	}
	s.loadFromDisk()
	return s
}

// ListByMap returns a map's comments ordered by creation time.
func (s *CommentService) ListByMap(mapID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Comment
	for _, c := range s.comments {
		if c.MapID == mapID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Create adds a comment. Replies must reference an existing parent on the
// same map.
func (s *CommentService) Create(c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ParentID != "" {
		parent, ok := s.comments[c.ParentID]
		if !ok {
			return Comment{}, fmt.Errorf("parent comment %q not found", c.ParentID)
		}
		if parent.MapID != c.MapID {
			return Comment{}, fmt.Errorf("parent comment %q belongs to a different map", c.ParentID)
		}
	}

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	s.comments[c.ID] = c
	if err := s.saveToDisk(); err != nil {
		return Comment{}, err
	}
	return c, nil
}

// Delete removes a comment and its replies.
func (s *CommentService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.comments[id]; !exists {
		return fmt.Errorf("comment %q not found", id)
	}

	// Delete the whole subtree so no reply is left with a dangling
	// parent. One level per pass; depth bounds the pass count.
	doomed := map[string]struct{}{id: {}}
	for {
		grew := false
		for cid, c := range s.comments {
			if _, gone := doomed[cid]; gone {
				continue
			}
			if _, gone := doomed[c.ParentID]; c.ParentID != "" && gone {
				doomed[cid] = struct{}{}
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	for cid := range doomed {
		delete(s.comments, cid)
	}
	return s.saveToDisk()
}

func (s *CommentService) configFile() string {
	return filepath.Join(s.dataDir, "comments.json")
}

func (s *CommentService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var comments map[string]Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		return // Invalid JSON, start empty
	}

	s.comments = comments
}

func (s *CommentService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.comments, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
