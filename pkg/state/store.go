// Package state persists small key-value documents between runs: endpoint
// settings from CONFIGURE, cumulative sync statistics and the memo count.
// Writes are last-writer-wins.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
)

// Keys used by feedrelay
const (
	KeySettings = "settings"
	KeyStats    = "stats"
)

// Settings are endpoint overrides delivered by the companion frontend
type Settings struct {
	FrontendURL string    `json:"frontendUrl,omitempty"`
	BackendURL  string    `json:"backendUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type document struct {
	Version   int                        `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Values    map[string]json.RawMessage `json:"values"`
}

// Store is a JSON file of named values
type Store struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// Open creates dir if needed and returns a store backed by dir/state.json
func Open(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		path:   filepath.Join(dir, "state.json"),
		logger: logger.OrDefault(log).WithField("component", "state"),
	}, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Get decodes key into v and reports whether it existed
func (s *Store) Get(key string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := doc.Values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Put stores v under key
func (s *Store) Put(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(key, v)
}

// Delete removes key
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	delete(doc.Values, key)
	return s.save(doc)
}

// Stats returns the cumulative statistics
func (s *Store) Stats() (models.SyncStats, error) {
	var stats models.SyncStats
	_, err := s.Get(KeyStats, &stats)
	return stats, err
}

// UpdateStats applies fn to the stored statistics and writes them back
func (s *Store) UpdateStats(fn func(*models.SyncStats)) (models.SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.SyncStats
	doc, err := s.load()
	if err != nil {
		return stats, err
	}
	if raw, ok := doc.Values[KeyStats]; ok {
		if err := json.Unmarshal(raw, &stats); err != nil {
			return stats, fmt.Errorf("failed to decode stats: %w", err)
		}
	}

	fn(&stats)
	if err := s.put(KeyStats, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// Settings returns the stored endpoint settings
func (s *Store) Settings() (Settings, error) {
	var out Settings
	_, err := s.Get(KeySettings, &out)
	return out, err
}

func (s *Store) put(key string, v interface{}) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	doc.Values[key] = raw
	return s.save(doc)
}

func (s *Store) load() (*document, error) {
	doc := &document{Version: 1, Values: map[string]json.RawMessage{}}

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}
	if doc.Values == nil {
		doc.Values = map[string]json.RawMessage{}
	}
	return doc, nil
}

// save writes the document atomically via a temp file and rename
func (s *Store) save(doc *document) error {
	doc.UpdatedAt = time.Now()

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.DebugWithFields("State saved", map[string]interface{}{"keys": len(doc.Values)})
	return nil
}
