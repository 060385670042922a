package auth

import (
	"sync"

	"feedrelay/pkg/models"
)

// MemoryStore is an in-process CredentialStore with error injection for tests
type MemoryStore struct {
	mu  sync.RWMutex
	cfg *models.AuthConfig

	SaveError  error
	LoadError  error
	ClearError error
	Saves      int
	Clears     int
}

// NewMemoryStore creates a store, optionally seeded with cfg
func NewMemoryStore(cfg *models.AuthConfig) *MemoryStore {
	m := &MemoryStore{}
	if cfg != nil {
		c := *cfg
		m.cfg = &c
	}
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Save(cfg *models.AuthConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	if !cfg.Valid() {
		return ErrInvalidCredentials
	}
	c := *cfg
	m.cfg = &c
	m.Saves++
	return nil
}

func (m *MemoryStore) Load() (*models.AuthConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	if m.cfg == nil {
		return nil, ErrCredentialsNotFound
	}
	c := *m.cfg
	return &c, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearError != nil {
		return m.ClearError
	}
	m.Clears++
	if m.cfg == nil {
		return ErrCredentialsNotFound
	}
	m.cfg = nil
	return nil
}
