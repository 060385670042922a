package auth

import (
	"errors"
	"fmt"
	"path/filepath"

	"feedrelay/pkg/models"
)

// CredentialStore persists the cached AuthConfig
type CredentialStore interface {
	// Name identifies the backend in logs
	Name() string
	// Load returns ErrCredentialsNotFound when nothing is stored
	Load() (*models.AuthConfig, error)
	Save(cfg *models.AuthConfig) error
	Clear() error
}

// Manager chains credential stores: the first store that accepts a write
// wins, reads return the first hit, and Clear wipes every store.
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the default chain: system keyring, encrypted file in
// dir, then FEEDRELAY_TOKEN from the environment
func NewManager(dir string) (*Manager, error) {
	var stores []CredentialStore

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"), dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

func (m *Manager) Name() string { return "chain" }

// Save writes cfg to the first store that accepts it
func (m *Manager) Save(cfg *models.AuthConfig) error {
	if !cfg.Valid() {
		return ErrInvalidCredentials
	}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(cfg); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Load returns the credential from the first store that has one
func (m *Manager) Load() (*models.AuthConfig, error) {
	for _, store := range m.stores {
		if cfg, err := store.Load(); err == nil && cfg.Valid() {
			if cfg.Source == "" {
				cfg.Source = store.Name()
			}
			return cfg, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// Clear removes the credential from every writable store
func (m *Manager) Clear() error {
	var errs []error
	for _, store := range m.stores {
		err := store.Clear()
		if err != nil && !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Sanitize returns a copy of cfg with the token masked
func Sanitize(cfg *models.AuthConfig) *models.AuthConfig {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Token = maskString(cfg.Token)
	return &out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
