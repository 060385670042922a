package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"feedrelay/pkg/models"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "feedrelay"
	keyringKey     = "auth"
)

// KeyringStore keeps the credential in the system keychain
type KeyringStore struct{}

// NewKeyringStore returns an error when no keychain is reachable
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

// Save writes the credential as JSON
func (k *KeyringStore) Save(cfg *models.AuthConfig) error {
	if !cfg.Valid() {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, keyringKey, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Load reads the credential
func (k *KeyringStore) Load() (*models.AuthConfig, error) {
	data, err := keyring.Get(keyringService, keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var cfg models.AuthConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cfg, nil
}

// Clear deletes the credential
func (k *KeyringStore) Clear() error {
	err := keyring.Delete(keyringService, keyringKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	return err
}
