package auth

import (
	"os"

	"feedrelay/pkg/models"
)

// EnvironmentStore reads FEEDRELAY_TOKEN and FEEDRELAY_USER_ID. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

// Save is not supported for environment variables
func (e *EnvironmentStore) Save(*models.AuthConfig) error {
	return ErrStoreUnavailable
}

// Load returns a credential with a zero validation time so it is checked remotely on first use
func (e *EnvironmentStore) Load() (*models.AuthConfig, error) {
	token := os.Getenv("FEEDRELAY_TOKEN")
	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	return &models.AuthConfig{
		Token:  token,
		UserID: os.Getenv("FEEDRELAY_USER_ID"),
		Source: e.Name(),
	}, nil
}

// Clear is not supported for environment variables
func (e *EnvironmentStore) Clear() error {
	return ErrStoreUnavailable
}
