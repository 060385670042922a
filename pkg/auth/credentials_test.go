package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMemoryStore(nil)
	broken.SaveError = errors.New("locked keychain")
	backup := NewMemoryStore(nil)
	m := NewManagerWithStores(broken, backup)

	require.NoError(t, m.Save(&models.AuthConfig{Token: "tok-123456789", UserID: "u1"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "u1", cfg.UserID)
	assert.Equal(t, 1, backup.Saves)

	require.NoError(t, m.Clear())
	_, err = m.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerRejectsEmptyToken(t *testing.T) {
	m := NewManagerWithStores(NewMemoryStore(nil))
	assert.ErrorIs(t, m.Save(&models.AuthConfig{UserID: "u1"}), ErrInvalidCredentials)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("FEEDRELAY_PASSPHRASE", "correct horse battery staple")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path, dir)
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	when := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(&models.AuthConfig{Token: "secret", UserID: "u1", LastValidatedAt: when}))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Token)
	assert.True(t, when.Equal(cfg.LastValidatedAt))

	t.Setenv("FEEDRELAY_PASSPHRASE", "wrong")
	other, err := NewEncryptedFileStore(path, dir)
	require.NoError(t, err)
	_, err = other.Load()
	assert.Error(t, err)

	require.NoError(t, store.Clear())
	assert.ErrorIs(t, store.Clear(), ErrCredentialsNotFound)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("FEEDRELAY_TOKEN", "")
	env := NewEnvironmentStore()
	_, err := env.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv("FEEDRELAY_TOKEN", "env-token")
	t.Setenv("FEEDRELAY_USER_ID", "u7")
	cfg, err := env.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.True(t, cfg.LastValidatedAt.IsZero())
	assert.ErrorIs(t, env.Save(cfg), ErrStoreUnavailable)
}

func TestSanitize(t *testing.T) {
	s := Sanitize(&models.AuthConfig{Token: "abcdefghijklmnop", UserID: "u1"})
	assert.Equal(t, "abcd...mnop", s.Token)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "********", Sanitize(&models.AuthConfig{Token: "short"}).Token)
	assert.Nil(t, Sanitize(nil))
}
