package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 20, config.Feed.MaxScrollAttempts)
	assert.Equal(t, 3, config.Feed.MaxEmptyPasses)
	assert.Equal(t, 2*time.Second, config.Feed.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, config.Delivery.Stagger)
	assert.Equal(t, 5*time.Minute, config.Auth.ValidationInterval)
	assert.Equal(t, "http", config.Delivery.Transport)
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEEDRELAY_BACKEND_URL", "https://api.example.com")
	t.Setenv("FEEDRELAY_REQUESTS_PER_MINUTE", "30")
	t.Setenv("FEEDRELAY_MAX_SCROLL_ATTEMPTS", "7")
	t.Setenv("FEEDRELAY_HEADLESS", "true")
	t.Setenv("FEEDRELAY_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "https://api.example.com", config.Backend.BaseURL)
	assert.Equal(t, 30, config.Delivery.RequestsPerMinute)
	assert.Equal(t, 7, config.Feed.MaxScrollAttempts)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("FEEDRELAY_REQUESTS_PER_MINUTE", "lots")

	config := DefaultConfig()
	assert.Error(t, config.LoadFromEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad backend url", func(c *Config) { c.Backend.BaseURL = "not a url" }},
		{"missing selector", func(c *Config) { c.Feed.ItemSelector = "" }},
		{"malformed item selector", func(c *Config) { c.Feed.ItemSelector = "div[data-urn" }},
		{"malformed container selector", func(c *Config) { c.Feed.ContainerSelector = "li[class=" }},
		{"zero scroll attempts", func(c *Config) { c.Feed.MaxScrollAttempts = 0 }},
		{"negative stagger", func(c *Config) { c.Delivery.Stagger = -time.Millisecond }},
		{"unknown transport", func(c *Config) { c.Delivery.Transport = "carrier-pigeon" }},
		{"amqp without url", func(c *Config) { c.Delivery.Transport = "amqp" }},
		{"zero messaging timeout", func(c *Config) { c.Messaging.Timeout = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feedrelay.yaml")

	original := DefaultConfig()
	original.Feed.ItemSelector = "article.post"
	original.Feed.SettleDelay = 500 * time.Millisecond
	original.Bridge.AllowedOrigins = []string{"https://app.example.com"}
	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "article.post", loaded.Feed.ItemSelector)
	assert.Equal(t, 500*time.Millisecond, loaded.Feed.SettleDelay)
	assert.Equal(t, []string{"https://app.example.com"}, loaded.Bridge.AllowedOrigins)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "backend:\n  base_url: https://file.example.com\nfeed:\n  max_scroll_attempts: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("FEEDRELAY_MAX_SCROLL_ATTEMPTS", "9")

	config, err := Load(path, map[string]interface{}{
		"backend-url": "https://flag.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", config.Backend.BaseURL)
	assert.Equal(t, 9, config.Feed.MaxScrollAttempts)
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"transport":  "amqp",
		"headless":   true,
		"listen":     "127.0.0.1:9999",
		"chrome-url": "ws://127.0.0.1:9222/devtools/browser/abc",
	})

	assert.Equal(t, "amqp", config.Delivery.Transport)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "127.0.0.1:9999", config.Bridge.Listen)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", config.Browser.RemoteURL)
}
