package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for feedrelay
type Config struct {
	// Remote API and companion frontend
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Page layout assumptions for the activity feed
	Feed FeedConfig `yaml:"feed" json:"feed"`

	// Item delivery settings
	Delivery DeliveryConfig `yaml:"delivery" json:"delivery"`

	// Cross-context messaging
	Messaging MessagingConfig `yaml:"messaging" json:"messaging"`

	// Authentication
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Browser control
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Companion frontend bridge
	Bridge BridgeConfig `yaml:"bridge" json:"bridge"`

	// Persisted state
	State StateConfig `yaml:"state" json:"state"`

	// Voice memos
	Memo MemoConfig `yaml:"memo" json:"memo"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BackendConfig holds remote endpoint configuration
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	FrontendURL    string        `yaml:"frontend_url" json:"frontend_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
}

// FeedConfig describes the activity page and how posts are found on it.
// Selectors live here so markup drift is a config change.
type FeedConfig struct {
	ActivityURL       string        `yaml:"activity_url" json:"activity_url"`
	URLFragment       string        `yaml:"url_fragment" json:"url_fragment"`
	ItemSelector      string        `yaml:"item_selector" json:"item_selector"`
	ContainerSelector string        `yaml:"container_selector" json:"container_selector"`
	MaxScrollAttempts int           `yaml:"max_scroll_attempts" json:"max_scroll_attempts"`
	MaxEmptyPasses    int           `yaml:"max_empty_passes" json:"max_empty_passes"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
	PageLoadTimeout   time.Duration `yaml:"page_load_timeout" json:"page_load_timeout"`
}

// DeliveryConfig holds delivery scheduling and transport selection
type DeliveryConfig struct {
	Stagger           time.Duration `yaml:"stagger" json:"stagger"`
	Transport         string        `yaml:"transport" json:"transport"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	AMQP              AMQPConfig    `yaml:"amqp" json:"amqp"`
}

// AMQPConfig holds broker settings for the amqp transport
type AMQPConfig struct {
	URL        string `yaml:"url" json:"url"`
	Exchange   string `yaml:"exchange" json:"exchange"`
	RoutingKey string `yaml:"routing_key" json:"routing_key"`
	Queue      string `yaml:"queue" json:"queue"`
}

// MessagingConfig holds cross-context call settings
type MessagingConfig struct {
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
}

// AuthConfig holds credential validation settings
type AuthConfig struct {
	ValidationInterval time.Duration `yaml:"validation_interval" json:"validation_interval"`
	CookieName         string        `yaml:"cookie_name" json:"cookie_name"`
}

// BrowserConfig holds chromedp settings
type BrowserConfig struct {
	Headless  bool   `yaml:"headless" json:"headless"`
	ExecPath  string `yaml:"exec_path" json:"exec_path"`
	RemoteURL string `yaml:"remote_url" json:"remote_url"`
	UserData  string `yaml:"user_data_dir" json:"user_data_dir"`
}

// BridgeConfig holds the local HTTP bridge settings
type BridgeConfig struct {
	Listen         string   `yaml:"listen" json:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// StateConfig holds where persisted state lives
type StateConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// MemoConfig holds voice memo capture settings
type MemoConfig struct {
	RecordCommand string        `yaml:"record_command" json:"record_command"`
	MaxDuration   time.Duration `yaml:"max_duration" json:"max_duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			FrontendURL:    "http://localhost:3000",
			RequestTimeout: 30 * time.Second,
			UserAgent:      "feedrelay/1.0",
		},
		Feed: FeedConfig{
			ActivityURL:       "https://www.linkedin.com/in/me/recent-activity/all/",
			URLFragment:       "/recent-activity/",
			ItemSelector:      "div.update-components-text",
			ContainerSelector: "div.feed-shared-update-v2",
			MaxScrollAttempts: 20,
			MaxEmptyPasses:    3,
			SettleDelay:       2 * time.Second,
			PageLoadTimeout:   30 * time.Second,
		},
		Delivery: DeliveryConfig{
			Stagger:           100 * time.Millisecond,
			Transport:         "http",
			RequestsPerMinute: 0,
			AMQP: AMQPConfig{
				Exchange:   "feedrelay",
				RoutingKey: "items",
				Queue:      "feedrelay.items",
			},
		},
		Messaging: MessagingConfig{
			Timeout:        5 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Auth: AuthConfig{
			ValidationInterval: 5 * time.Minute,
			CookieName:         "access_token",
		},
		Browser: BrowserConfig{
			Headless: false,
		},
		Bridge: BridgeConfig{
			Listen:         "127.0.0.1:8765",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		State: StateConfig{
			Directory: defaultStateDir(),
		},
		Memo: MemoConfig{
			RecordCommand: "arecord -q -f cd -t wav -d {seconds} {file}",
			MaxDuration:   2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FEEDRELAY_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("FEEDRELAY_FRONTEND_URL"); v != "" {
		c.Backend.FrontendURL = v
	}
	if v := os.Getenv("FEEDRELAY_ACTIVITY_URL"); v != "" {
		c.Feed.ActivityURL = v
	}
	if v := os.Getenv("FEEDRELAY_TRANSPORT"); v != "" {
		c.Delivery.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("FEEDRELAY_AMQP_URL"); v != "" {
		c.Delivery.AMQP.URL = v
	}
	if v := os.Getenv("FEEDRELAY_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEEDRELAY_REQUESTS_PER_MINUTE: %w", err)
		}
		c.Delivery.RequestsPerMinute = n
	}
	if v := os.Getenv("FEEDRELAY_MAX_SCROLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEEDRELAY_MAX_SCROLL_ATTEMPTS: %w", err)
		}
		c.Feed.MaxScrollAttempts = n
	}
	if v := os.Getenv("FEEDRELAY_HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("FEEDRELAY_CHROME_URL"); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := os.Getenv("FEEDRELAY_BRIDGE_LISTEN"); v != "" {
		c.Bridge.Listen = v
	}
	if v := os.Getenv("FEEDRELAY_STATE_DIR"); v != "" {
		c.State.Directory = v
	}
	if v := os.Getenv("FEEDRELAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FEEDRELAY_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".feedrelay.yaml",
		".feedrelay.yml",
		filepath.Join(home, ".config", "feedrelay", "config.yaml"),
		filepath.Join(home, ".config", "feedrelay", "config.yml"),
		filepath.Join(home, ".feedrelay.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("backend base URL is invalid: %w", err))
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Feed.ActivityURL == "" {
		errs = append(errs, errors.New("activity URL is required"))
	}
	if c.Feed.URLFragment == "" {
		errs = append(errs, errors.New("activity URL fragment is required"))
	}
	if c.Feed.ItemSelector == "" {
		errs = append(errs, errors.New("item selector is required"))
	} else if _, err := cascadia.Compile(c.Feed.ItemSelector); err != nil {
		errs = append(errs, fmt.Errorf("item selector %q is invalid: %w", c.Feed.ItemSelector, err))
	}
	if c.Feed.ContainerSelector != "" {
		if _, err := cascadia.Compile(c.Feed.ContainerSelector); err != nil {
			errs = append(errs, fmt.Errorf("container selector %q is invalid: %w", c.Feed.ContainerSelector, err))
		}
	}
	if c.Feed.MaxScrollAttempts <= 0 {
		errs = append(errs, errors.New("max scroll attempts must be positive"))
	}
	if c.Feed.MaxEmptyPasses <= 0 {
		errs = append(errs, errors.New("max empty passes must be positive"))
	}
	if c.Feed.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay cannot be negative"))
	}
	if c.Feed.PageLoadTimeout <= 0 {
		errs = append(errs, errors.New("page load timeout must be positive"))
	}

	if c.Delivery.Stagger < 0 {
		errs = append(errs, errors.New("delivery stagger cannot be negative"))
	}
	if c.Delivery.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	switch c.Delivery.Transport {
	case "http":
	case "amqp":
		if c.Delivery.AMQP.URL == "" {
			errs = append(errs, errors.New("amqp transport requires delivery.amqp.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Delivery.Transport))
	}

	if c.Messaging.Timeout <= 0 {
		errs = append(errs, errors.New("messaging timeout must be positive"))
	}
	if c.Messaging.RetryAttempts < 1 {
		errs = append(errs, errors.New("messaging retry attempts must be at least 1"))
	}

	if c.Auth.ValidationInterval <= 0 {
		errs = append(errs, errors.New("auth validation interval must be positive"))
	}

	if c.State.Directory == "" {
		errs = append(errs, errors.New("state directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["backend-url"].(string); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := flags["activity-url"].(string); ok && v != "" {
		c.Feed.ActivityURL = v
	}
	if v, ok := flags["max-scroll-attempts"].(int); ok && v > 0 {
		c.Feed.MaxScrollAttempts = v
	}
	if v, ok := flags["transport"].(string); ok && v != "" {
		c.Delivery.Transport = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok && v >= 0 {
		c.Delivery.RequestsPerMinute = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["chrome-url"].(string); ok && v != "" {
		c.Browser.RemoteURL = v
	}
	if v, ok := flags["listen"].(string); ok && v != "" {
		c.Bridge.Listen = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".feedrelay.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// defaultStateDir follows XDG_DATA_HOME, falling back to ~/.local/share
func defaultStateDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "feedrelay")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedrelay"
	}
	return filepath.Join(home, ".local", "share", "feedrelay")
}
