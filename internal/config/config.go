package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all medinsight configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Notify  NotifyConfig  `yaml:"notify"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures how the backend base URL is resolved.
type APIConfig struct {
	// Origin plays the role of the page origin the client is "served" from.
	Origin string `yaml:"origin"`
	// DevHost is the local development host; an origin on this host talks to DevBaseURL.
	DevHost    string `yaml:"dev_host"`
	DevBaseURL string `yaml:"dev_base_url"`
	// BaseURL skips resolution entirely when set.
	BaseURL string `yaml:"base_url"`
}

// StorageConfig configures durable client storage.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// OAuthConfig configures the Google sign-in flow.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackPort int    `yaml:"callback_port"`
	Timeout      string `yaml:"timeout"`
}

// NotifyConfig configures the notification channel.
type NotifyConfig struct {
	DismissAfter string `yaml:"dismiss_after"`
}

// UIConfig configures the terminal interface.
type UIConfig struct {
	Theme     string `yaml:"theme"` // light, dark, auto
	WordWrap  int    `yaml:"word_wrap"`
	CacheSize int    `yaml:"render_cache_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no logging
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		API: APIConfig{
			Origin:     "http://localhost:5173",
			DevHost:    "localhost:5173",
			DevBaseURL: "http://localhost:5000",
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "storage.db"),
		},
		OAuth: OAuthConfig{
			CallbackPort: 51121,
			Timeout:      "5m",
		},
		Notify: NotifyConfig{
			DismissAfter: "3s",
		},
		UI: UIConfig{
			Theme:     "auto",
			WordWrap:  80,
			CacheSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.medinsight, or .medinsight when no home directory exists.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".medinsight"
	}
	return filepath.Join(home, ".medinsight")
}

// DefaultConfigPath returns the default config.yaml location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is loaded first so its values participate in env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDINSIGHT_ORIGIN"); v != "" {
		c.API.Origin = v
	}
	if v := os.Getenv("MEDINSIGHT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("MEDINSIGHT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.OAuth.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.OAuth.ClientSecret = v
	}
	if os.Getenv("MEDINSIGHT_DARK_MODE") == "1" {
		c.UI.Theme = "dark"
	}
}

// DataDir returns the directory holding storage and logs.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Storage.Path)
}

// GetDismissAfter returns the notification auto-dismiss delay.
func (c *Config) GetDismissAfter() time.Duration {
	d, err := time.ParseDuration(c.Notify.DismissAfter)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// GetOAuthTimeout returns how long to wait for the OAuth callback.
func (c *Config) GetOAuthTimeout() time.Duration {
	d, err := time.ParseDuration(c.OAuth.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ValidThemes lists the accepted ui.theme values.
var ValidThemes = []string{"light", "dark", "auto"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		if _, err := url.ParseRequestURI(c.API.Origin); err != nil {
			return fmt.Errorf("invalid api.origin %q: %w", c.API.Origin, err)
		}
	} else if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid api.base_url %q: %w", c.API.BaseURL, err)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path not configured (set MEDINSIGHT_DB)")
	}

	validTheme := false
	for _, t := range ValidThemes {
		if c.UI.Theme == t {
			validTheme = true
			break
		}
	}
	if !validTheme {
		return fmt.Errorf("invalid ui.theme: %s (valid: %v)", c.UI.Theme, ValidThemes)
	}

	if c.OAuth.CallbackPort <= 0 || c.OAuth.CallbackPort > 65535 {
		return fmt.Errorf("invalid oauth.callback_port: %d", c.OAuth.CallbackPort)
	}
	return nil
}

// ValidateOAuth reports whether the Google sign-in flow can run.
func (c *Config) ValidateOAuth() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("google oauth client id not configured (set GOOGLE_CLIENT_ID or oauth.client_id)")
	}
	return nil
}
