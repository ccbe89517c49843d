package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Lifecycle   LifecycleConfig   `toml:"lifecycle"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BackendConfig contains settings for the sync backend.
type BackendConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LifecycleConfig tunes the connection lifecycle manager and health monitor.
type LifecycleConfig struct {
	AutoRefresh        bool `toml:"auto_refresh"`
	HealthMonitoring   bool `toml:"health_monitoring"`
	SecurityValidation bool `toml:"security_validation"`

	CheckCooldownSeconds   int `toml:"check_cooldown_seconds"`
	CheckTimeoutSeconds    int `toml:"check_timeout_seconds"`
	HealthIntervalMinutes  int `toml:"health_interval_minutes"`
	ExpiryWarningMinutes   int `toml:"expiry_warning_minutes"`
	MaxRetries             int `toml:"max_retries"`
	RetryDelaySeconds      int `toml:"retry_delay_seconds"`
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
}

// CheckCooldown returns the cooldown window for connection checks, defaulting to 5s.
func (l LifecycleConfig) CheckCooldown() time.Duration {
	if l.CheckCooldownSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.CheckCooldownSeconds) * time.Second
}

// CheckTimeout returns the per-request timeout for status checks, defaulting to 5s.
func (l LifecycleConfig) CheckTimeout() time.Duration {
	if l.CheckTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.CheckTimeoutSeconds) * time.Second
}

// HealthInterval returns the health monitor poll interval, defaulting to 5m.
func (l LifecycleConfig) HealthInterval() time.Duration {
	if l.HealthIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(l.HealthIntervalMinutes) * time.Minute
}

// ExpiryWarning returns the token expiry warning window, defaulting to 30m.
func (l LifecycleConfig) ExpiryWarning() time.Duration {
	if l.ExpiryWarningMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(l.ExpiryWarningMinutes) * time.Minute
}

// Map converts Spotify credentials to the map shape consumed by the services package.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration back to disk as TOML.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
