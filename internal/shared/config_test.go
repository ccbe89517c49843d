package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Credentials.Spotify.RedirectURI == "" {
			t.Error("expected default redirect URI")
		}
		if config.Database.Path == "" {
			t.Error("expected default database path")
		}
		if !config.Lifecycle.AutoRefresh {
			t.Error("expected auto refresh enabled by default")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		content := `
[credentials.spotify]
client_id = "abc"
client_secret = "def"
redirect_uri = "http://localhost:9999/callback"

[lifecycle]
check_cooldown_seconds = 10
health_interval_minutes = 1
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Credentials.Spotify.ClientID != "abc" {
			t.Errorf("expected client_id abc, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Lifecycle.CheckCooldown() != 10*time.Second {
			t.Errorf("expected 10s cooldown, got %v", config.Lifecycle.CheckCooldown())
		}
		if config.Lifecycle.HealthInterval() != time.Minute {
			t.Errorf("expected 1m interval, got %v", config.Lifecycle.HealthInterval())
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Lifecycle Defaults", func(t *testing.T) {
		var lc LifecycleConfig

		if lc.CheckCooldown() != 5*time.Second {
			t.Errorf("expected 5s default cooldown, got %v", lc.CheckCooldown())
		}
		if lc.CheckTimeout() != 5*time.Second {
			t.Errorf("expected 5s default timeout, got %v", lc.CheckTimeout())
		}
		if lc.HealthInterval() != 5*time.Minute {
			t.Errorf("expected 5m default interval, got %v", lc.HealthInterval())
		}
		if lc.ExpiryWarning() != 30*time.Minute {
			t.Errorf("expected 30m default warning window, got %v", lc.ExpiryWarning())
		}
	})

	t.Run("SaveConfig Round Trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		config := DefaultConfig()
		config.Credentials.Spotify.ClientID = "roundtrip"

		if err := SaveConfig(path, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}

		if loaded.Credentials.Spotify.ClientID != "roundtrip" {
			t.Errorf("expected saved client_id to round trip, got %s", loaded.Credentials.Spotify.ClientID)
		}
	})
}
