package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./mixtape.db" {
			t.Errorf("expected database path ./mixtape.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Credentials.Spotify.ClientID != "your_spotify_client_id" {
			t.Errorf("expected spotify client_id your_spotify_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Credentials.Spotify.Configured() {
			t.Error("template placeholders should not count as configured credentials")
		}

		if config.Engine.DefaultTarget != 30 {
			t.Errorf("expected default target 30, got %d", config.Engine.DefaultTarget)
		}

		if config.Engine.EmergencyDivisor != 3 {
			t.Errorf("expected emergency divisor 3, got %d", config.Engine.EmergencyDivisor)
		}

		if config.Engine.PriorityCap != 4 || config.Engine.OthersCap != 2 {
			t.Errorf("expected caps 4/2, got %d/%d", config.Engine.PriorityCap, config.Engine.OthersCap)
		}

		if config.Cache.Driver != "memory" {
			t.Errorf("expected cache driver memory, got %s", config.Cache.Driver)
		}

		if len(config.Events.Names) == 0 || len(config.Events.Keywords) == 0 {
			t.Error("expected default event keywords and names")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing sections", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[server]
host = "0.0.0.0"
port = 8080

[engine]
default_target = 20
small_gap = 5

[llm]
model = "gpt-4o"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}
		if config.Engine.DefaultTarget != 20 || config.Engine.SmallGap != 5 {
			t.Errorf("engine overrides not applied: %+v", config.Engine)
		}
		if config.Engine.MaxTarget != 100 {
			t.Errorf("expected max target default 100, got %d", config.Engine.MaxTarget)
		}
		if config.LLM.Model != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %s", config.LLM.Model)
		}
		if config.Catalog.Market != "US" {
			t.Errorf("expected market default US, got %s", config.Catalog.Market)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tc := []struct {
			name string
			body string
		}{
			{name: "unknown cache driver", body: "[cache]\ndriver = \"redis\"\n"},
			{name: "negative cap", body: "[engine]\nothers_cap = -1\n"},
			{name: "target above max", body: "[engine]\ndefault_target = 500\nmax_target = 100\n"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(configPath, []byte(tt.body), 0644); err != nil {
					t.Fatalf("failed to write test config: %v", err)
				}

				_, err := LoadConfig(configPath)
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("SaveConfig round trip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Credentials.Spotify.RefreshToken = "refresh-123"
		config.Engine.PopularThreshold = 70

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("SaveConfig failed: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if loaded.Credentials.Spotify.RefreshToken != "refresh-123" {
			t.Errorf("refresh token not persisted, got %q", loaded.Credentials.Spotify.RefreshToken)
		}
		if loaded.Engine.PopularThreshold != 70 {
			t.Errorf("popular threshold not persisted, got %d", loaded.Engine.PopularThreshold)
		}
	})

	t.Run("durations", func(t *testing.T) {
		config := DefaultConfig()
		if got := config.Engine.RoundFillTimeout(); got != 5*time.Second {
			t.Errorf("RoundFillTimeout() = %v, want 5s", got)
		}
		if got := config.Cache.TTL(); got != time.Hour {
			t.Errorf("TTL() = %v, want 1h", got)
		}
		if got := (LLMConfig{}).Timeout(); got != 90*time.Second {
			t.Errorf("zero LLM timeout should default to 90s, got %v", got)
		}

		retry := config.Catalog.Retry()
		if retry.MaxAttempts != 4 || retry.BackoffBase != 500*time.Millisecond {
			t.Errorf("unexpected catalog retry config: %+v", retry)
		}
	})
}

func TestSpotifyConfigured(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		secret string
		want   bool
	}{
		{"both set", "abc123", "s3cret", true},
		{"empty id", "", "s3cret", false},
		{"empty secret", "abc123", "  ", false},
		{"template placeholders", "your_spotify_client_id", "your_spotify_client_secret", false},
		{"one placeholder", "abc123", "your_spotify_client_secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := SpotifyConfig{ClientID: tt.id, ClientSecret: tt.secret}
			if got := creds.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}
