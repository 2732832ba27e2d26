package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel    string            `toml:"log_level"`
	Credentials CredentialsConfig `toml:"credentials"`
	LLM         LLMConfig         `toml:"llm"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Engine      EngineConfig      `toml:"engine"`
	Cache       CacheConfig       `toml:"cache"`
	Events      EventsConfig      `toml:"events"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	// Aliases maps a normalized alternate spelling to the canonical artist name.
	Aliases map[string]string `toml:"aliases"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// Catalog reads use the client credentials grant; publishing needs a user refresh token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	RefreshToken string `toml:"refresh_token"`
}

// Configured reports whether a client ID and secret are set. The template's
// your_... placeholders count as unset.
func (s SpotifyConfig) Configured() bool {
	return isSet(s.ClientID) && isSet(s.ClientSecret)
}

func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "your_")
}

// Map converts the credentials into the map accepted by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"refresh_token": s.RefreshToken,
	}
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxAttempts    int     `toml:"max_attempts"`
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CatalogConfig tunes outbound catalog traffic.
type CatalogConfig struct {
	Market      string  `toml:"market"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second
	Burst       int     `toml:"burst"`
	MaxAttempts int     `toml:"max_attempts"`
	BackoffMS   int     `toml:"backoff_ms"`
}

// Retry builds the [RetryConfig] for catalog requests.
func (c CatalogConfig) Retry() RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.BackoffMS > 0 {
		cfg.BackoffBase = time.Duration(c.BackoffMS) * time.Millisecond
	}
	return cfg
}

// EngineConfig holds the run loop thresholds.
type EngineConfig struct {
	DefaultTarget       int     `toml:"default_target"`
	MaxTarget           int     `toml:"max_target"`
	EmergencyDivisor    int     `toml:"emergency_divisor"`
	RoundFillTimeoutMS  int     `toml:"round_fill_timeout_ms"`
	SmallGap            int     `toml:"small_gap"`
	FillBatchSize       int     `toml:"fill_batch_size"`
	MaxFillRounds       int     `toml:"max_fill_rounds"`
	MaxFillArtists      int     `toml:"max_fill_artists"`
	GenerativeInflation float64 `toml:"generative_inflation"`
	PriorityCap         int     `toml:"priority_cap"`
	OthersCap           int     `toml:"others_cap"`
	PopularThreshold    int     `toml:"popular_threshold"`
	AnalysisWorkers     int     `toml:"analysis_workers"`
}

// RoundFillTimeout returns the soft wall-clock budget for round filling.
func (c EngineConfig) RoundFillTimeout() time.Duration {
	if c.RoundFillTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RoundFillTimeoutMS) * time.Millisecond
}

// CacheConfig selects and tunes the artist resolution cache.
type CacheConfig struct {
	Driver     string `toml:"driver"` // memory or sqlite
	TTLMinutes int    `toml:"ttl_minutes"`
	MaxEntries int    `toml:"max_entries"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// EventsConfig lists the keywords and names that mark a request as festival/event-specific.
type EventsConfig struct {
	Keywords []string `toml:"keywords"`
	Names    []string `toml:"names"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("%w: cache.driver must be memory or sqlite, got %q", ErrInvalidConfig, c.Cache.Driver)
	}
	if c.Engine.EmergencyDivisor < 0 || c.Engine.PriorityCap < 0 || c.Engine.OthersCap < 0 {
		return fmt.Errorf("%w: engine thresholds must not be negative", ErrInvalidConfig)
	}
	if c.Engine.MaxTarget > 0 && c.Engine.DefaultTarget > c.Engine.MaxTarget {
		return fmt.Errorf("%w: engine.default_target exceeds engine.max_target", ErrInvalidConfig)
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
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
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
