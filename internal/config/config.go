package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
)

// EnvPrefix marks environment variables that override file configuration,
// e.g. PMR__DIRECTIONS__QPS=5.
const EnvPrefix = "PMR__"

// APIKeyEnv is read when no Directions API key is configured.
const APIKeyEnv = "GOOGLE_MAPS_API_KEY"

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig      `yaml:"server" koanf:"server"`
	Directions DirectionsConfig  `yaml:"directions" koanf:"directions"`
	Navigation navigation.Params `yaml:"navigation" koanf:"navigation"`
	NATS       NATSConfig        `yaml:"nats" koanf:"nats"`
	Metrics    MetricsConfig     `yaml:"metrics" koanf:"metrics"`
	Cache      CacheConfig       `yaml:"cache" koanf:"cache"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	CorsOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
	// MaxSessions caps concurrently open navigation sessions. Zero means
	// unlimited.
	MaxSessions int `yaml:"max_sessions" koanf:"max_sessions"`
	// CommandBuffer is the per-session command queue length.
	CommandBuffer int `yaml:"command_buffer" koanf:"command_buffer"`
	// SessionIdleTimeout closes sessions that receive no commands for this
	// long. Zero disables reaping.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" koanf:"session_idle_timeout"`
	ReapInterval       time.Duration `yaml:"reap_interval" koanf:"reap_interval"`
}

// DirectionsConfig holds Google Directions API settings
type DirectionsConfig struct {
	APIKey   string        `yaml:"api_key" koanf:"api_key"`
	BaseURL  string        `yaml:"base_url" koanf:"base_url"`
	Language string        `yaml:"language" koanf:"language"`
	Region   string        `yaml:"region" koanf:"region"`
	Metric   bool          `yaml:"metric" koanf:"metric"`
	QPS      float64       `yaml:"qps" koanf:"qps"`
	Burst    int           `yaml:"burst" koanf:"burst"`
	Timeout  time.Duration `yaml:"timeout" koanf:"timeout"`
}

// NATSConfig holds progress publishing settings
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" koanf:"enabled"`
	URL           string `yaml:"url" koanf:"url"`
	SubjectPrefix string `yaml:"subject_prefix" koanf:"subject_prefix"`
	ClientName    string `yaml:"client_name" koanf:"client_name"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" koanf:"enabled"`
	Namespace string `yaml:"namespace" koanf:"namespace"`
}

// CacheConfig holds route plan cache settings
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" koanf:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" koanf:"cleanup_interval"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins:        []string{"*"},
			CommandBuffer:      32,
			SessionIdleTimeout: 30 * time.Minute,
			ReapInterval:       time.Minute,
		},
		Directions: DirectionsConfig{
			Language: "en",
			QPS:      10,
			Burst:    5,
			Timeout:  10 * time.Second,
		},
		Navigation: navigation.DefaultParams(),
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "navigation.progress",
			ClientName:    "pickmyroute",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "pickmyroute",
		},
		Cache: CacheConfig{
			TTL:             15 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
	}
}

// sections maps configuration keys to the fields they populate.
func (c *Config) sections() map[string]any {
	return map[string]any{
		"server":     &c.Server,
		"directions": &c.Directions,
		"navigation": &c.Navigation,
		"nats":       &c.NATS,
		"metrics":    &c.Metrics,
		"cache":      &c.Cache,
	}
}

// Load unmarshals every section present in k over the defaults. Absent
// sections keep their default values.
func Load(k *koanf.Koanf) (*Config, error) {
	cfg := DefaultConfig()
	for key, target := range cfg.sections() {
		if !k.Exists(key) {
			continue
		}
		if err := k.Unmarshal(key, target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s section: %w", key, err)
		}
	}
	return cfg, nil
}

// LoadFile reads a YAML file overlaid with PMR__ environment variables. An
// empty path loads the environment only.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	return Load(k)
}

// envKey turns PMR__DIRECTIONS__API_KEY into directions.api_key.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadDotEnv loads .env files into the process environment and fills the
// Directions API key from GOOGLE_MAPS_API_KEY when the config has none.
// Missing files are not an error.
func (c *Config) LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	if c.Directions.APIKey == "" {
		c.Directions.APIKey = os.Getenv(APIKeyEnv)
	}
	return nil
}

// Validate checks the configuration is usable by the server.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Navigation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("navigation: %w", err))
	}
	if c.Directions.APIKey == "" {
		errs = append(errs, fmt.Errorf("directions.api_key is required (or set %s)", APIKeyEnv))
	}
	if c.Directions.QPS <= 0 {
		errs = append(errs, fmt.Errorf("directions.qps must be positive, got %v", c.Directions.QPS))
	}
	if c.Directions.Burst < 1 {
		errs = append(errs, fmt.Errorf("directions.burst must be at least 1, got %d", c.Directions.Burst))
	}
	if c.Server.CommandBuffer < 1 {
		errs = append(errs, fmt.Errorf("server.command_buffer must be at least 1, got %d", c.Server.CommandBuffer))
	}
	if c.Server.SessionIdleTimeout > 0 && c.Server.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.reap_interval must be positive when sessions expire, got %v", c.Server.ReapInterval))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must not be negative, got %d", c.Server.MaxSessions))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL))
	}
	return errors.Join(errs...)
}
