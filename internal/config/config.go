// Package config loads runtime settings for the estate CLI.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (a .env file is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/truehome/estate/internal/backend"
)

// DefaultEnvFile is read when no explicit .env path is given.
const DefaultEnvFile = ".env"

// Config is the full runtime configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Tables  TablesConfig  `yaml:"tables"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Login   LoginConfig   `yaml:"login"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig points at the hosted backend project.
type BackendConfig struct {
	URL               string        `yaml:"url" env:"ESTATE_BACKEND_URL"`
	APIKey            string        `yaml:"api_key" env:"ESTATE_API_KEY"`
	ImageBucket       string        `yaml:"image_bucket" env:"ESTATE_IMAGE_BUCKET"`
	Timeout           time.Duration `yaml:"timeout" env:"ESTATE_HTTP_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"ESTATE_REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"ESTATE_REQUEST_BURST"`
}

// TablesConfig names the collections holding each record type.
type TablesConfig struct {
	Properties string `yaml:"properties" env:"ESTATE_PROPERTIES_TABLE"`
	Agents     string `yaml:"agents" env:"ESTATE_AGENTS_TABLE"`
	Reviews    string `yaml:"reviews" env:"ESTATE_REVIEWS_TABLE"`
	Galleries  string `yaml:"galleries" env:"ESTATE_GALLERIES_TABLE"`
}

// SessionConfig selects where the signed-in token is kept. Redis is used
// when RedisAddr is set, otherwise TokenFile (default: the user config dir).
type SessionConfig struct {
	Profile       string `yaml:"profile" env:"ESTATE_PROFILE"`
	TokenFile     string `yaml:"token_file" env:"ESTATE_TOKEN_FILE"`
	RedisAddr     string `yaml:"redis_addr" env:"ESTATE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"ESTATE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"ESTATE_REDIS_DB"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"ESTATE_LOG_LEVEL"`
	Format string `yaml:"format" env:"ESTATE_LOG_FORMAT"`
}

// LoginConfig controls the OAuth sign-in flow.
type LoginConfig struct {
	Provider   string `yaml:"provider" env:"ESTATE_OAUTH_PROVIDER"`
	ListenAddr string `yaml:"listen_addr" env:"ESTATE_CALLBACK_ADDR"`
}

// MetricsConfig exposes prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ESTATE_METRICS_ADDR"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			ImageBucket:       "images",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Tables: TablesConfig{
			Properties: "properties",
			Agents:     "agents",
			Reviews:    "reviews",
			Galleries:  "galleries",
		},
		Session: SessionConfig{Profile: "default"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Login: LoginConfig{
			Provider:   "google",
			ListenAddr: "127.0.0.1:0",
		},
	}
}

// Options selects the files Load reads. Empty paths are skipped, except that
// an empty EnvFile falls back to DefaultEnvFile when it exists.
type Options struct {
	File    string
	EnvFile string
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if opts.File != "" {
		if err := cfg.mergeFile(opts.File); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	// godotenv.Load never overrides variables already in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	// StrictDecode reports ErrInvalidTarget when no variable is set at all.
	err := envdecode.StrictDecode(c)
	if err != nil && !errors.Is(err, envdecode.ErrInvalidTarget) && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
	c.Backend.APIKey = strings.TrimSpace(c.Backend.APIKey)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Login.Provider = strings.ToLower(strings.TrimSpace(c.Login.Provider))
	if c.Session.Profile == "" {
		c.Session.Profile = "default"
	}
}

// Validate checks that the configuration can reach a backend.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required (ESTATE_BACKEND_URL)")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend url %q must be an absolute http(s) URL", c.Backend.URL)
	}
	if c.Backend.APIKey == "" {
		return errors.New("api key is required (ESTATE_API_KEY)")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("http timeout must not be negative, got %s", c.Backend.Timeout)
	}
	if c.Session.RedisDB < 0 {
		return fmt.Errorf("redis db must not be negative, got %d", c.Session.RedisDB)
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %v", c.Backend.RequestsPerSecond)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	switch backend.OAuthProvider(c.Login.Provider) {
	case "", backend.ProviderGoogle, backend.ProviderApple:
	default:
		return fmt.Errorf("oauth provider %q: want google or apple", c.Login.Provider)
	}
	return nil
}
