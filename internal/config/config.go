package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendSQLite = "sqlite"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`

	// DevMode skips secret validation. Env only.
	DevMode bool `yaml:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains bearer token settings.
type AuthConfig struct {
	JWTSecret string   `yaml:"-"` // env-only, never in YAML
	TokenTTL  Duration `yaml:"token_ttl"`
}

// WorkerConfig contains background job settings.
type WorkerConfig struct {
	QueueSize         int      `yaml:"queue_size"`
	Concurrency       int      `yaml:"concurrency"`
	LockBackend       string   `yaml:"lock_backend"`
	LockTTL           Duration `yaml:"lock_ttl"`
	LockSweepInterval Duration `yaml:"lock_sweep_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("DEEP_CONFIG_PATH", "config/deep.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated loads configuration like Load but skips validation.
// Offline commands use it to locate the database without a JWT secret.
func LoadUnvalidated() (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, getEnv("DEEP_CONFIG_PATH", "config/deep.yaml")); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/deep.db",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(24 * time.Hour),
		},
		Worker: WorkerConfig{
			QueueSize:         256,
			Concurrency:       2,
			LockBackend:       LockBackendMemory,
			LockTTL:           Duration(10 * time.Minute),
			LockSweepInterval: Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("DEEP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setDuration("DEEP_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("DEEP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("DEEP_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("DEEP_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	// Database
	if v := os.Getenv("DEEP_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("DEEP_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	setDuration("DEEP_TOKEN_TTL", &cfg.Auth.TokenTTL)

	// Worker
	if v := os.Getenv("DEEP_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.QueueSize = n
		}
	}
	if v := os.Getenv("DEEP_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("DEEP_LOCK_BACKEND"); v != "" {
		cfg.Worker.LockBackend = v
	}
	setDuration("DEEP_LOCK_TTL", &cfg.Worker.LockTTL)
	setDuration("DEEP_LOCK_SWEEP_INTERVAL", &cfg.Worker.LockSweepInterval)

	// Log
	if v := os.Getenv("DEEP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DEEP_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	cfg.DevMode = os.Getenv("DEEP_DEV_MODE") == "true"
}

// validate checks that configuration values are usable.
// In dev mode the JWT secret may be empty.
func (c *Config) validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" && !c.DevMode {
		errs = append(errs, errors.New("DEEP_JWT_SECRET is required"))
	}
	switch c.Worker.LockBackend {
	case LockBackendMemory, LockBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("lock backend must be %q or %q, got %q",
			LockBackendMemory, LockBackendSQLite, c.Worker.LockBackend))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker concurrency must be at least 1, got %d", c.Worker.Concurrency))
	}
	if c.Worker.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be at least 1, got %d", c.Worker.QueueSize))
	}
	if c.Worker.LockTTL <= 0 {
		errs = append(errs, errors.New("lock ttl must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// setDuration overrides *d from env var key when it holds a valid duration.
func setDuration(key string, d *Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*d = Duration(parsed)
		}
	}
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
