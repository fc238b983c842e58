package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Backend   BackendConfig   `yaml:"backend"`
	Stream    StreamConfig    `yaml:"stream"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"TRIAGEWATCH_SERVER_HOST"`
	Port int    `yaml:"port" env:"TRIAGEWATCH_SERVER_PORT"`
}

type TransportConfig struct {
	Mode string `yaml:"mode" env:"TRIAGEWATCH_TRANSPORT"`
}

type BackendConfig struct {
	BaseURL       string        `yaml:"base_url" env:"TRIAGEWATCH_BACKEND_URL"`
	Token         string        `yaml:"token" env:"TRIAGEWATCH_BACKEND_TOKEN"`
	Timeout       time.Duration `yaml:"timeout" env:"TRIAGEWATCH_BACKEND_TIMEOUT"`
	RetryAttempts int           `yaml:"retry_attempts" env:"TRIAGEWATCH_BACKEND_RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"TRIAGEWATCH_BACKEND_RETRY_DELAY"`
	PageSize      int           `yaml:"page_size" env:"TRIAGEWATCH_BACKEND_PAGE_SIZE"`
}

type StreamConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"TRIAGEWATCH_STREAM_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"TRIAGEWATCH_STREAM_MAX_BACKOFF"`
}

// CacheConfig selects the cache store. An empty path or ":memory:" keeps the
// cache in process memory; any other path is a SQLite database file.
type CacheConfig struct {
	Path string        `yaml:"path" env:"TRIAGEWATCH_CACHE_PATH"`
	TTL  time.Duration `yaml:"ttl" env:"TRIAGEWATCH_CACHE_TTL"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled" env:"TRIAGEWATCH_AUTH_ENABLED"`
	Tokens  []string `yaml:"tokens" env:"TRIAGEWATCH_AUTH_TOKENS" env-separator:","`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"TRIAGEWATCH_LOG_LEVEL"`
	Format string `yaml:"format" env:"TRIAGEWATCH_LOG_FORMAT"`
	Path   string `yaml:"path" env:"TRIAGEWATCH_LOG_PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: TransportStdio,
		},
		Backend: BackendConfig{
			Timeout:       15 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    500 * time.Millisecond,
			PageSize:      50,
		},
		Stream: StreamConfig{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
		},
		Cache: CacheConfig{
			Path: ":memory:",
			TTL:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// TRIAGEWATCH_* environment variables, in that order of precedence. When path
// is empty, TRIAGEWATCH_CONFIG_PATH is used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TRIAGEWATCH_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg.Transport.Mode = strings.ToLower(strings.TrimSpace(cfg.Transport.Mode))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if c.Backend.PageSize <= 0 {
		return fmt.Errorf("backend page_size must be positive, got %d", c.Backend.PageSize)
	}
	if c.Backend.RetryAttempts < 1 {
		return fmt.Errorf("backend retry_attempts must be at least 1, got %d", c.Backend.RetryAttempts)
	}
	if c.Stream.InitialBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		return fmt.Errorf("invalid stream backoff %s..%s", c.Stream.InitialBackoff, c.Stream.MaxBackoff)
	}
	if c.Transport.Mode == TransportHTTP && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Transport.Mode == TransportHTTP && c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		return errors.New("auth enabled without tokens")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
