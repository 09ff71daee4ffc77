// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Schema    SchemaConfig    `yaml:"schema"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Path         string        `yaml:"path"` // Dispatch endpoint (default: /urpc)
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLS          TLSConfig     `yaml:"tls"`
}

// TLSConfig configures TLS termination.
// Mode "file" serves cert_file/key_file; "acme" obtains certificates for
// domains from Let's Encrypt and keeps them in the document store.
type TLSConfig struct {
	Mode     string   `yaml:"mode"` // "off", "file" or "acme"
	CertFile string   `yaml:"cert_file,omitempty"`
	KeyFile  string   `yaml:"key_file,omitempty"`
	Domains  []string `yaml:"domains,omitempty"`
	Email    string   `yaml:"email,omitempty"`
	Staging  bool     `yaml:"staging"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WebSocketConfig configures the WebSocket channel.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Upgrade endpoint (default: /urpc/ws)
}

// AuthConfig configures how callers are identified.
// Use "none" for anonymous callers or "jwt" for bearer tokens.
type AuthConfig struct {
	Mode      string        `yaml:"mode"` // "none" or "jwt"
	JWTSecret string        `yaml:"jwt_secret,omitempty"`
	Header    string        `yaml:"header"`    // Header carrying the token (default: Authorization)
	TokenTTL  time.Duration `yaml:"token_ttl"` // Lifetime of issued tokens
}

// StoreConfig configures the document store behind the demo variables.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn"`
	Seed   bool   `yaml:"seed"` // Write initial documents on startup
}

// SchemaConfig bounds introspection.
type SchemaConfig struct {
	MaxDepth    int `yaml:"max_depth"`
	Concurrency int `yaml:"concurrency"` // Parallel variable resolutions in loadFull
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Default returns the configuration used when nothing is set. Switches that
// default to on are set here so a file can still turn them off.
func Default() *Config {
	cfg := &Config{
		WebSocket: WebSocketConfig{Enabled: true},
		Store:     StoreConfig{Seed: true},
		Metrics:   MetricsConfig{Enabled: true},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	URPC_SERVER_HOST        - Server host (default: 0.0.0.0)
//	URPC_SERVER_PORT        - Server port (default: 8080)
//	URPC_SERVER_PATH        - Dispatch endpoint (default: /urpc)
//	URPC_TLS_MODE           - TLS mode: off, file or acme (default: off)
//	URPC_TLS_DOMAINS        - Comma-separated domains for acme mode
//	URPC_WEBSOCKET_ENABLED  - Enable the WebSocket channel (default: true)
//	URPC_AUTH_MODE          - Auth mode: none or jwt (default: none)
//	URPC_AUTH_JWT_SECRET    - Secret for jwt mode
//	URPC_STORE_DRIVER       - Store driver: memory or sqlite (default: memory)
//	URPC_STORE_DSN          - SQLite database path (default: urpc.db)
//	URPC_SCHEMA_MAX_DEPTH   - Schema nesting limit (default: 8)
//	URPC_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	URPC_LOG_FORMAT         - Log format: json or console (default: json)
//	URPC_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies URPC_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("URPC_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("URPC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("URPC_SERVER_PATH"); v != "" {
		cfg.Server.Path = v
	}
	if v := os.Getenv("URPC_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("URPC_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// TLS configuration
	if v := os.Getenv("URPC_TLS_MODE"); v != "" {
		cfg.Server.TLS.Mode = v
	}
	if v := os.Getenv("URPC_TLS_CERT_FILE"); v != "" {
		cfg.Server.TLS.CertFile = v
	}
	if v := os.Getenv("URPC_TLS_KEY_FILE"); v != "" {
		cfg.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("URPC_TLS_DOMAINS"); v != "" {
		cfg.Server.TLS.Domains = splitList(v)
	}
	if v := os.Getenv("URPC_TLS_EMAIL"); v != "" {
		cfg.Server.TLS.Email = v
	}
	if v := os.Getenv("URPC_TLS_STAGING"); v != "" {
		cfg.Server.TLS.Staging = parseBool(v)
	}

	// WebSocket configuration
	if v := os.Getenv("URPC_WEBSOCKET_ENABLED"); v != "" {
		cfg.WebSocket.Enabled = parseBool(v)
	}
	if v := os.Getenv("URPC_WEBSOCKET_PATH"); v != "" {
		cfg.WebSocket.Path = v
	}

	// Auth configuration
	if v := os.Getenv("URPC_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("URPC_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("URPC_AUTH_HEADER"); v != "" {
		cfg.Auth.Header = v
	}

	// Store configuration
	if v := os.Getenv("URPC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("URPC_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("URPC_STORE_SEED"); v != "" {
		cfg.Store.Seed = parseBool(v)
	}

	// Schema configuration
	if v := os.Getenv("URPC_SCHEMA_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schema.MaxDepth = n
		}
	}
	if v := os.Getenv("URPC_SCHEMA_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schema.Concurrency = n
		}
	}

	// Logging configuration
	if v := os.Getenv("URPC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("URPC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("URPC_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("URPC_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/urpc"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Server.TLS.Mode == "" {
		cfg.Server.TLS.Mode = "off"
	}

	if cfg.WebSocket.Path == "" {
		cfg.WebSocket.Path = cfg.Server.Path + "/ws"
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "none"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "Authorization"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = "urpc.db"
	}

	if cfg.Schema.MaxDepth == 0 {
		cfg.Schema.MaxDepth = 8
	}
	if cfg.Schema.Concurrency == 0 {
		cfg.Schema.Concurrency = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}
	for name, path := range map[string]string{
		"server.path":    cfg.Server.Path,
		"websocket.path": cfg.WebSocket.Path,
		"metrics.path":   cfg.Metrics.Path,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with '/', got %q", name, path)
		}
	}
	if cfg.WebSocket.Enabled && cfg.WebSocket.Path == cfg.Server.Path {
		return fmt.Errorf("websocket.path must differ from server.path")
	}

	switch cfg.Server.TLS.Mode {
	case "off":
	case "file":
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when server.tls.mode is 'file'")
		}
	case "acme":
		if len(cfg.Server.TLS.Domains) == 0 {
			return fmt.Errorf("server.tls.domains is required when server.tls.mode is 'acme'")
		}
	default:
		return fmt.Errorf("server.tls.mode must be 'off', 'file' or 'acme', got %q", cfg.Server.TLS.Mode)
	}

	validAuthModes := map[string]bool{"none": true, "jwt": true}
	if !validAuthModes[cfg.Auth.Mode] {
		return fmt.Errorf("auth.mode must be 'none' or 'jwt', got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.Mode == "jwt" && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.mode is 'jwt'")
	}

	validDrivers := map[string]bool{"memory": true, "sqlite": true}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("store.driver must be 'memory' or 'sqlite', got %q", cfg.Store.Driver)
	}

	if cfg.Schema.MaxDepth < 1 {
		return fmt.Errorf("schema.max_depth must be positive, got %d", cfg.Schema.MaxDepth)
	}
	if cfg.Schema.Concurrency < 1 {
		return fmt.Errorf("schema.concurrency must be positive, got %d", cfg.Schema.Concurrency)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
