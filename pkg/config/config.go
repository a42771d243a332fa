// Package config loads and validates statesync configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Events   EventsConfig   `yaml:"events"`
	Identity IdentityConfig `yaml:"identity"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address string    `yaml:"address"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig configures the database connection. An empty DSN selects
// the in-memory stores (development mode).
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SessionConfig configures the session lifecycle.
type SessionConfig struct {
	Lifetime        time.Duration `yaml:"lifetime"`
	CookieName      string        `yaml:"cookie_name"`
	Secret          string        `yaml:"secret"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// EventsConfig configures the event log and the streaming endpoint.
type EventsConfig struct {
	Retention         time.Duration `yaml:"retention"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BatchSize         int           `yaml:"batch_size"`
	DefaultChannel    string        `yaml:"default_channel"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// IdentityConfig configures verification of host identity assertions on
// the login endpoint.
type IdentityConfig struct {
	// SigningKey is the shared HMAC key the host signs assertions with.
	SigningKey string `yaml:"signing_key"`
}

// Load loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults applies default values to the config.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Session.Lifetime == 0 {
		cfg.Session.Lifetime = 7 * 24 * time.Hour
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "statesync_session"
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = time.Hour
	}
	if cfg.Events.Retention == 0 {
		cfg.Events.Retention = time.Hour
	}
	if cfg.Events.PollInterval == 0 {
		cfg.Events.PollInterval = time.Second
	}
	if cfg.Events.HeartbeatInterval == 0 {
		cfg.Events.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Events.BatchSize == 0 {
		cfg.Events.BatchSize = 50
	}
	if cfg.Events.DefaultChannel == "" {
		cfg.Events.DefaultChannel = "default"
	}
	if cfg.Events.CleanupInterval == 0 {
		cfg.Events.CleanupInterval = 10 * time.Minute
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			errs = append(errs, "server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			errs = append(errs, "server.tls.key_file is required when TLS is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
