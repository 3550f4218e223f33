package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration. A NATS connection is optional;
// the service runs standalone when no URL is configured.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MetricsConfig represents the operational HTTP server configuration
type MetricsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// IngestConfig represents ingestion pipeline configuration
type IngestConfig struct {
	// RefreshInterval is how often active integrations are re-fetched and
	// diffed against running sessions.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// EmptyRetryInterval is the delay before re-checking when zero active
	// integrations exist at startup.
	EmptyRetryInterval time.Duration `yaml:"empty_retry_interval"`

	// ReconnectDelay is the manual reconnect delay after a terminal
	// connection failure.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// ConnectTimeout bounds one MQTT connect attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ShutdownTimeout bounds the drain of all broker sessions on
	// termination; sessions that do not confirm in time are abandoned.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// applyDefaults fills unset values
func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "mqtt-ingest"
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9100
	}

	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 5 * time.Second
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}

	if c.Ingest.RefreshInterval == 0 {
		c.Ingest.RefreshInterval = 5 * time.Minute
	}
	if c.Ingest.EmptyRetryInterval == 0 {
		c.Ingest.EmptyRetryInterval = 60 * time.Second
	}
	if c.Ingest.ReconnectDelay == 0 {
		c.Ingest.ReconnectDelay = 10 * time.Second
	}
	if c.Ingest.ConnectTimeout == 0 {
		c.Ingest.ConnectTimeout = 30 * time.Second
	}
	if c.Ingest.ShutdownTimeout == 0 {
		c.Ingest.ShutdownTimeout = 15 * time.Second
	}
}
