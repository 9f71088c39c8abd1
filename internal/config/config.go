package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transports accepted by server.transport.
const (
	TransportStdio   = "stdio"
	TransportHTTP    = "http"
	TransportGateway = "gateway"
)

// Config represents the main docmcp configuration
type Config struct {
	// Storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Sessions
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StorageConfig holds the document root
type StorageConfig struct {
	Root  string `json:"root" mapstructure:"root"`
	Watch bool   `json:"watch" mapstructure:"watch"` // evict cached copies when files change on disk
}

// SessionsConfig holds the session cache settings
type SessionsConfig struct {
	Enabled           bool          `json:"enabled" mapstructure:"enabled"`
	IdleTTL           time.Duration `json:"idle_ttl" mapstructure:"idle_ttl"`
	SweepSchedule     string        `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron spec
	LockTimeout       time.Duration `json:"lock_timeout" mapstructure:"lock_timeout"`
	MaxDocuments      int           `json:"max_documents" mapstructure:"max_documents"` // 0 = unbounded
	MaxBytes          int64         `json:"max_bytes" mapstructure:"max_bytes"`         // 0 = unbounded
	RollbackOnFailure bool          `json:"rollback_on_failure" mapstructure:"rollback_on_failure"`
}

// ServerConfig holds transport configuration
type ServerConfig struct {
	Transport    string          `json:"transport" mapstructure:"transport"` // stdio, http, gateway
	Host         string          `json:"host" mapstructure:"host"`
	Port         int             `json:"port" mapstructure:"port"`
	Name         string          `json:"name" mapstructure:"name"`
	SharedSecret string          `json:"shared_secret" mapstructure:"shared_secret"`
	TickInterval time.Duration   `json:"tick_interval" mapstructure:"tick_interval"`
	RateLimits   RateLimitConfig `json:"rate_limits" mapstructure:"rate_limits"`
}

// RateLimitConfig holds per-client gateway limits
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"` // standalone /metrics listener for stdio and http transports
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
	// Endpoint is an OTLP/HTTP collector host:port. Empty keeps spans in process.
	Endpoint    string  `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Insecure    bool    `json:"insecure,omitempty" mapstructure:"insecure"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:  ".",
			Watch: true,
		},
		Sessions: SessionsConfig{
			Enabled:           true,
			IdleTTL:           30 * time.Minute,
			SweepSchedule:     "@every 1m",
			LockTimeout:       30 * time.Second,
			MaxDocuments:      64,
			MaxBytes:          256 << 20,
			RollbackOnFailure: true,
		},
		Server: ServerConfig{
			Transport:    TransportStdio,
			Host:         "127.0.0.1",
			Port:         8080,
			Name:         "docmcp",
			TickInterval: 30 * time.Second,
			RateLimits: RateLimitConfig{
				RequestsPerMinute: 600,
				MaxConcurrent:     10,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "docmcp",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config with the shared secret masked
func (c *Config) String() string {
	masked := *c
	if masked.Server.SharedSecret != "" {
		masked.Server.SharedSecret = "********"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Addr returns host:port for the network transports.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	switch c.Server.Transport {
	case TransportStdio, TransportHTTP, TransportGateway:
	default:
		return fmt.Errorf("invalid transport %q (must be: stdio, http, gateway)", c.Server.Transport)
	}
	if c.Server.Transport != TransportStdio && (c.Server.Port < 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	if c.Sessions.Enabled {
		if c.Sessions.LockTimeout <= 0 {
			return fmt.Errorf("sessions.lock_timeout must be positive")
		}
		if c.Sessions.IdleTTL <= 0 {
			return fmt.Errorf("sessions.idle_ttl must be positive")
		}
	}
	if c.Sessions.MaxDocuments < 0 {
		return fmt.Errorf("sessions.max_documents must be >= 0")
	}
	if c.Sessions.MaxBytes < 0 {
		return fmt.Errorf("sessions.max_bytes must be >= 0")
	}

	return nil
}
