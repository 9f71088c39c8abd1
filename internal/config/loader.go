package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configDirName  = ".docmcp"
	configFileName = "docmcp.json"
	envPrefix      = "DOCMCP"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file. Environment variables such as
// DOCMCP_SERVER_TRANSPORT override file values even when no file exists.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	// Set logging file path if not specified
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "docmcp.log")
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys missing
// from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.root", cfg.Storage.Root)
	v.SetDefault("storage.watch", cfg.Storage.Watch)

	v.SetDefault("sessions.enabled", cfg.Sessions.Enabled)
	v.SetDefault("sessions.idle_ttl", cfg.Sessions.IdleTTL)
	v.SetDefault("sessions.sweep_schedule", cfg.Sessions.SweepSchedule)
	v.SetDefault("sessions.lock_timeout", cfg.Sessions.LockTimeout)
	v.SetDefault("sessions.max_documents", cfg.Sessions.MaxDocuments)
	v.SetDefault("sessions.max_bytes", cfg.Sessions.MaxBytes)
	v.SetDefault("sessions.rollback_on_failure", cfg.Sessions.RollbackOnFailure)

	v.SetDefault("server.transport", cfg.Server.Transport)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.name", cfg.Server.Name)
	v.SetDefault("server.shared_secret", cfg.Server.SharedSecret)
	v.SetDefault("server.tick_interval", cfg.Server.TickInterval)
	v.SetDefault("server.rate_limits.requests_per_minute", cfg.Server.RateLimits.RequestsPerMinute)
	v.SetDefault("server.rate_limits.max_concurrent", cfg.Server.RateLimits.MaxConcurrent)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Durations are written as strings so the file stays hand-editable.
	v.Set("storage", cfg.Storage)
	v.Set("sessions", map[string]interface{}{
		"enabled":             cfg.Sessions.Enabled,
		"idle_ttl":            cfg.Sessions.IdleTTL.String(),
		"sweep_schedule":      cfg.Sessions.SweepSchedule,
		"lock_timeout":        cfg.Sessions.LockTimeout.String(),
		"max_documents":       cfg.Sessions.MaxDocuments,
		"max_bytes":           cfg.Sessions.MaxBytes,
		"rollback_on_failure": cfg.Sessions.RollbackOnFailure,
	})
	v.Set("server", map[string]interface{}{
		"transport":     cfg.Server.Transport,
		"host":          cfg.Server.Host,
		"port":          cfg.Server.Port,
		"name":          cfg.Server.Name,
		"shared_secret": cfg.Server.SharedSecret,
		"tick_interval": cfg.Server.TickInterval.String(),
		"rate_limits":   cfg.Server.RateLimits,
	})
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
