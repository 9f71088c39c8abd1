package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepParser accepts the same specs cron.New() schedules: five fields or descriptors.
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTransport validates the server transport
func (v *Validator) ValidateTransport(transport string) error {
	validTransports := []string{TransportStdio, TransportHTTP, TransportGateway}
	for _, valid := range validTransports {
		if transport == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid transport: %s (must be one of: %s)", transport, strings.Join(validTransports, ", "))
}

// ValidateHost validates a listen host. Empty means all interfaces.
func (v *Validator) ValidateHost(host string) error {
	if host == "" || host == "localhost" {
		return nil
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("invalid host: %s", host)
	}
	return nil
}

// ValidatePort validates a listen port. Zero picks a free port.
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// ValidateSweepSchedule validates the idle sweep cron spec
func (v *Validator) ValidateSweepSchedule(spec string) error {
	if spec == "" {
		return nil // Use default
	}
	if _, err := sweepParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateDuration validates that a duration is within [min, max]. A zero max means no upper bound.
func (v *Validator) ValidateDuration(name string, d, min, max time.Duration) error {
	if d < min {
		return fmt.Errorf("%s must be at least %s, got %s", name, min, d)
	}
	if max > 0 && d > max {
		return fmt.Errorf("%s must be at most %s, got %s", name, max, d)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSharedSecret rejects secrets too short to resist guessing.
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return nil // Authentication disabled
	}
	if len(secret) < 16 {
		return fmt.Errorf("shared secret must be at least 16 characters")
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Storage.Root == "" {
		errors = append(errors, fmt.Errorf("storage root is required"))
	}
	if cfg.Sessions.MaxDocuments < 0 {
		errors = append(errors, fmt.Errorf("sessions.max_documents must be >= 0"))
	}
	if cfg.Sessions.MaxBytes < 0 {
		errors = append(errors, fmt.Errorf("sessions.max_bytes must be >= 0"))
	}

	// Validate server
	if err := v.ValidateTransport(cfg.Server.Transport); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.Transport != TransportStdio {
		if err := v.ValidateHost(cfg.Server.Host); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidatePort(cfg.Server.Port); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Server.Transport == TransportGateway {
		if err := v.ValidateSharedSecret(cfg.Server.SharedSecret); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Server.RateLimits.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limits.requests_per_minute must be >= 0"))
	}
	if cfg.Server.RateLimits.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limits.max_concurrent must be >= 0"))
	}

	// Validate sessions
	if cfg.Sessions.Enabled {
		if err := v.ValidateSweepSchedule(cfg.Sessions.SweepSchedule); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidateDuration("sessions.lock_timeout", cfg.Sessions.LockTimeout, 10*time.Millisecond, 10*time.Minute); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidateDuration("sessions.idle_ttl", cfg.Sessions.IdleTTL, time.Second, 0); err != nil {
			errors = append(errors, err)
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
		}
		if cfg.Tracing.Endpoint != "" {
			if _, _, err := net.SplitHostPort(cfg.Tracing.Endpoint); err != nil {
				errors = append(errors, fmt.Errorf("invalid tracing.endpoint %q: %w", cfg.Tracing.Endpoint, err))
			}
		}
	}

	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			errors = append(errors, fmt.Errorf("invalid metrics.addr %q: %w", cfg.Metrics.Addr, err))
		}
	}

	return errors
}
