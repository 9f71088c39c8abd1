package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransport(t *testing.T) {
	v := NewValidator()

	for _, transport := range []string{"stdio", "http", "gateway"} {
		assert.NoError(t, v.ValidateTransport(transport), transport)
	}
	assert.Error(t, v.ValidateTransport("grpc"))
	assert.Error(t, v.ValidateTransport(""))
}

func TestValidateHost(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateHost(""))
	assert.NoError(t, v.ValidateHost("localhost"))
	assert.NoError(t, v.ValidateHost("0.0.0.0"))
	assert.NoError(t, v.ValidateHost("::1"))
	assert.Error(t, v.ValidateHost("not a host"))
}

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(0))
	assert.NoError(t, v.ValidatePort(8080))
	assert.Error(t, v.ValidatePort(-1))
	assert.Error(t, v.ValidatePort(65536))
}

func TestValidateSweepSchedule(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		spec  string
		valid bool
	}{
		{"", true},
		{"@every 1m", true},
		{"@hourly", true},
		{"*/5 * * * *", true},
		{"* * * * * *", false}, // seconds field is not enabled
		{"every minute", false},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := v.ValidateSweepSchedule(tt.spec)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateDuration(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDuration("x", time.Second, time.Millisecond, time.Minute))
	assert.NoError(t, v.ValidateDuration("x", time.Hour, time.Second, 0))
	assert.Error(t, v.ValidateDuration("x", time.Microsecond, time.Millisecond, time.Minute))

	err := v.ValidateDuration("sessions.lock_timeout", time.Hour, time.Millisecond, time.Minute)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "sessions.lock_timeout")
	}
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateSharedSecret(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSharedSecret(""))
	assert.NoError(t, v.ValidateSharedSecret("0123456789abcdef"))
	assert.Error(t, v.ValidateSharedSecret("short"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Transport = TransportGateway
		cfg.Server.Port = 99999
		cfg.Server.SharedSecret = "short"
		cfg.Sessions.SweepSchedule = "sometimes"
		cfg.Logging.Level = "loud"
		cfg.Metrics.Addr = "no-port"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})

	t.Run("stdio ignores network settings", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Host = "???"
		cfg.Server.Port = -5
		assert.Empty(t, v.ValidateConfig(cfg))
	})
}

func TestValidateConfigTracing(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		mutate  func(*TracingConfig)
		wantErr string
	}{
		{"disabled ignores settings", func(c *TracingConfig) { c.SampleRatio = 7; c.Endpoint = "bad" }, ""},
		{"in-process only", func(c *TracingConfig) { c.Enabled = true }, ""},
		{"collector endpoint", func(c *TracingConfig) { c.Enabled = true; c.Endpoint = "otel-collector:4318" }, ""},
		{"ratio above one", func(c *TracingConfig) { c.Enabled = true; c.SampleRatio = 1.5 }, "sample_ratio"},
		{"endpoint without port", func(c *TracingConfig) { c.Enabled = true; c.Endpoint = "otel-collector" }, "tracing.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg.Tracing)
			errs := v.ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}
