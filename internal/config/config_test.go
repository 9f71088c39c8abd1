package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, "docmcp", cfg.Server.Name)
	assert.True(t, cfg.Sessions.Enabled)
	assert.True(t, cfg.Sessions.RollbackOnFailure)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, 30*time.Second, cfg.Sessions.LockTimeout)
	assert.Equal(t, "@every 1m", cfg.Sessions.SweepSchedule)
	assert.Equal(t, 64, cfg.Sessions.MaxDocuments)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing storage root",
			mutate:  func(c *Config) { c.Storage.Root = "" },
			wantErr: "storage root",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Server.Transport = "carrier-pigeon" },
			wantErr: "invalid transport",
		},
		{
			name: "bad port for network transport",
			mutate: func(c *Config) {
				c.Server.Transport = TransportHTTP
				c.Server.Port = 70000
			},
			wantErr: "invalid port",
		},
		{
			name: "port ignored for stdio",
			mutate: func(c *Config) {
				c.Server.Port = -1
			},
		},
		{
			name:    "zero lock timeout",
			mutate:  func(c *Config) { c.Sessions.LockTimeout = 0 },
			wantErr: "lock_timeout",
		},
		{
			name: "session timings ignored when sessions are disabled",
			mutate: func(c *Config) {
				c.Sessions.Enabled = false
				c.Sessions.LockTimeout = 0
				c.Sessions.IdleTTL = 0
			},
		},
		{
			name:    "negative document budget",
			mutate:  func(c *Config) { c.Sessions.MaxDocuments = -1 },
			wantErr: "max_documents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.SharedSecret = "super-secret-gateway-key"

	str := cfg.String()
	assert.NotEmpty(t, str)
	assert.True(t, strings.Contains(str, `"transport": "stdio"`))
	assert.NotContains(t, str, "super-secret-gateway-key")
	assert.Equal(t, "super-secret-gateway-key", cfg.Server.SharedSecret, "String must not mutate the config")
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", s.Addr())
}
