package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/docmcp/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("stopped without PID file", func(t *testing.T) {
		out, err := execute(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running with live PID", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "docmcp.json")
		rec, err := json.Marshal(daemon.Record{
			PID:       os.Getpid(),
			Transport: "gateway",
			Addr:      "127.0.0.1:18790",
			StartedAt: time.Now().Add(-90 * time.Second),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, daemon.PIDFileName), rec, 0644))

		out, err := execute(t, "status", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out, "Transport: gateway")
		assert.Contains(t, out, "Address: 127.0.0.1:18790")
		assert.Contains(t, out, "Uptime: 1m3")
	})
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	t.Run("stopped", func(t *testing.T) {
		var buf bytes.Buffer
		printStatus(&buf, daemon.Record{}, false, now)
		assert.Equal(t, "Status: stopped\n", buf.String())
	})

	t.Run("bare pid omits unknown fields", func(t *testing.T) {
		var buf bytes.Buffer
		printStatus(&buf, daemon.Record{PID: 42}, true, now)
		assert.Equal(t, "Status: running\nPID: 42\n", buf.String())
	})

	t.Run("full record", func(t *testing.T) {
		var buf bytes.Buffer
		printStatus(&buf, daemon.Record{
			PID:       42,
			Transport: "stdio",
			Root:      "/srv/docs",
			StartedAt: now.Add(-2 * time.Hour),
		}, true, now)
		assert.Equal(t, "Status: running\nPID: 42\nTransport: stdio\nDocuments: /srv/docs\nUptime: 2h0m0s\n", buf.String())
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3*time.Hour + 5*time.Minute + 2*time.Second, "3h5m2s"},
		{1400 * time.Millisecond, "1s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
