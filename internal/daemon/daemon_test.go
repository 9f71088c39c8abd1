package daemon

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/docmcp/internal/config"
	"github.com/harun/docmcp/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, transport string) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(tmpDir, "data")
	cfg.Storage.Root = filepath.Join(tmpDir, "docs")
	cfg.Server.Transport = transport
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.TickInterval = -1
	return cfg
}

// createTestDaemon creates a stdio daemon whose stdin stays open until the test ends
func createTestDaemon(t *testing.T) (*Daemon, *logger.Logger) {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	daemon, err := New(testConfig(t, config.TransportStdio), log, WithStdio(stdin, io.Discard))
	require.NoError(t, err)

	return daemon, log
}

func TestNew(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	assert.NotNil(t, daemon)
	assert.NotNil(t, daemon.storage)
	assert.NotNil(t, daemon.sessions)
	assert.NotNil(t, daemon.dispatcher)
	assert.NotNil(t, daemon.mcpServer)
	assert.Nil(t, daemon.gatewayServer)
	assert.NotNil(t, daemon.cleanup)
	require.NotNil(t, daemon.pidFile)
	assert.Equal(t, filepath.Join(daemon.config.DataDir, PIDFileName), daemon.pidFile.Path())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := testConfig(t, "smoke-signals")
	_, err = New(cfg, log)
	assert.Error(t, err)
}

func TestNewWithoutSessions(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := testConfig(t, config.TransportStdio)
	cfg.Sessions.Enabled = false

	daemon, err := New(cfg, log, WithStdio(strings.NewReader(""), io.Discard))
	require.NoError(t, err)

	assert.Nil(t, daemon.GetSessionManager())
	assert.Nil(t, daemon.cleanup)
	assert.Nil(t, daemon.watcher)
	assert.Nil(t, daemon.GetDispatcher().Sessions())
}

func TestDaemonStartStop(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	err := daemon.Start()
	require.NoError(t, err)

	status := daemon.Status()
	assert.True(t, status.Running)
	assert.Equal(t, config.TransportStdio, status.Transport)
	rec, running := daemon.pidFile.Running()
	require.True(t, running)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, config.TransportStdio, rec.Transport)
	assert.Equal(t, daemon.storage.Root(), rec.Root)

	assert.Error(t, daemon.Start(), "second start must fail")

	err = daemon.Stop()
	require.NoError(t, err)

	status = daemon.Status()
	assert.False(t, status.Running)
	_, running = daemon.pidFile.Running()
	assert.False(t, running)

	assert.Error(t, daemon.Stop(), "second stop must fail")
}

func TestDaemonStdioEOFClosesDone(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	daemon, err := New(testConfig(t, config.TransportStdio), log, WithStdio(strings.NewReader(""), io.Discard))
	require.NoError(t, err)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	select {
	case <-daemon.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not finish after stdin EOF")
	}
}

func TestDaemonGatewayTransport(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	daemon, err := New(testConfig(t, config.TransportGateway), log)
	require.NoError(t, err)
	require.NotNil(t, daemon.GetGatewayServer())
	assert.Nil(t, daemon.mcpServer)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	status := daemon.Status()
	require.NotEmpty(t, status.Addr)
	assert.Equal(t, 0, status.Sessions)

	rec, err := daemon.pidFile.Read()
	require.NoError(t, err)
	assert.Equal(t, status.Addr, rec.Addr, "PID file advertises the bound gateway address")

	resp, err := http.Get("http://" + status.Addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDaemonStatus(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	// Status before start
	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	err := daemon.Start()
	require.NoError(t, err)
	defer daemon.Stop()

	time.Sleep(10 * time.Millisecond)
	status = daemon.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
}

func TestDaemonGetters(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	assert.NotNil(t, daemon.GetConfig())
	assert.NotNil(t, daemon.GetLogger())
	assert.NotNil(t, daemon.GetDispatcher())
	assert.NotNil(t, daemon.GetSessionManager())
	assert.Nil(t, daemon.GetGatewayServer())
}
