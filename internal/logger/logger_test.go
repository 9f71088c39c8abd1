package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &m), raw)
		lines = append(lines, m)
	}
	return lines
}

func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "docmcp.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)

	l.Debug().Str("path", "/docs/a.docx").Msg("session opened")
	cl := l.Component("session")
	cl.Info().Msg("tagged")
	require.NoError(t, l.Close())

	lines := readLines(t, logFile)
	require.Len(t, lines, 2)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "/docs/a.docx", lines[0]["path"])
	assert.Contains(t, lines[0], "time")
	assert.Equal(t, "session", lines[1]["component"])
}

func TestNew_LevelFiltering(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "docmcp.log")

	l, err := New(Config{Level: "warn", File: logFile})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetZerolog().GetLevel())

	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	l.Error().Msg("kept too")
	require.NoError(t, l.Close())

	lines := readLines(t, logFile)
	require.Len(t, lines, 2)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		l, err := New(Config{Level: level})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel(), "level %q", level)
		assert.Nil(t, l.file)
	}
}

func TestNew_RedactsOperationArguments(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "docmcp.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	require.NotNil(t, l.redactor)

	l.Info().
		RawJSON("args", []byte(`{"path":"/docs/a.docx","password":"hunter2"}`)).
		Str("shared_secret", "hunter2-value").
		Msg("operation dispatched")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "operation dispatched")
	assert.Contains(t, string(content), "/docs/a.docx")
	assert.NotContains(t, string(content), "hunter2")
}

func TestNew_RotatingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "docmcp.log")

	l, err := New(Config{Level: "info", File: logFile, MaxSize: 1, MaxAge: 7})
	require.NoError(t, err)

	_, rotating := l.file.(*RotatingWriter)
	assert.True(t, rotating)

	l.Info().Msg("rotating message")
	require.NoError(t, l.Close())

	lines := readLines(t, logFile)
	require.Len(t, lines, 1)
	assert.Equal(t, "rotating message", lines[0]["message"])
}

func TestNew_ConsoleAndFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "docmcp.log")

	l, err := New(Config{Level: "info", File: logFile, Console: true, Pretty: true, Stderr: true})
	require.NoError(t, err)

	l.Info().Msg("both sinks")
	require.NoError(t, l.Close())

	lines := readLines(t, logFile)
	require.Len(t, lines, 1)
	assert.Equal(t, "both sinks", lines[0]["message"])
}

func TestNew_BadFilePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := New(Config{File: filepath.Join(blocker, "docmcp.log")})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Stderr)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestClose_WithoutFile(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true, Stderr: true})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
