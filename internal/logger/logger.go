package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process logger. It embeds zerolog.Logger and owns the log
// file, if one is configured.
type Logger struct {
	zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // pretty format for console
	Stderr    bool   // console writes to stderr; required when stdout carries a protocol
	Redaction bool   // mask passwords, secrets and signatures
	MaxSize   int    // max size in MB before rotation, 0 disables rotation
	MaxAge    int    // max age in days
	Compress  bool   // compress rotated logs
}

// DefaultConfig returns default logger configuration. The stdio MCP
// transport owns stdout, so the console goes to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Stderr:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}

// New creates a logger and installs it as the global zerolog logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out, file, err := outputs(cfg)
	if err != nil {
		return nil, err
	}

	l := &Logger{file: file}
	if cfg.Redaction {
		l.redactor = NewRedactor()
		out = l.redactor.Wrap(out)
	}
	l.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()

	log.Logger = l.Logger
	zerolog.SetGlobalLevel(level)
	return l, nil
}

// outputs assembles the console and file sinks. With neither enabled the
// logger still writes to the console stream.
func outputs(cfg Config) (io.Writer, io.Closer, error) {
	stream := io.Writer(os.Stdout)
	if cfg.Stderr {
		stream = os.Stderr
	}

	var sinks []io.Writer
	if cfg.Console {
		if cfg.Pretty {
			sinks = append(sinks, zerolog.ConsoleWriter{Out: stream, TimeFormat: time.RFC3339})
		} else {
			sinks = append(sinks, stream)
		}
	}

	var file io.WriteCloser
	if cfg.File != "" {
		f, err := openLogFile(cfg)
		if err != nil {
			return nil, nil, err
		}
		file = f
		sinks = append(sinks, f)
	}

	switch len(sinks) {
	case 0:
		return stream, nil, nil
	case 1:
		if file != nil {
			return sinks[0], file, nil
		}
		return sinks[0], nil, nil
	}
	if file != nil {
		return zerolog.MultiLevelWriter(sinks...), file, nil
	}
	return zerolog.MultiLevelWriter(sinks...), nil, nil
}

func openLogFile(cfg Config) (io.WriteCloser, error) {
	if cfg.MaxSize > 0 {
		return NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Component returns a child logger tagged with the subsystem name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.Logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.Logger
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
