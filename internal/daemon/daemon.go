package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/docmcp/internal/config"
	"github.com/harun/docmcp/internal/logger"
	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/internal/tracing"
	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/gateway"
	"github.com/harun/docmcp/pkg/mcpserver"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/harun/docmcp/pkg/ops"
	"github.com/harun/docmcp/pkg/session"
)

const stopTimeout = 5 * time.Second

// Daemon assembles storage, the session cache, the dispatcher and one transport.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	storage    *document.Storage
	sessions   *session.Manager
	registry   *operation.Registry
	dispatcher *operation.Dispatcher

	// Services
	mcpServer     *mcpserver.Server
	gatewayServer *gateway.Server
	metricsServer *http.Server
	cleanup       *session.Cleanup
	watcher       *session.Watcher

	pidFile *PIDFile

	stdin  io.Reader
	stdout io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// done is closed when an MCP transport returns on its own, e.g. stdin EOF.
	done     chan struct{}
	doneOnce sync.Once

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithStdio replaces the process's stdin and stdout for the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(d *Daemon) {
		d.stdin = in
		d.stdout = out
	}
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.pidFile = OpenPIDFile(cfg.DataDir)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules builds storage, sessions and the dispatcher.
func (d *Daemon) initializeCoreModules() error {
	storage, err := document.NewOsStorage(d.config.Storage.Root)
	if err != nil {
		return err
	}
	d.storage = storage
	d.logger.Info().Str("root", storage.Root()).Msg("Document storage initialized")

	if d.config.Sessions.Enabled {
		d.sessions = session.NewManager(storage, session.Options{
			LockTimeout:  d.config.Sessions.LockTimeout,
			MaxDocuments: d.config.Sessions.MaxDocuments,
			MaxBytes:     d.config.Sessions.MaxBytes,
		})
		d.logger.Info().
			Dur("lock_timeout", d.config.Sessions.LockTimeout).
			Int("max_documents", d.config.Sessions.MaxDocuments).
			Int64("max_bytes", d.config.Sessions.MaxBytes).
			Msg("Session manager initialized")
	}

	registry, err := operation.NewRegistry(ops.Catalog())
	if err != nil {
		return fmt.Errorf("failed to build operation registry: %w", err)
	}
	d.registry = registry

	dispatcher, err := operation.NewDispatcher(operation.DispatcherConfig{
		Registry:          registry,
		Storage:           storage,
		Sessions:          d.sessions,
		Identity:          mcpserver.IdentityAccessor(),
		RollbackOnFailure: d.config.Sessions.RollbackOnFailure,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	d.dispatcher = dispatcher
	d.logger.Info().Strs("operations", registry.Names()).Msg("Operation dispatcher initialized")

	return nil
}

// initializeServices builds the transport and the background services.
func (d *Daemon) initializeServices() error {
	switch d.config.Server.Transport {
	case config.TransportGateway:
		server, err := gateway.NewServer(gateway.Config{
			Host:         d.config.Server.Host,
			Port:         d.config.Server.Port,
			SharedSecret: d.config.Server.SharedSecret,
			TickInterval: d.config.Server.TickInterval,
			RateLimits: gateway.RateLimits{
				RequestsPerMinute: d.config.Server.RateLimits.RequestsPerMinute,
				MaxConcurrent:     d.config.Server.RateLimits.MaxConcurrent,
			},
			Dispatcher: d.dispatcher,
			Logger:     d.logger.Component("gateway"),
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gatewayServer = server
	default:
		d.mcpServer = mcpserver.New(d.dispatcher, mcpserver.Options{
			Name:    d.config.Server.Name,
			Version: Version,
		})
	}

	if d.config.Metrics.Enabled && d.config.Metrics.Addr != "" && d.gatewayServer == nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:              d.config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if d.sessions != nil {
		d.cleanup = session.NewCleanup(d.sessions, d.config.Sessions.IdleTTL, d.config.Sessions.SweepSchedule)

		if d.config.Storage.Watch {
			watcher, err := session.NewWatcher(d.sessions, session.WatcherConfig{})
			if err != nil {
				d.logger.Warn().Err(err).Msg("Failed to create document watcher, external edits will not be detected")
			} else {
				d.watcher = watcher
			}
		}
	}

	return nil
}

// Version is reported to MCP clients.
var Version = "0.1.0"

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Str("transport", d.config.Server.Transport).Msg("Starting docmcp daemon")

	record := Record{
		PID:       os.Getpid(),
		Transport: d.config.Server.Transport,
		Root:      d.storage.Root(),
		StartedAt: d.startTime,
	}
	if d.config.Server.Transport == config.TransportHTTP {
		record.Addr = d.config.Server.Addr()
	}
	if err := d.pidFile.Claim(record); err != nil {
		return err
	}
	logger.Info().Str("pid_file", d.pidFile.Path()).Int("pid", record.PID).Msg("PID file claimed")

	auditPath := filepath.Join(d.config.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		logger.Warn().Err(err).Str("path", auditPath).Msg("Failed to open audit log, auditing to stderr")
	}
	observability.RecordConfigAudit(d.ctx, "config.load", "daemon", map[string]interface{}{
		"transport": d.config.Server.Transport,
		"root":      d.storage.Root(),
		"sessions":  d.config.Sessions.Enabled,
	})

	if d.cleanup != nil {
		if err := d.cleanup.Start(); err != nil {
			return fmt.Errorf("failed to start session cleanup: %w", err)
		}
		logger.Info().Msg("Session cleanup started")
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start document watcher")
		} else {
			logger.Info().Msg("Document watcher started")
		}
	}

	if d.metricsServer != nil {
		listener, err := net.Listen("tcp", d.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen for metrics: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
		logger.Info().Str("addr", listener.Addr().String()).Msg("Metrics server started")
	}

	if err := d.startTransport(); err != nil {
		return err
	}
	if d.gatewayServer != nil {
		record.Addr = d.gatewayServer.Addr()
		if err := d.pidFile.Update(record); err != nil {
			logger.Warn().Err(err).Msg("Failed to record gateway address")
		}
	}

	logger.Info().Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) startTransport() error {
	if d.gatewayServer != nil {
		if err := d.gatewayServer.Start(); err != nil {
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
		return nil
	}

	serve := func(ctx context.Context) error {
		return d.mcpServer.ServeStream(ctx, d.stdin, d.stdout)
	}
	if d.config.Server.Transport == config.TransportHTTP {
		addr := d.config.Server.Addr()
		serve = func(ctx context.Context) error {
			return d.mcpServer.ServeHTTP(ctx, addr)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.doneOnce.Do(func() { close(d.done) })
		if err := serve(d.ctx); err != nil {
			d.logger.Error().Err(err).Msg("MCP transport stopped with error")
		}
	}()
	return nil
}

// Done is closed when the MCP transport returns on its own.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping docmcp daemon")

	// Stop gateway server
	if d.gatewayServer != nil {
		if err := d.gatewayServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop gateway server")
		}
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop document watcher")
		}
	}

	if d.cleanup != nil && d.cleanup.IsRunning() {
		if err := d.cleanup.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session cleanup")
		}
	}

	// Cancel context, which ends MCP transports
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(stopTimeout):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if d.sessions != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := d.sessions.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to close session manager")
		}
		cancel()
	}

	if err := d.pidFile.Release(os.Getpid()); err != nil {
		logger.Error().Err(err).Msg("Failed to release PID file")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:   d.running,
		Transport: d.config.Server.Transport,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	if d.gatewayServer != nil {
		status.Addr = d.gatewayServer.Addr()
	}
	if d.sessions != nil {
		status.Sessions = len(d.sessions.Sessions())
	}

	return status
}

// Wait blocks until SIGINT, SIGTERM or the transport ending, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.done:
		d.logger.Info().Msg("Transport closed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetDispatcher returns the operation dispatcher
func (d *Daemon) GetDispatcher() *operation.Dispatcher {
	return d.dispatcher
}

// GetSessionManager returns the session manager, or nil when sessions are disabled
func (d *Daemon) GetSessionManager() *session.Manager {
	return d.sessions
}

// GetGatewayServer returns the gateway, or nil for MCP transports
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}

// Status represents daemon status
type Status struct {
	Running   bool
	Transport string
	Addr      string
	Sessions  int
	Uptime    time.Duration
	StartTime time.Time
}
