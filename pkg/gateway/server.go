package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/rs/zerolog"
)

const (
	// SessionHeader carries the caller identity on single-shot /rpc requests.
	SessionHeader = "X-Session-ID"
	// SecretHeader carries the shared secret on /rpc requests.
	SecretHeader = "X-Docmcp-Secret"
	// TraceHeader carries an optional caller-supplied trace id.
	TraceHeader = "X-Trace-Id"

	defaultTickInterval = 30 * time.Second
	defaultAuthTimeout  = 30 * time.Second

	drainTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	maxRequestBytes = 8 << 20
)

// Server is the websocket and HTTP JSON-RPC gateway in front of the dispatcher.
type Server struct {
	cfg        Config
	dispatcher *operation.Dispatcher
	logger     zerolog.Logger

	router      *RPCRouter
	clients     *clientSet
	limits      *sessionLimits
	authHandler *AuthHandler
	broadcaster *EventBroadcaster
	upgrader    websocket.Upgrader

	server   *http.Server
	listener net.Listener

	// base is the parent of every call context; canceled after the drain.
	base       context.Context
	cancelBase context.CancelFunc
	draining   atomic.Bool
	inFlight   sync.WaitGroup

	stopTicks context.CancelFunc
	ticks     sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host string
	// Port 0 picks a free port; see Addr.
	Port int
	// SharedSecret enables HMAC challenge authentication when set.
	SharedSecret string
	// AuthTimeout closes connections that have not answered the challenge in
	// time. Zero means 30s; negative disables it.
	AuthTimeout time.Duration
	// TickInterval is the keepalive event period. Zero means 30s; negative disables it.
	TickInterval time.Duration
	RateLimits   RateLimits
	Dispatcher   *operation.Dispatcher
	Logger       zerolog.Logger
}

// NewServer creates a gateway. Nothing listens until Start; Handler can be
// mounted elsewhere instead.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}

	clients := newClientSet()
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		dispatcher:  cfg.Dispatcher,
		logger:      cfg.Logger,
		router:      NewRPCRouter(),
		clients:     clients,
		limits:      newSessionLimits(cfg.RateLimits),
		authHandler: NewAuthHandler(cfg.SharedSecret),
		broadcaster: newEventBroadcaster(clients, cfg.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		base:       base,
		cancelBase: cancel,
	}
	s.registerBuiltinMethods()
	return s, nil
}

// Handler returns the gateway's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.draining.Load() {
		status, code = "draining", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"clients":%d}`, status, s.clients.len())
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Bool("auth", s.cfg.SharedSecret != "").
		Msg("Gateway listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.startTicks()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop refuses new work, waits for in-flight calls, then closes every
// connection and the listener.
func (s *Server) Stop() error {
	s.draining.Store(true)
	s.logger.Info().Msg("Gateway draining")
	s.stopTicksAndWait()

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	if !waitTimeout(&s.inFlight, drainTimeout) {
		s.logger.Warn().Dur("after", drainTimeout).Msg("Drain timed out, canceling in-flight calls")
	}
	s.cancelBase()

	for _, c := range s.clients.filter(nil) {
		_ = c.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("Gateway stopped")
	return nil
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// startTicks broadcasts a keepalive carrying the client and session counts.
func (s *Server) startTicks() {
	if s.cfg.TickInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	s.stopTicks = cancel
	s.ticks.Add(1)

	go func() {
		defer s.ticks.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.broadcaster.Broadcast("tick", s.tickPayload())
			}
		}
	}()
}

func (s *Server) tickPayload() map[string]interface{} {
	payload := map[string]interface{}{"clients": s.clients.len()}
	if sessions := s.dispatcher.Sessions(); sessions != nil {
		payload["sessions"] = len(sessions.Sessions())
	}
	return payload
}

func (s *Server) stopTicksAndWait() {
	if s.stopTicks != nil {
		s.stopTicks()
		s.stopTicks = nil
	}
	s.ticks.Wait()
}

// Broadcast sends an event to all authenticated clients and reports how many
// received it.
func (s *Server) Broadcast(event string, data interface{}) int {
	return s.broadcaster.Broadcast(event, data)
}

// RegisterMethod exposes handler as an RPC method on both transports.
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.Register(name, handler)
}

// UnregisterMethod removes an RPC method.
func (s *Server) UnregisterMethod(name string) {
	s.router.Unregister(name)
}

// GetConnectedClients describes every connected client and its cached documents.
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.describe(time.Now(), s.dispatcher.Sessions())
}
