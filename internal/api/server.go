package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/caseta-bridge/internal/platform"
	"github.com/nerrad567/caseta-bridge/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the part of the reconciliation engine the API serves.
// *platform.Engine implements it.
type Engine interface {
	Hubs() []string
	LastReport(hubID string) (platform.Report, bool)
	Reconcile(ctx context.Context, hubID string) (platform.Report, error)
	DriverCount() int
	Attached(id string) bool
}

// Accessories lists persisted accessories. *accessory.Store implements it.
type Accessories interface {
	List() []*accessory.Accessory
	ListByHub(hubID string) []*accessory.Accessory
	Get(id string) (*accessory.Accessory, bool)
}

// HealthCheck reports whether one dependency is healthy.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Engine      Engine
	Accessories Accessories

	// Checks are run by GET /health, keyed by dependency name.
	Checks map[string]HealthCheck

	// RelayStats reports the supervised relay, when the bridge runs one.
	RelayStats func() process.Stats

	// EventsDropped reports events the bus discarded, for /metrics.
	EventsDropped func() uint64

	// Hub is used instead of a new one when set, so the event bus can be
	// wired to it before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	logger        *logging.Logger
	engine        Engine
	accessories   Accessories
	checks        map[string]HealthCheck
	relayStats    func() process.Stats
	eventsDropped func() uint64
	version       string
	startTime     time.Time

	hub         *Hub
	externalHub bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil || deps.Accessories == nil {
		return nil, fmt.Errorf("engine and accessories are required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		engine:        deps.Engine,
		accessories:   deps.Accessories,
		checks:        deps.Checks,
		relayStats:    deps.RelayStats,
		eventsDropped: deps.EventsDropped,
		version:       deps.Version,
		startTime:     time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in the background.
//
// Returns:
//   - error: If the listener cannot be opened (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	srvCtx, cancel := context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.cancel = cancel
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.Addr() == "" {
		return fmt.Errorf("api server not started")
	}
	return nil
}
