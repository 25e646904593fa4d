// Package server provides the HTTP server in front of the shaping proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/health"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server already running")

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Server serves probes and metrics on fixed routes and hands every other
// request to the proxy handler.
type Server struct {
	cfg        config.Server
	engine     *gin.Engine
	httpServer *http.Server
	logger     observability.Logger
	health     *health.Handler
	metrics    *observability.Metrics
	metricsAt  string

	mu       sync.RWMutex
	running  bool
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealth registers the probe routes of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetrics records request metrics in m and serves them at path.
// An empty path records without serving.
func WithMetrics(m *observability.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsAt = path
	}
}

// New creates a server that proxies unmatched routes to handler.
func New(cfg config.Server, handler http.Handler, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	// Every unknown path belongs to the upstream, including ones with a trailing slash.
	engine.RedirectTrailingSlash = false
	engine.Use(
		Recovery(s.logger),
		RequestID(),
		AccessLog(s.logger, s.metrics),
	)

	if s.health != nil {
		s.health.RegisterRoutes(engine)
	}
	if s.metrics != nil && s.metricsAt != "" {
		engine.GET(s.metricsAt, gin.WrapH(s.metrics.Handler()))
	}

	engine.NoRoute(BodyLimit(cfg.MaxBodyBytes), gin.WrapH(handler))

	s.engine = engine
	return s
}

// Engine returns the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
	}
	s.listener = ln
	s.running = true
	s.done = make(chan struct{})
	s.serveErr = nil

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("read_timeout", s.cfg.ReadTimeout.Duration()),
		observability.Duration("write_timeout", s.cfg.WriteTimeout.Duration()),
	)

	go s.serve(s.httpServer, ln, s.done)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server error", observability.Error(err))
		s.mu.Lock()
		s.serveErr = err
		s.running = false
		s.mu.Unlock()
	}
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop stops the HTTP server gracefully, waiting for in-flight requests
// until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv, done := s.httpServer, s.done
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	<-done

	s.mu.Lock()
	s.running = false
	err := s.serveErr
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return err
}
