package mockserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/zjrosen/sift/internal/log"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the mock server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "localhost:8000" or ":0").
	Addr    string
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// NewServer creates a mock server bound to cfg.Addr.
// If Addr uses port 0 the OS assigns one; use Port() to read it.
func NewServer(cfg ServerConfig) (*Server, error) {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	handler := NewHandler(cfg.Handler)
	return &Server{
		handler:  handler,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			// No write timeout: streams stay open for the whole scenario.
		},
	}, nil
}

// Start serves until the server is stopped. It returns http.ErrServerClosed
// after a graceful Stop.
func (s *Server) Start() error {
	log.Info(log.CatMock, "Starting mock research service", "addr", s.listener.Addr().String())
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatMock, "Stopping mock research service")
	return s.server.Shutdown(ctx)
}

// SetScenarios swaps the user scenarios while the server runs.
func (s *Server) SetScenarios(scenarios []Scenario) {
	s.handler.SetScenarios(scenarios)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}
