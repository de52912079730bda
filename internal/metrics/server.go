package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds configuration for the metrics HTTP server.
type ServerConfig struct {
	// Enabled indicates whether the metrics server should run.
	Enabled bool

	// Addr is the listen address, e.g. ":9090" or "127.0.0.1:0".
	Addr string

	// Path is the path to serve metrics on.
	Path string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default metrics server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:      false,
		Addr:         "127.0.0.1:9090",
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the default Prometheus registry over HTTP.
type Server struct {
	config   ServerConfig
	server   *http.Server
	listener net.Listener
	errc     chan error
}

// NewServer creates a new metrics server.
func NewServer(config ServerConfig) *Server {
	return &Server{config: config}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	if !s.config.Enabled {
		return nil
	}

	Init()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.errc = make(chan error, 1)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
		close(s.errc)
	}()

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.errc
}

// Addr returns the bound address, or "" if the server is not running.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
