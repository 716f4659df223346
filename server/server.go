// Package server implements claw's operational HTTP endpoint: health,
// process info and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/llm"
)

// ToolLister reports the tools the agent can call.
type ToolLister interface {
	Specs() []llm.ToolSpec
}

// Pinger checks a dependency, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds server configuration options.
type Config struct {
	Version string
	Model   string
	Logger  zerolog.Logger
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	tools      ToolLister
	db         Pinger
	version    string
	model      string
	logger     zerolog.Logger

	startedAt time.Time
}

// New creates a server. tools and db may be nil.
func New(cfg Config, tools ToolLister, db Pinger) *Server {
	s := &Server{
		tools:     tools,
		db:        db,
		version:   cfg.Version,
		model:     cfg.Model,
		logger:    cfg.Logger.With().Str("component", "ops-server").Logger(),
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.loggingMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Serve starts the server on the given listener. It returns nil after Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting ops server")
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping ops server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("Handler panicked")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
