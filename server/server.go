// Package server implements the webpilot HTTP surface and the WebSocket
// event stream.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/webpilot/agent"
	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/events"
	"github.com/GoCodeAlone/webpilot/metrics"
)

// Server is the webpilot HTTP server. It is a thin adapter: parse request,
// call runtime, serialize response.
type Server struct {
	cfg     config.Config
	runtime *agent.Runtime
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	mux      *http.ServeMux
	httpSrv  *http.Server
	listener net.Listener

	startTime time.Time
	version   string
}

// New creates a Server wired to the given runtime and event hub.
func New(cfg config.Config, rt *agent.Runtime, hub *events.Hub, m *metrics.Metrics, ver string, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		runtime:   rt,
		hub:       hub,
		metrics:   m,
		logger:    logger,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		version:   ver,
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /tools", s.handleTools)
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /tasks/{id}/context", s.handleUpdateContext)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the full middleware-wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Trailing slashes are stripped everywhere except the root.
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			r2 := r.Clone(r.Context())
			r2.URL.Path = strings.TrimRight(r.URL.Path, "/")
			r = r2
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Start begins listening on the configured address. It returns once the
// listener is bound; serving continues until Stop.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", slog.Any("err", err))
		}
	}()
	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
