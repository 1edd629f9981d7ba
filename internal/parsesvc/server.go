// Package parsesvc is the HTTP receipt parsing service: it accepts base64
// receipt images, runs them through the tiered vision models and returns
// structured expense fields.
package parsesvc

import (
	"context"
	"log/slog"
	"net/http"

	"ledgerlens/internal/vision"
)

// Parser is the model layer behind the service
type Parser interface {
	Parse(ctx context.Context, req vision.Request) (*vision.Result, error)
}

// Server handles HTTP requests for receipt parsing
type Server struct {
	parser  Parser
	limiter *RateLimiter
	version string
	mux     *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(parser Parser, limiter *RateLimiter, version string) *Server {
	return NewServerWithMux(parser, limiter, version, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(parser Parser, limiter *RateLimiter, version string, mux *http.ServeMux) *Server {
	s := &Server{
		parser:  parser,
		limiter: limiter,
		version: version,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// registerRoutes registers all routes on the server's mux. The service is a
// single endpoint; the method decides the operation.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting parse service", "address", addr, "rate_limiting", s.limiter.Enabled())
	return http.ListenAndServe(addr, s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
