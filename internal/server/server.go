// Package server exposes the reconciler over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
	"github.com/alanyoungcy/reconbot/internal/server/handler"
	"github.com/alanyoungcy/reconbot/internal/server/middleware"
	"github.com/alanyoungcy/reconbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps ingest requests per client IP per RateLimitWindow.
	// Zero disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Breaks  *handler.BreaksHandler
	Ingest  *handler.IngestHandler
	Missing *handler.MissingHandler
}

// Server is the headless HTTP + WebSocket API for the reconciler.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, ingest rate limiting) and
// attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Break log and counters.
	mux.HandleFunc("GET /api/breaks", handlers.Breaks.ListBreaks)
	mux.HandleFunc("GET /api/stats", handlers.Breaks.GetStats)

	// Journal-backed missing-confirm report.
	mux.HandleFunc("GET /api/missing", handlers.Missing.ListMissing)

	// Ingest endpoints, rate limited when a limiter is configured.
	var ingestTrade http.Handler = http.HandlerFunc(handlers.Ingest.PostTrade)
	var ingestConfirm http.Handler = http.HandlerFunc(handlers.Ingest.PostConfirm)
	if limiter != nil && cfg.RateLimit > 0 {
		rl := middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)
		ingestTrade = rl(ingestTrade)
		ingestConfirm = rl(ingestConfirm)
	}
	mux.Handle("POST /api/ingest/trade", ingestTrade)
	mux.Handle("POST /api/ingest/confirm", ingestConfirm)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
