// Package server is the HTTP + WebSocket API for the goldvault backend.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/server/handler"
	"github.com/aurumfi/goldvault/internal/server/middleware"
	"github.com/aurumfi/goldvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Rate limiting; Limit 0 disables the middleware.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Loans       *handler.LoanHandler
	Flows       *handler.FlowHandler
	Positions   *handler.PositionHandler
	Redemptions *handler.RedemptionHandler
	Sessions    *handler.SessionHandler
}

// Server is the headless HTTP + WebSocket API server for the lending
// backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) applied. limiter
// may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Loan preview and history.
	mux.HandleFunc("GET /api/loan/preview", handlers.Loans.Preview)
	mux.HandleFunc("GET /api/loan/max", handlers.Loans.MaxBorrow)
	mux.HandleFunc("GET /api/loan/history", handlers.Loans.History)

	// Flow execution.
	mux.HandleFunc("POST /api/flows/borrow", handlers.Flows.Borrow)
	mux.HandleFunc("POST /api/flows/repay", handlers.Flows.Repay)

	// Vault position.
	mux.HandleFunc("GET /api/position", handlers.Positions.GetPosition)

	// Redemption tracking and the treasury path.
	mux.HandleFunc("GET /api/redemptions", handlers.Redemptions.ListRedemptions)
	mux.HandleFunc("GET /api/redemptions/{id}", handlers.Redemptions.GetRedemption)
	mux.HandleFunc("POST /api/redemptions/treasury", handlers.Redemptions.SubmitTreasury)

	// Session state.
	mux.HandleFunc("GET /api/session", handlers.Sessions.GetSession)
	mux.HandleFunc("PUT /api/session", handlers.Sessions.PutSession)
	mux.HandleFunc("DELETE /api/session", handlers.Sessions.DeleteSession)

	// WebSocket flow stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		// Borrow flows block the request until off-chain settlement, so the
		// write timeout must cover the orchestrator's settle timeout.
		WriteTimeout: 20 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
