package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/server/handler"
	"github.com/upvault/vaultd/internal/server/middleware"
	"github.com/upvault/vaultd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIToken    string // if empty, authentication is disabled
	RateLimit   int    // requests per client per minute; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Supervault may be nil when no supervault is configured.
type Handlers struct {
	Health     *handler.HealthHandler
	Vaults     *handler.VaultHandler
	Trades     *handler.TradeHandler
	Supervault *handler.SupervaultHandler
}

// Server is the headless HTTP + WebSocket API for the vault daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Vault state endpoints.
	mux.HandleFunc("GET /api/vaults", handlers.Vaults.ListVaults)
	mux.HandleFunc("GET /api/vaults/{id}", handlers.Vaults.GetVault)
	mux.HandleFunc("GET /api/vaults/{id}/holdings/{addr}", handlers.Vaults.GetHolding)

	// Share accounting endpoints.
	mux.HandleFunc("POST /api/vaults/{id}/deposit", handlers.Vaults.Deposit)
	mux.HandleFunc("POST /api/vaults/{id}/withdraw", handlers.Vaults.Withdraw)

	// Trade settlement and journal endpoints.
	mux.HandleFunc("POST /api/vaults/{id}/trades", handlers.Trades.Execute)
	mux.HandleFunc("GET /api/vaults/{id}/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/vaults/{id}/events", handlers.Trades.ListEvents)

	// Supervault endpoints.
	if handlers.Supervault != nil {
		mux.HandleFunc("GET /api/supervault", handlers.Supervault.GetState)
		mux.HandleFunc("POST /api/supervault/deposit", handlers.Supervault.Deposit)
		mux.HandleFunc("POST /api/supervault/withdraw", handlers.Supervault.Withdraw)
		mux.HandleFunc("PUT /api/supervault/active", handlers.Supervault.UpdateActiveVaults)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIToken is empty).
	h = middleware.Auth(cfg.APIToken)(h)

	// Apply per-client rate limiting when a limiter is available.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
