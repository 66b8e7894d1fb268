package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/server/middleware"
	"github.com/alanyoungcy/predictledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// Tokens maps API tokens to ledger principals. Empty disables auth.
	Tokens map[string]string
	// RateLimit is requests per RateWindow per caller; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Positions *handler.PositionHandler
	Accounts  *handler.AccountHandler
	Events    *handler.EventsHandler
	History   *handler.HistoryHandler
}

// Server is the HTTP + WebSocket API in front of the ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// NewHandler builds the routed, middleware-wrapped handler. Nil handler
// groups are not registered.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if m := handlers.Markets; m != nil {
		mux.HandleFunc("POST /api/markets", m.CreateMarket)
		mux.HandleFunc("GET /api/markets/{id}", m.GetMarket)
		mux.HandleFunc("POST /api/markets/{id}/cancel", m.CancelMarket)
		mux.HandleFunc("POST /api/markets/{id}/resolve", m.Resolve)
		mux.HandleFunc("GET /api/markets/{id}/stats", m.Stats)
	}

	if p := handlers.Positions; p != nil {
		mux.HandleFunc("POST /api/markets/{id}/deposits", p.Deposit)
		mux.HandleFunc("POST /api/markets/{id}/withdrawals", p.Withdraw)
		mux.HandleFunc("POST /api/markets/{id}/positions", p.UpdatePosition)
		mux.HandleFunc("GET /api/markets/{id}/positions/{user}", p.GetPosition)
		mux.HandleFunc("GET /api/markets/{id}/positions/{user}/payout", p.Payout)
		mux.HandleFunc("POST /api/markets/{id}/settlements", p.Settle)
	}

	if a := handlers.Accounts; a != nil {
		mux.HandleFunc("POST /api/accounts/{holder}/mint", a.Mint)
		mux.HandleFunc("GET /api/accounts/{holder}/balance", a.Balance)
	}
	if handlers.History != nil {
		mux.HandleFunc("GET /api/markets/{id}/history", handlers.History.MarketHistory)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: logging, CORS, auth, rate limit.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	}
	h = middleware.Auth(cfg.Tokens, "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
