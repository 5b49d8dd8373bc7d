package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peelyhq/peelybot/service/config"
	"github.com/peelyhq/peelybot/service/db"
	"github.com/peelyhq/peelybot/service/engine"
	"github.com/peelyhq/peelybot/service/metrics"
	"github.com/peelyhq/peelybot/service/wallet"
)

// Server is the HTTP front of the trading service. Chat transports
// (Telegram, Discord, whatever) are separate processes that call this
// API; the server itself knows nothing about chat.
type Server struct {
	addr    string
	cfg     *config.Config
	store   *db.Store
	wallets *wallet.Service
	engine  *engine.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, wallets *wallet.Service, eng *engine.Engine, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		store:   store,
		wallets: wallets,
		engine:  eng,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive the full mux without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Wallet routes
	mux.Handle("GET /api/v1/users/{user_id}/wallet", instrument("get_wallet", handleGetWallet(s.wallets, s.logger)))
	mux.Handle("GET /api/v1/users/{user_id}/balances", instrument("get_balances", handleGetBalances(s.wallets, s.logger)))
	mux.Handle("GET /api/v1/users/{user_id}/export-key", instrument("export_key", handleExportKey(s.wallets, s.logger)))

	// Trading routes
	mux.Handle("POST /api/v1/users/{user_id}/withdraw", instrument("withdraw", handleWithdraw(s.wallets, s.engine, s.logger)))
	mux.Handle("POST /api/v1/users/{user_id}/buy", instrument("buy", handleBuy(s.wallets, s.engine, s.logger)))
	mux.Handle("POST /api/v1/users/{user_id}/sell", instrument("sell", handleSell(s.wallets, s.engine, s.logger)))

	// Referral routes
	mux.Handle("POST /api/v1/users/{user_id}/referrer", instrument("set_referrer", handleSetReferrer(s.store, s.wallets, s.logger)))
	mux.Handle("GET /api/v1/users/{user_id}/referral", instrument("get_referral", handleGetReferral(s.store, s.wallets, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
