package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peelyhq/peelybot/service/config"
	"github.com/peelyhq/peelybot/service/db"
	"github.com/peelyhq/peelybot/service/engine"
	"github.com/peelyhq/peelybot/service/metadata"
	"github.com/peelyhq/peelybot/service/metrics"
	natssvc "github.com/peelyhq/peelybot/service/nats"
	"github.com/peelyhq/peelybot/service/pump"
	"github.com/peelyhq/peelybot/service/server"
	"github.com/peelyhq/peelybot/service/solana"
	"github.com/peelyhq/peelybot/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)

	// Prometheus metrics
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	chainClient := solana.NewClient(solanaRPC, cfg.MaxRetries, cfg.BaseRetryDelay, m, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Trade quoting service
	quotes := pump.NewClient(cfg.TradeAPIURL, logger,
		pump.WithSlippage(int(cfg.Slippage)),
		pump.WithPriorityFee(cfg.PriorityFee),
		pump.WithPool(cfg.TradePool),
	)

	// Token metadata service
	metadataClient := metadata.NewClient(cfg.MetadataRPCURL, logger)

	// NATS trade event publisher (optional)
	var publisher natssvc.Publisher
	if cfg.NATSURL != "" {
		p, err := natssvc.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Warn("NATS_URL not set, trade events will not be published")
	}

	platform, err := solanago.PublicKeyFromBase58(cfg.PlatformWalletAddress)
	if err != nil {
		logger.Error("invalid platform wallet address", "error", err)
		os.Exit(1)
	}

	wallets := wallet.NewService(store, chainClient, metadataClient, logger)
	eng := engine.NewEngine(chainClient, quotes, store, publisher, platform,
		cfg.MaxRetries, cfg.BaseRetryDelay, m, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, store, wallets, eng, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
