package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"

	"github.com/brojonat/lumenboard/service/config"
	"github.com/brojonat/lumenboard/service/events"
	"github.com/brojonat/lumenboard/service/horizon"
	"github.com/brojonat/lumenboard/service/metrics"
	"github.com/brojonat/lumenboard/service/payment"
	"github.com/brojonat/lumenboard/service/server"
	"github.com/brojonat/lumenboard/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"horizon_url", cfg.HorizonURL,
	)

	// Metrics registered on the default registry so promhttp serves them
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Horizon client
	horizonAPI := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
	ledger := horizon.NewClient(horizonAPI, cfg.FriendbotURL, cfg.HorizonURL, m, logger)
	logger.Info("initialized horizon client", "url", cfg.HorizonURL)

	// Initialize wallet agent session
	agent := wallet.NewAgentClient(cfg.WalletAgentURL, nil, m, logger)
	session := wallet.NewSession(agent, logger)
	logger.Info("initialized wallet agent client", "url", cfg.WalletAgentURL)

	// Initialize NATS event publisher
	publisher, err := events.NewPublisher(cfg.NATSURL, m, logger)
	if err != nil {
		logger.Error("failed to initialize event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize SSE publisher (separate NATS connection for consumers)
	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to initialize SSE publisher", "error", err)
		os.Exit(1)
	}

	// Initialize payment sender
	sender := payment.NewSender(ledger, cfg.NetworkPassphrase, cfg.TxTimeout, publisher, m, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, session, ledger, sender, publisher, ssePublisher, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"wallet_agent_url", cfg.WalletAgentURL,
	)

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

		// Graceful shutdown with timeout
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
