package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/lumenboard/service/config"
	"github.com/brojonat/lumenboard/service/metrics"
)

// Server represents the HTTP server for the wallet dashboard service.
type Server struct {
	addr         string
	cfg          *config.Config
	session      WalletSession
	ledger       Ledger
	sender       PaymentSender
	publisher    BalancePublisher
	ssePublisher *SSEPublisher
	renderer     *TemplateRenderer
	balances     *balanceCache
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The renderer is optional - if nil, the dashboard page won't be available.
// The publisher and metrics may be nil.
func New(addr string, cfg *config.Config, session WalletSession, ledger Ledger, sender PaymentSender, publisher BalancePublisher, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		session:      session,
		ledger:       ledger,
		sender:       sender,
		publisher:    publisher,
		ssePublisher: ssePublisher,
		balances:     newBalanceCache(),
		metrics:      m,
		logger:       logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Wallet session routes
	mux.Handle("GET /api/v1/wallet/status", s.instrument("wallet_status", handleWalletStatus(s.session, s.logger)))
	mux.Handle("POST /api/v1/wallet/connect", s.instrument("wallet_connect", handleWalletConnect(s.session, s.logger)))
	mux.Handle("POST /api/v1/wallet/disconnect", s.instrument("wallet_disconnect", handleWalletDisconnect(s.session, s.logger)))

	// Ledger routes
	mux.Handle("GET /api/v1/balance/{address}", s.instrument("balance", handleGetBalance(s.ledger, s.publisher, s.balances, s.metrics, s.logger)))
	mux.Handle("POST /api/v1/fund", s.instrument("fund", handleFundAccount(s.ledger, s.logger)))
	mux.Handle("POST /api/v1/payments", s.instrument("payments", handleSendPayment(s.sender, s.session, s.cfg, s.logger)))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/payments/{address}", handleStreamPayments(s.ssePublisher, s.metrics, s.logger))
		mux.Handle("GET /api/v1/stream/payments", handleStreamPayments(s.ssePublisher, s.metrics, s.logger))
		mux.Handle("GET /api/v1/stream/balances/{address}", handleStreamBalances(s.ssePublisher, s.balances, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Dashboard page (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /", handleDashboardPage(s.renderer, s.cfg))
		s.logger.Info("dashboard page endpoint enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// instrument wraps a handler with HTTP metrics when a collector is configured.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(next)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	// Then shutdown HTTP server
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

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
