// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/heirloom/internal/api"
	"github.com/starford/heirloom/internal/audit"
	"github.com/starford/heirloom/internal/claim"
	"github.com/starford/heirloom/internal/ledger"
	"github.com/starford/heirloom/internal/mcpserver"
	"github.com/starford/heirloom/internal/ownerlock"
	"github.com/starford/heirloom/internal/planservice"
	"github.com/starford/heirloom/internal/scheduler"
	"github.com/starford/heirloom/internal/sse"
	"github.com/starford/heirloom/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("ledger_configured", cfg.Ledger.ToLedger().Complete()),
		slog.Duration("sweep_interval", cfg.Scheduler.SweepInterval()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite plan store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Ledger gateway. An incomplete ledger section leaves it disabled.
	gateway, err := ledger.NewEVMGateway(cfg.Ledger.ToLedger(), logger)
	if err != nil {
		return fmt.Errorf("init ledger gateway: %w", err)
	}
	defer gateway.Close()
	if !gateway.Enabled() {
		logger.Warn("ledger gateway not configured; claims are disabled")
	}

	// SSE broker receives every committed activity.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	locks := ownerlock.New()
	notifier := audit.Multi{broker}

	plans := planservice.NewService(db, locks,
		planservice.WithNotifier(notifier),
		planservice.WithLogger(logger))
	claimer := claim.NewClaimer(db, gateway, locks, notifier, time.Now, logger)
	saga := claim.NewSaga(claimer)
	sweeper := scheduler.New(db, claimer, cfg.Scheduler.SweepInterval(), scheduler.WithLogger(logger))

	apiRouter := api.NewRouter(plans, saga, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(db, gateway))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Claim sweep.
	g.Go(func() error {
		return sweeper.Run(gCtx)
	})

	// Reload the relayer key when its file changes.
	if path := cfg.Ledger.SignerKeyFile; path != "" && gateway.Enabled() {
		g.Go(func() error {
			if err := ledger.WatchKeyFile(gCtx, path, logger, gateway.Reset); err != nil {
				logger.Warn("key file watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the sweep and key watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the plan tools over stdio for LLM clients. Logs default to
// stderr; stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	}
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	plans := planservice.NewService(db, ownerlock.New(), planservice.WithLogger(logger))
	logger.Info("MCP server starting on stdio", slog.String("sqlite_path", cfg.SQLite.Path))
	return mcpserver.New(plans).ServeStdio()
}

var errShutdown = errors.New("shutdown requested")

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

type pinger interface {
	Ping() error
}

type enabler interface {
	Enabled() bool
}

// readyHandler reports store reachability and whether claims can be submitted.
// A disabled ledger is an expected deployment state and does not fail readiness.
func readyHandler(db pinger, gw enabler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, code := "ok", http.StatusOK
		if err := db.Ping(); err != nil {
			status, code = "store unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         status,
			"ledger_enabled": gw.Enabled(),
		})
	}
}
