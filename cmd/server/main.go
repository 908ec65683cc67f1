package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/dentkeeper/internal/server/config"
	"github.com/iudanet/dentkeeper/internal/server/handlers"
	"github.com/iudanet/dentkeeper/internal/server/middleware"
	"github.com/iudanet/dentkeeper/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dentkeeper server starting",
		"version", Version,
		"listen", cfg.ListenAddr,
		"db", cfg.DatabasePath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: cfg.AccessTokenTTL,
	}

	authHandler := handlers.NewAuthHandler(logger, store, jwtConfig)
	dataHandler := handlers.NewDataHandler(logger, store)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	// Регистрация и логин под rate limit: перебор паролей должен
	// упираться в лимит, а не в bcrypt
	authLimit := middleware.RateLimitMiddleware(cfg.AuthRateLimit, cfg.AuthRateWindow, logger)
	requireAuth := middleware.AuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/auth/register", authLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", authLimit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("/api/v1/data/{collection}", requireAuth(http.HandlerFunc(dataHandler.HandleCollection)))
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(mux),
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("DentKeeper Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
