// Package main is the entry point for the inventory ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodledger/internal/app"
	"foodledger/internal/config"
	"foodledger/internal/domain/auth"
	v1 "foodledger/internal/infrastructure/http/v1"
	"foodledger/internal/infrastructure/http/v1/handlers"
	"foodledger/internal/infrastructure/storage/postgres"
	"foodledger/pkg/logger"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.IsDevelopment(),
		Service:     "foodledger-api",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting foodledger api", "version", version, "env", cfg.Server.AppEnv)

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Postgres))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	// --- Ledger ---
	ledger, err := app.NewLedger(pool, cfg.Postgres, cfg.Ledger)
	if err != nil {
		log.Fatalw("failed to build ledger", "error", err)
	}
	ledger.Settings.Start(ctx)
	defer ledger.Settings.Stop()

	// --- Router ---
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWT.Secret, cfg.JWT.Issuer))

	router, err := v1.NewRouter(v1.RouterConfig{
		Logger:         log,
		JWTValidator:   jwtService,
		Inventory:      ledger.Service,
		HealthChecks:   map[string]handlers.Pinger{"database": pool},
		RateLimit:      cfg.Server.RateLimit,
		TrustedProxies: cfg.Server.TrustedProxies,
		Release:        !cfg.IsDevelopment(),
		Version:        version,
	})
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	pool.LogStats(shutdownCtx)
	log.Info("server stopped")
}
