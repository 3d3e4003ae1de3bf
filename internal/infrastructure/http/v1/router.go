// Package v1 provides HTTP API version 1.
package v1

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"foodledger/internal/infrastructure/http/v1/handlers"
	"foodledger/internal/infrastructure/http/v1/middleware"
	"foodledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Inventory is the ledger service
	Inventory handlers.InventoryService

	// HealthChecks are pinged by the readiness probe
	HealthChecks map[string]handlers.Pinger

	// RateLimit in limiter format ("100-M"); empty disables limiting
	RateLimit string

	// TrustedProxies for client IP resolution; nil trusts none
	TrustedProxies []string

	// Release switches gin into release mode
	Release bool

	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware. ErrorHandler wraps Recovery so a recovered panic is
	// still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks)
	router.GET("/health", health.Live)
	router.GET("/ready", health.Ready)

	api := router.Group("/api/v1")
	if cfg.RateLimit != "" {
		limit, err := middleware.RateLimit(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		api.Use(limit)
	}
	api.Use(middleware.Auth(cfg.JWTValidator))

	inv := handlers.NewInventoryHandler(handlers.NewBaseHandler(), cfg.Inventory)
	inv.RegisterRoutes(api.Group("/inventory"))

	return router, nil
}
