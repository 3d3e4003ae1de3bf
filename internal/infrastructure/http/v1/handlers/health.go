// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]Pinger
	version string
}

// NewHealthHandler creates a health handler checking the named dependencies.
func NewHealthHandler(version string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, version: version}
}

// Live handles liveness probe (is the process alive?).
// GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"app":     "foodledger",
		"version": h.version,
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(c.Request.Context()); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}

	body := gin.H{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}
