package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/vetcheck/internal/healthz"
)

// HealthChecker runs one readiness check.
type HealthChecker interface {
	Check(ctx context.Context) healthz.Report
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health returns the health status of the API and its dependencies.
// An unreachable store is 503. Unreachable image providers only degrade.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	rep := h.checker.Check(r.Context())

	status := map[string]any{
		"status": "healthy",
		"checks": rep.Checks(),
	}
	statusCode := http.StatusOK
	if rep.Degraded() {
		status["status"] = "degraded"
	}
	if !rep.Serving() {
		slog.Error("Health check failed", "error", rep.Database)
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
