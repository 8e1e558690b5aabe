package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/escape-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultHealthTimeout = 5 * time.Second

// Check is an optional dependency probe reported by the health endpoint.
type Check func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	timeout time.Duration
	checks  map[string]Check
}

// NewHealthHandler creates a health handler. Extra checks are reported
// under their names; any failure degrades the status.
func NewHealthHandler(repo store.Repository, checks map[string]Check) *HealthHandler {
	return &HealthHandler{repo: repo, timeout: defaultHealthTimeout, checks: checks}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	probe := func(name string, fn Check) {
		if err := fn(ctx); err != nil {
			slog.Error("Health check failed", "check", name, "error", err)
			checks[name] = "unreachable"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}

	probe("database", h.repo.Ping)
	for name, fn := range h.checks {
		probe(name, fn)
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
