package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/api/response"
)

const healthCheckTimeout = 3 * time.Second

// Pinger is any dependency with a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecks names the dependencies reported by the health endpoint.
// A nil Pinger is reported as "disabled" and never degrades the service.
type HealthChecks map[string]Pinger

// NewHealthHandler returns an http.HandlerFunc for GET /api/health.
func NewHealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		services := make(map[string]string, len(checks))
		degraded := false
		for name, p := range checks {
			if p == nil {
				services[name] = "disabled"
				continue
			}
			if err := p.Ping(ctx); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				services[name] = "degraded"
				degraded = true
				continue
			}
			services[name] = "ok"
		}

		status, code := "ok", http.StatusOK
		if degraded {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		response.Status(w, code, map[string]any{
			"status":   status,
			"services": services,
		})
	}
}
