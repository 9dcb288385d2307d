// Package api provides the HTTP surface for the action engine, including
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oceanworks/deckhand/internal/middleware"
)

// HealthChecker is implemented by dependencies that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers serves the liveness and readiness probes. Every checker is
// optional: a nil checker means the dependency is not configured and its
// check reports ok (in-memory stores, no Redis, attachments disabled).
type HealthHandlers struct {
	redisChecker   HealthChecker
	blobChecker    HealthChecker
	dbChecker      HealthChecker
	metricsEnabled bool
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	RedisChecker   HealthChecker
	BlobChecker    HealthChecker
	DBChecker      HealthChecker
	MetricsEnabled bool
}

func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		redisChecker:   config.RedisChecker,
		blobChecker:    config.BlobChecker,
		dbChecker:      config.DBChecker,
		metricsEnabled: config.MetricsEnabled,
	}
}

// HealthResponse is the JSON body for both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func writeHealthResponse(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Health handles GET /health, the liveness probe. Being able to run the
// handler is the whole check.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeHealthResponse(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready, the readiness probe. Configured dependencies are
// probed with a shared 5s budget; any failure yields 503 so the scheduler
// stops routing traffic here.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	probes := []struct {
		name    string
		checker HealthChecker
	}{
		{"database", h.dbChecker},
		{"redis", h.redisChecker},
		{"blob", h.blobChecker},
	}

	checks := make(map[string]string, len(probes)+1)
	healthy := true
	for _, p := range probes {
		if p.checker == nil {
			checks[p.name] = "ok"
			continue
		}
		if err := p.checker.HealthCheck(ctx); err != nil {
			checks[p.name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "check", p.name, "error", err)
		} else {
			checks[p.name] = "ok"
		}
	}

	// The Prometheus registry has no failure mode of its own.
	checks["metrics"] = "ok"

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	writeHealthResponse(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
