package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// HealthCheckFunc pings the credential store. Nil means the store is in memory.
type HealthCheckFunc func(ctx context.Context) error

type HealthHandler struct {
	check  HealthCheckFunc
	driver string
	logger *slog.Logger
}

func NewHealthHandler(driver string, check HealthCheckFunc, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{check: check, driver: driver, logger: logger}
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Driver string `json:"driver"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.check(ctx); err != nil {
			h.logger.Warn("credential store health check failed", slog.String("error", err.Error()))
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Store: "down", Driver: h.driver})
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Store: "up", Driver: h.driver})
}
