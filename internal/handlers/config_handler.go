package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"fp-innova/internal/config"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConfigHandler serves the health check and the public app configuration
type ConfigHandler struct {
	config *config.Config
	db     HealthChecker
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, db HealthChecker) *ConfigHandler {
	return &ConfigHandler{config: cfg, db: db}
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Error     string            `json:"error,omitempty"`
}

// Health reports whether the database is reachable
// @Summary Health check
// @Tags Configuration
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *ConfigHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  map[string]string{"database": "connected"},
	}
	if err := h.db.HealthCheck(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.Services["database"] = "disconnected"
		if h.config.App.IsDevelopment() {
			resp.Error = err.Error()
		}
		respondWithJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetAppConfig returns the public app configuration for the frontend
// @Summary Get app configuration
// @Tags Configuration
// @Produce json
// @Success 200 {object} map[string]interface{} "App configuration"
// @Router /config/app [get]
func (h *ConfigHandler) GetAppConfig(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"name":          h.config.App.Name,
		"version":       h.config.App.Version,
		"environment":   h.config.App.Env,
		"maxUploadSize": h.config.Storage.MaxUploadSize,
	})
}
