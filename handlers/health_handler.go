package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint. Overridden at build time with -ldflags.
var Version = "0.1.0"

// Readiness check values
const (
	CheckHealthy       = "healthy"
	CheckUnhealthy     = "unhealthy"
	CheckNotConfigured = "not_configured"
	CheckNoneAvailable = "none_available"
)

// ProviderInventory reports which backends are registered and usable
type ProviderInventory interface {
	Names() []string
	Count() int
	CountAvailable() int
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db          *sql.DB
	providers   ProviderInventory
	environment string
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no database is configured.
func NewHealthHandler(db *sql.DB, providers ProviderInventory, environment string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		providers:   providers,
		environment: environment,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only; always 200 while the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz
// Ready means the database answers (when configured) and at least one provider is available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.db == nil {
		checks["database"] = CheckNotConfigured
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = CheckUnhealthy
		ready = false
	} else {
		checks["database"] = CheckHealthy
	}

	switch {
	case h.providers == nil || h.providers.Count() == 0:
		checks["providers"] = CheckNotConfigured
		ready = false
	case h.providers.CountAvailable() == 0:
		checks["providers"] = CheckNoneAvailable
		ready = false
	default:
		checks["providers"] = CheckHealthy
	}

	response := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	status := http.StatusOK
	if !ready {
		response.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, status, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	available := 0
	if h.providers != nil {
		names = h.providers.Names()
		available = h.providers.CountAvailable()
	}

	_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":            Version,
		"environment":        h.environment,
		"providers":          names,
		"availableProviders": available,
	})
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
