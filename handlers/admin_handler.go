package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sanazindustrial/PROFGINE-sub004/internal/observability"
	"github.com/sanazindustrial/PROFGINE-sub004/middleware"
	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/services"
	"github.com/sanazindustrial/PROFGINE-sub004/services/admin"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/sanazindustrial/PROFGINE-sub004/utils"
	"go.uber.org/zap"
)

// AdminService reads and changes the orchestrator configuration
type AdminService interface {
	Snapshot() admin.Status
	Update(ctx context.Context, p orchestrator.PartialConfig, actor string) (orchestrator.Config, error)
	Replace(ctx context.Context, cfg orchestrator.Config, actor string) (orchestrator.Config, error)
	History(ctx context.Context, limit int) ([]*models.ConfigSnapshot, error)
	RecentDispatches(ctx context.Context, limit int) ([]*models.DispatchRecord, error)
}

// StatsSource reports collected dispatch metrics
type StatsSource interface {
	Snapshot() observability.DispatchStats
}

// ReplaceConfigRequest is the body of PUT /api/v1/admin/ai/config.
// Every field is required so a replacement cannot silently drop one.
type ReplaceConfigRequest struct {
	EnabledProviders   *[]string `json:"enabledProviders" validate:"required"`
	PreferredProviders *[]string `json:"preferredProviders" validate:"required"`
	FallbackToFree     *bool     `json:"fallbackToFree" validate:"required"`
}

// AdminHandler serves the status and configuration surface
type AdminHandler struct {
	service AdminService
	stats   StatsSource
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. stats may be nil.
func NewAdminHandler(service AdminService, stats StatsSource, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		stats:   stats,
		logger:  logger,
	}
}

// HandleListProviders handles GET /api/v1/providers
func (h *AdminHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	status := h.service.Snapshot()
	h.writeOK(w, map[string]interface{}{
		"providers":      status.Providers,
		"candidateOrder": status.CandidateOrder,
	})
}

// HandleGetConfig handles GET /api/v1/admin/ai/config
func (h *AdminHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeOK(w, h.service.Snapshot())
}

// HandlePatchConfig handles PATCH /api/v1/admin/ai/config
func (h *AdminHandler) HandlePatchConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orchestrator.PartialConfig
	if err := utils.ReadJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if _, err := h.service.Update(ctx, req, middleware.ActorFromContext(ctx)); err != nil {
		h.logger.Warn("config update failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeOK(w, h.service.Snapshot())
}

// HandlePutConfig handles PUT /api/v1/admin/ai/config
func (h *AdminHandler) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReplaceConfigRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	cfg := orchestrator.Config{
		EnabledProviders:   *req.EnabledProviders,
		PreferredProviders: *req.PreferredProviders,
		FallbackToFree:     *req.FallbackToFree,
	}
	if _, err := h.service.Replace(ctx, cfg, middleware.ActorFromContext(ctx)); err != nil {
		h.logger.Warn("config replace failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeOK(w, h.service.Snapshot())
}

// HandleConfigHistory handles GET /api/v1/admin/ai/config/history
func (h *AdminHandler) HandleConfigHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	history, err := h.service.History(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, history)
}

// HandleRecentDispatches handles GET /api/v1/admin/ai/dispatches
func (h *AdminHandler) HandleRecentDispatches(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	records, err := h.service.RecentDispatches(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, records)
}

// HandleStats handles GET /api/v1/admin/ai/stats
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeNotFound, "dispatch metrics are not enabled", nil), h.logger)
		return
	}
	h.writeOK(w, h.stats.Snapshot())
}

func (h *AdminHandler) writeOK(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteOK(w, data); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// parseLimit reads ?limit=; zero means the service default
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"limit": "limit must be a non-negative integer"},
		}
	}
	return limit, nil
}
