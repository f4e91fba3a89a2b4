package admin

import (
	"context"
	"errors"
	"sync"

	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"github.com/sanazindustrial/PROFGINE-sub004/services"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"go.uber.org/zap"
)

// Status is the combined view served to the admin surface
type Status struct {
	Config         orchestrator.Config    `json:"config"`
	Providers      []providers.Descriptor `json:"providers"`
	CandidateOrder []string               `json:"candidateOrder"`
}

// Options configures the admin service
type Options struct {
	// Strict rejects provider names that are not registered
	Strict bool

	// ConfigRepo persists updates; nil keeps configuration in memory only
	ConfigRepo repositories.OrchestratorConfigRepository

	// DispatchLog serves recent dispatch outcomes; may be nil
	DispatchLog repositories.DispatchLogRepository
}

// Service reads and mutates the orchestrator configuration
type Service struct {
	// mu orders Configure and Save together so the stored row matches memory
	mu sync.Mutex

	orch        *orchestrator.Orchestrator
	strict      bool
	configRepo  repositories.OrchestratorConfigRepository
	dispatchLog repositories.DispatchLogRepository
	logger      *zap.Logger
}

// NewService creates a new admin service
func NewService(orch *orchestrator.Orchestrator, opts Options, logger *zap.Logger) *Service {
	return &Service{
		orch:        orch,
		strict:      opts.Strict,
		configRepo:  opts.ConfigRepo,
		dispatchLog: opts.DispatchLog,
		logger:      logger,
	}
}

// Snapshot returns the current configuration with live provider status
func (s *Service) Snapshot() Status {
	cfg := s.orch.Config()
	return Status{
		Config:         cfg,
		Providers:      s.orch.ProviderStatus(),
		CandidateOrder: s.orch.CandidateOrder(cfg),
	}
}

// Update merges p into the live configuration and persists the result.
// The in-memory update is applied even when persistence fails.
func (s *Service) Update(ctx context.Context, p orchestrator.PartialConfig, actor string) (orchestrator.Config, error) {
	if p.IsEmpty() {
		return orchestrator.Config{}, services.NewDomainError(services.ErrorTypeValidation, "no configuration fields provided", nil)
	}

	if s.strict {
		if err := s.orch.ValidateConfig(p); err != nil {
			return orchestrator.Config{}, services.FromDispatchError(err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.orch.Configure(p)

	s.logger.Info("orchestrator config changed",
		zap.String("actor", actor),
		zap.Strings("enabled", cfg.EnabledProviders),
		zap.Strings("preferred", cfg.PreferredProviders),
		zap.Bool("fallback_to_free", cfg.FallbackToFree))

	if s.configRepo == nil {
		return cfg, nil
	}

	snapshot := models.NewConfigSnapshot(cfg.EnabledProviders, cfg.PreferredProviders, cfg.FallbackToFree, actor)
	if err := s.configRepo.Save(ctx, snapshot); err != nil {
		s.logger.Error("failed to persist orchestrator config", zap.Error(err))
		return cfg, services.WrapInternal("configuration applied but not persisted", err)
	}

	return cfg, nil
}

// Replace sets every configuration field
func (s *Service) Replace(ctx context.Context, cfg orchestrator.Config, actor string) (orchestrator.Config, error) {
	return s.Update(ctx, cfg.Full(), actor)
}

// Restore applies the stored configuration, if any. It reports whether one was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.configRepo == nil {
		return false, nil
	}

	snapshot, err := s.configRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, services.WrapInternal("failed to load stored configuration", err)
	}

	s.mu.Lock()
	cfg := s.orch.Configure(orchestrator.Config{
		EnabledProviders:   snapshot.EnabledProviders,
		PreferredProviders: snapshot.PreferredProviders,
		FallbackToFree:     snapshot.FallbackToFree,
	}.Full())
	s.mu.Unlock()

	s.logger.Info("restored orchestrator config",
		zap.String("updated_by", snapshot.UpdatedBy),
		zap.Time("updated_at", snapshot.UpdatedAt),
		zap.Strings("enabled", cfg.EnabledProviders))
	return true, nil
}

// History returns recent configuration changes
func (s *Service) History(ctx context.Context, limit int) ([]*models.ConfigSnapshot, error) {
	if s.configRepo == nil {
		return nil, services.ErrPersistenceOff
	}

	history, err := s.configRepo.History(ctx, clampLimit(limit))
	if err != nil {
		return nil, services.WrapInternal("failed to load configuration history", err)
	}
	return history, nil
}

// RecentDispatches returns recent dispatch outcomes
func (s *Service) RecentDispatches(ctx context.Context, limit int) ([]*models.DispatchRecord, error) {
	if s.dispatchLog == nil {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "dispatch logging is not enabled", nil)
	}

	records, err := s.dispatchLog.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, services.WrapInternal("failed to load dispatch log", err)
	}
	return records, nil
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
