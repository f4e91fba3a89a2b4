package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/config"
	"github.com/sanazindustrial/PROFGINE-sub004/internal/observability"
	"github.com/sanazindustrial/PROFGINE-sub004/internal/telemetry"
	"github.com/sanazindustrial/PROFGINE-sub004/middleware"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories/postgres"
	"github.com/sanazindustrial/PROFGINE-sub004/services/admin"
	"github.com/sanazindustrial/PROFGINE-sub004/services/audit"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers/openai"
	"go.uber.org/zap"
)

// dispatchLogStopTimeout bounds how long Close waits for queued dispatch records
const dispatchLogStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB

	// Repository Factory; nil when no database is configured
	RepoFactory *postgres.RepositoryFactory

	// AI routing
	Registry     *providers.Registry
	Orchestrator *orchestrator.Orchestrator
	AdminService *admin.Service

	// Recorders
	Metrics     *observability.DispatchMetrics
	DispatchLog *audit.DispatchLogService

	// Auth; nil when no JWT secret is configured
	AuthMiddleware *middleware.AuthMiddleware

	TracerShutdown telemetry.ShutdownFunc
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:         cfg,
		Logger:         logger,
		TracerShutdown: telemetry.Noop,
	}

	if cfg.Observability.TracingEnabled {
		shutdown, err := telemetry.InitTracer(cfg.Observability.ServiceName, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		deps.TracerShutdown = shutdown
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		_ = deps.TracerShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry, err := BuildRegistry(cfg, logger)
	if err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	deps.Registry = registry

	if err := deps.initOrchestrator(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", registry.Names()),
		zap.Int("available", registry.CountAvailable()),
		zap.Bool("database", deps.DB != nil),
		zap.Bool("auth", deps.AuthMiddleware != nil))
	return deps, nil
}

// initDatabase connects to PostgreSQL when configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Warn("no database configured, orchestrator config is kept in memory only")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.DB()

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// initOrchestrator builds the orchestrator, its recorders and the admin service,
// then restores any persisted configuration
func (d *Dependencies) initOrchestrator(ctx context.Context, cfg *config.Config) error {
	var repos *repositories.Repositories
	if d.RepoFactory != nil {
		repos = d.RepoFactory.NewRepositories()
	}

	d.Metrics = observability.NewDispatchMetrics(d.Logger)
	opts := []orchestrator.Option{orchestrator.WithRecorder(d.Metrics)}

	if repos != nil && cfg.DispatchLog.Enabled {
		d.DispatchLog = audit.NewDispatchLogService(repos.DispatchLog, d.Logger, audit.Config{
			BufferSize:  cfg.DispatchLog.BufferSize,
			WorkerCount: cfg.DispatchLog.WorkerCount,
		})
		if err := d.DispatchLog.Start(); err != nil {
			return fmt.Errorf("failed to start dispatch log: %w", err)
		}
		opts = append(opts, orchestrator.WithRecorder(d.DispatchLog))
	}

	d.Orchestrator = orchestrator.New(d.Registry, InitialConfig(cfg, d.Registry.Names()), d.Logger, opts...)

	adminOpts := admin.Options{Strict: cfg.Orchestrator.Strict}
	if repos != nil {
		adminOpts.ConfigRepo = repos.OrchestratorConfig
		adminOpts.DispatchLog = repos.DispatchLog
	}
	d.AdminService = admin.NewService(d.Orchestrator, adminOpts, d.Logger)

	restored, err := d.AdminService.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore orchestrator config: %w", err)
	}
	if !restored {
		d.Logger.Info("using orchestrator config from environment",
			zap.Strings("enabled", d.Orchestrator.Config().EnabledProviders),
			zap.Strings("preferred", d.Orchestrator.Config().PreferredProviders),
			zap.Bool("fallback_to_free", d.Orchestrator.Config().FallbackToFree))
	}
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.AuthEnabled() {
		d.Logger.Warn("JWT_SECRET not set, API routes are unauthenticated")
		return
	}
	validator := middleware.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
}

// BuildRegistry registers one adapter per configured backend name. Built-in
// presets supply defaults; per-backend overrides replace them field by field.
// A name without a preset needs both a base URL and a model override.
func BuildRegistry(cfg *config.Config, logger *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for _, name := range cfg.Providers.Names {
		pc, err := providerConfig(name, cfg.Providers)
		if err != nil {
			return nil, err
		}
		adapter := openai.NewAdapter(pc, openai.WithLogger(logger))
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		logger.Info("provider registered",
			zap.String("provider", name),
			zap.String("model", pc.Model),
			zap.String("cost", pc.Cost),
			zap.Bool("available", adapter.IsAvailable()))
	}

	if registry.Count() == 0 {
		return nil, errors.New("no providers configured")
	}
	return registry, nil
}

func providerConfig(name string, pcfg config.ProvidersConfig) (providers.ProviderConfig, error) {
	o := pcfg.Override(name)

	preset, ok := openai.PresetByName(name)
	if !ok {
		if o.BaseURL == "" || o.Model == "" {
			return providers.ProviderConfig{}, fmt.Errorf("provider %q has no preset; set %s_BASE_URL and %s_MODEL",
				name, strings.ToUpper(name), strings.ToUpper(name))
		}
		preset = openai.Preset{
			Name:   name,
			Cost:   providers.CostPaid,
			EnvVar: strings.ToUpper(name) + "_API_KEY",
		}
	}

	pc := preset.ProviderConfig()
	pc.MinKeyLength = pcfg.MinKeyLength
	pc.Timeout = pcfg.Timeout

	if o.BaseURL != "" {
		pc.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		pc.Model = o.Model
	}
	if o.KeyEnv != "" {
		pc.Credential = openai.EnvCredential(o.KeyEnv)
	}
	if o.Temperature != 0 {
		pc.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		pc.MaxTokens = o.MaxTokens
	}
	if o.Timeout != 0 {
		pc.Timeout = o.Timeout
	}
	return pc, nil
}

// InitialConfig derives the startup orchestrator configuration. An unset
// enabled list enables every registered backend.
func InitialConfig(cfg *config.Config, registered []string) orchestrator.Config {
	initial := orchestrator.DefaultConfig(registered)
	if cfg.Orchestrator.EnabledProviders != nil {
		initial.EnabledProviders = cfg.Orchestrator.EnabledProviders
	}
	if cfg.Orchestrator.PreferredProviders != nil {
		initial.PreferredProviders = cfg.Orchestrator.PreferredProviders
	}
	initial.FallbackToFree = cfg.Orchestrator.FallbackToFree
	return initial.Clone()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.DispatchLog != nil {
		if err := d.DispatchLog.Stop(dispatchLogStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop dispatch log: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.TracerShutdown != nil {
		if err := d.TracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
