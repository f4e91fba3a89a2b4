package app

import (
	"context"
	"testing"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/config"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "localhost", Port: 8080, ShutdownTimeout: 5 * time.Second},
		Auth:        config.AuthConfig{AdminRole: "admin"},
		Providers: config.ProvidersConfig{
			Names:        config.DefaultProviderNames,
			Timeout:      5 * time.Second,
			MinKeyLength: 20,
		},
		Orchestrator: config.OrchestratorConfig{
			PreferredProviders: []string{},
			FallbackToFree:     true,
		},
		DispatchLog:   config.DispatchLogConfig{Enabled: true, BufferSize: 10, WorkerCount: 1},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json", ServiceName: "ai-gateway-test"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("in-memory without database or auth", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.Nil(t, deps.DispatchLog)
		assert.Nil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.AdminService)

		assert.Equal(t, []string{"openai", "groq", "gemini", "perplexity"}, deps.Registry.Names())
		assert.Equal(t, deps.Registry.Names(), deps.Orchestrator.Config().EnabledProviders)
		assert.True(t, deps.Orchestrator.Config().FallbackToFree)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("auth enabled with jwt secret", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "test-secret"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unknown provider without endpoint", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Names = []string{"groq", "mystery"}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize providers")
	})

	t.Run("database connection failure", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping database dial")
		}
		cfg := testConfig(t)
		cfg.Database = config.DatabaseConfig{
			Host:     "invalid-host-that-does-not-exist",
			Port:     5432,
			User:     "gateway",
			Database: "gateway",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Run("presets with overrides", func(t *testing.T) {
		t.Setenv("MY_GROQ_KEY", "gsk_0123456789abcdefghijklmnop")
		t.Setenv("GROQ_API_KEY", "")

		cfg := testConfig(t)
		cfg.Providers.Names = []string{"groq", "openai"}
		cfg.Providers.Overrides = map[string]config.ProviderOverride{
			"groq": {KeyEnv: "MY_GROQ_KEY", Model: "llama-3.1-70b-versatile"},
		}

		registry, err := BuildRegistry(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, []string{"groq", "openai"}, registry.Names())

		groq, err := registry.Get("groq")
		require.NoError(t, err)
		assert.True(t, groq.IsAvailable(), "credential read from the override variable")
		assert.Equal(t, "free", groq.Cost())
	})

	t.Run("custom backend", func(t *testing.T) {
		t.Setenv("LOCAL_API_KEY", "")

		cfg := testConfig(t)
		cfg.Providers.Names = []string{"local"}
		cfg.Providers.Overrides = map[string]config.ProviderOverride{
			"local": {BaseURL: "http://localhost:11434/v1", Model: "llama3"},
		}

		registry, err := BuildRegistry(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		local, err := registry.Get("local")
		require.NoError(t, err)
		assert.Equal(t, "paid", local.Cost())
		assert.False(t, local.IsAvailable())
	})

	t.Run("duplicate names", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Names = []string{"groq", "groq"}

		_, err := BuildRegistry(cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Names = nil

		_, err := BuildRegistry(cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestInitialConfig(t *testing.T) {
	registered := []string{"openai", "groq"}

	tests := []struct {
		name string
		orch config.OrchestratorConfig
		want orchestrator.Config
	}{
		{
			name: "unset enables everything",
			orch: config.OrchestratorConfig{PreferredProviders: []string{}, FallbackToFree: true},
			want: orchestrator.Config{EnabledProviders: registered, PreferredProviders: []string{}, FallbackToFree: true},
		},
		{
			name: "explicit lists",
			orch: config.OrchestratorConfig{EnabledProviders: []string{"groq"}, PreferredProviders: []string{"groq"}},
			want: orchestrator.Config{EnabledProviders: []string{"groq"}, PreferredProviders: []string{"groq"}, FallbackToFree: false},
		},
		{
			name: "explicitly empty enabled list",
			orch: config.OrchestratorConfig{EnabledProviders: []string{}, PreferredProviders: []string{}, FallbackToFree: true},
			want: orchestrator.Config{EnabledProviders: []string{}, PreferredProviders: []string{}, FallbackToFree: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Orchestrator = tt.orch
			assert.Equal(t, tt.want, InitialConfig(cfg, registered))
		})
	}
}
