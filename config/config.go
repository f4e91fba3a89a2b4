package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Orchestrator  OrchestratorConfig
	DispatchLog   DispatchLogConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
// The database is optional; without it the orchestrator config lives in memory only.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	AdminRole string
}

// ProvidersConfig holds settings shared by every backend plus per-backend overrides
type ProvidersConfig struct {
	// Names lists the backends to register, in registration order
	Names        []string
	Timeout      time.Duration
	MinKeyLength int
	Overrides    map[string]ProviderOverride
}

// ProviderOverride replaces preset values for one backend. Zero values keep the preset.
type ProviderOverride struct {
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	KeyEnv      string        `koanf:"key_env"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// OrchestratorConfig holds the initial routing configuration
type OrchestratorConfig struct {
	// EnabledProviders is nil when unset, meaning every registered backend
	EnabledProviders   []string
	PreferredProviders []string
	FallbackToFree     bool
	Strict             bool
	ConfigFile         string
}

// DispatchLogConfig controls the asynchronous dispatch log writer
type DispatchLogConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	TracingEnabled bool
	ServiceName    string
}

// DefaultProviderNames is the registration order used when AI_PROVIDERS is unset
var DefaultProviderNames = []string{"openai", "groq", "gemini", "perplexity"}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
			AdminRole: getEnv("ADMIN_ROLE", "admin"),
		},
		Providers: loadProvidersConfig(),
		Orchestrator: OrchestratorConfig{
			EnabledProviders:   getEnvAsList("AI_ENABLED_PROVIDERS", nil),
			PreferredProviders: getEnvAsList("AI_PREFERRED_PROVIDERS", []string{}),
			FallbackToFree:     getEnvAsBool("AI_FALLBACK_TO_FREE", true),
			Strict:             getEnvAsBool("AI_STRICT_CONFIG", false),
			ConfigFile:         getEnv("AI_CONFIG_FILE", ""),
		},
		DispatchLog: DispatchLogConfig{
			Enabled:     getEnvAsBool("DISPATCH_LOG_ENABLED", true),
			BufferSize:  getEnvAsInt("DISPATCH_LOG_BUFFER", 1000),
			WorkerCount: getEnvAsInt("DISPATCH_LOG_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
			ServiceName:    getEnv("SERVICE_NAME", "ai-gateway"),
		},
	}

	if cfg.Orchestrator.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.Orchestrator.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays a YAML file onto the orchestrator and provider settings.
// Keys present in the file win over environment values.
//
//	orchestrator:
//	  enabled_providers: [groq, openai]
//	  preferred_providers: [groq]
//	  fallback_to_free: true
//	providers:
//	  groq:
//	    model: llama-3.1-70b-versatile
//	    timeout: 20s
func (c *Config) LoadFile(path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	if k.Exists("orchestrator.enabled_providers") {
		c.Orchestrator.EnabledProviders = k.Strings("orchestrator.enabled_providers")
	}
	if k.Exists("orchestrator.preferred_providers") {
		c.Orchestrator.PreferredProviders = k.Strings("orchestrator.preferred_providers")
	}
	if k.Exists("orchestrator.fallback_to_free") {
		c.Orchestrator.FallbackToFree = k.Bool("orchestrator.fallback_to_free")
	}
	if k.Exists("orchestrator.strict") {
		c.Orchestrator.Strict = k.Bool("orchestrator.strict")
	}

	if k.Exists("providers") {
		var overrides map[string]ProviderOverride
		if err := k.Unmarshal("providers", &overrides); err != nil {
			return fmt.Errorf("parse providers in %s: %w", path, err)
		}
		if c.Providers.Overrides == nil {
			c.Providers.Overrides = make(map[string]ProviderOverride)
		}
		for name, o := range overrides {
			c.Providers.Overrides[name] = mergeOverride(c.Providers.Overrides[name], o)
		}
	}

	return nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return errors.New("database user is required")
		}
		if c.Database.Database == "" {
			return errors.New("database name is required")
		}
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}

	if len(c.Providers.Names) == 0 {
		return errors.New("at least one AI provider must be registered")
	}
	seen := make(map[string]bool, len(c.Providers.Names))
	for _, name := range c.Providers.Names {
		if seen[name] {
			return fmt.Errorf("provider %s listed twice", name)
		}
		seen[name] = true
	}
	if c.Providers.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}

	if c.Orchestrator.Strict {
		for _, name := range append(append([]string{}, c.Orchestrator.EnabledProviders...), c.Orchestrator.PreferredProviders...) {
			if !seen[name] {
				return fmt.Errorf("unknown provider %s in orchestrator config", name)
			}
		}
	}

	if c.DispatchLog.BufferSize <= 0 || c.DispatchLog.WorkerCount <= 0 {
		return errors.New("dispatch log buffer and workers must be positive")
	}

	if c.Observability.LogLevel == "" {
		return errors.New("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuthEnabled reports whether bearer tokens are checked
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// Enabled reports whether a database has been configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Override returns the override for a backend, or the zero value
func (c *ProvidersConfig) Override(name string) ProviderOverride {
	return c.Overrides[name]
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Leaves the config disabled when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}

	cfg.Host = getEnv("DB_HOST", "")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// loadProvidersConfig reads AI_PROVIDERS plus <NAME>_BASE_URL, <NAME>_MODEL,
// <NAME>_KEY_ENV, <NAME>_TEMPERATURE, <NAME>_MAX_TOKENS and <NAME>_TIMEOUT per backend.
func loadProvidersConfig() ProvidersConfig {
	cfg := ProvidersConfig{
		Names:        getEnvAsList("AI_PROVIDERS", DefaultProviderNames),
		Timeout:      getEnvAsDuration("AI_PROVIDER_TIMEOUT", 30*time.Second),
		MinKeyLength: getEnvAsInt("AI_MIN_KEY_LENGTH", 20),
		Overrides:    make(map[string]ProviderOverride),
	}

	for _, name := range cfg.Names {
		prefix := strings.ToUpper(name) + "_"
		o := ProviderOverride{
			BaseURL:     getEnv(prefix+"BASE_URL", ""),
			Model:       getEnv(prefix+"MODEL", ""),
			KeyEnv:      getEnv(prefix+"KEY_ENV", ""),
			Temperature: getEnvAsFloat(prefix+"TEMPERATURE", 0),
			MaxTokens:   getEnvAsInt(prefix+"MAX_TOKENS", 0),
			Timeout:     getEnvAsDuration(prefix+"TIMEOUT", 0),
		}
		if o != (ProviderOverride{}) {
			cfg.Overrides[name] = o
		}
	}

	return cfg
}

func mergeOverride(base, o ProviderOverride) ProviderOverride {
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		base.Model = o.Model
	}
	if o.KeyEnv != "" {
		base.KeyEnv = o.KeyEnv
	}
	if o.Temperature != 0 {
		base.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		base.MaxTokens = o.MaxTokens
	}
	if o.Timeout != 0 {
		base.Timeout = o.Timeout
	}
	return base
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks.
// An explicitly empty value (KEY=) is still "unset" and yields the default.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	out := []string{}
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
