package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sanazindustrial/PROFGINE-sub004/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an already opened pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the orchestrator tables if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Live routing configuration (single row)
		CREATE TABLE IF NOT EXISTS ai_orchestrator_config (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			enabled_providers TEXT[] NOT NULL DEFAULT '{}',
			preferred_providers TEXT[] NOT NULL DEFAULT '{}',
			fallback_to_free BOOLEAN NOT NULL DEFAULT true,
			updated_by VARCHAR(255) NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Append-only configuration history
		CREATE TABLE IF NOT EXISTS ai_config_changes (
			id UUID PRIMARY KEY,
			enabled_providers TEXT[] NOT NULL,
			preferred_providers TEXT[] NOT NULL,
			fallback_to_free BOOLEAN NOT NULL,
			updated_by VARCHAR(255) NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Dispatch outcomes
		CREATE TABLE IF NOT EXISTS ai_dispatch_log (
			id UUID PRIMARY KEY,
			dispatch_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(255),
			mode VARCHAR(20) NOT NULL,
			provider VARCHAR(100),
			outcome VARCHAR(50) NOT NULL,
			attempts JSONB NOT NULL DEFAULT '[]',
			skipped TEXT[] NOT NULL DEFAULT '{}',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_ai_config_changes_updated_at ON ai_config_changes(updated_at);
		CREATE INDEX IF NOT EXISTS idx_ai_dispatch_log_created_at ON ai_dispatch_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_ai_dispatch_log_provider ON ai_dispatch_log(provider);
		CREATE INDEX IF NOT EXISTS idx_ai_dispatch_log_outcome ON ai_dispatch_log(outcome);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
