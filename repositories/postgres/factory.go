package postgres

import (
	"context"

	"github.com/sanazindustrial/PROFGINE-sub004/config"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the configured database
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// InitSchema creates the orchestrator tables
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		OrchestratorConfig: NewOrchestratorConfigRepository(f.db, f.logger),
		DispatchLog:        NewDispatchLogRepository(f.db, f.logger),
	}
}

// DB returns the underlying pool
func (f *RepositoryFactory) DB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
