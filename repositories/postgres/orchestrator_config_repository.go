package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"go.uber.org/zap"
)

// OrchestratorConfigRepository implements the repositories.OrchestratorConfigRepository interface
type OrchestratorConfigRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewOrchestratorConfigRepository creates a new orchestrator config repository
func NewOrchestratorConfigRepository(db *DB, logger *zap.Logger) repositories.OrchestratorConfigRepository {
	return &OrchestratorConfigRepository{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Get returns the live snapshot
func (r *OrchestratorConfigRepository) Get(ctx context.Context) (*models.ConfigSnapshot, error) {
	query := `
		SELECT enabled_providers, preferred_providers, fallback_to_free, updated_by, updated_at
		FROM ai_orchestrator_config
		WHERE id = 1
	`

	snapshot := &models.ConfigSnapshot{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query).Scan(
		pq.Array(&snapshot.EnabledProviders),
		pq.Array(&snapshot.PreferredProviders),
		&snapshot.FallbackToFree,
		&snapshot.UpdatedBy,
		&snapshot.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get orchestrator config: %w", err)
	}

	return snapshot, nil
}

// Save upserts the live snapshot and records it in the history table atomically
func (r *OrchestratorConfigRepository) Save(ctx context.Context, snapshot *models.ConfigSnapshot) error {
	upsert := `
		INSERT INTO ai_orchestrator_config (id, enabled_providers, preferred_providers, fallback_to_free, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			enabled_providers = EXCLUDED.enabled_providers,
			preferred_providers = EXCLUDED.preferred_providers,
			fallback_to_free = EXCLUDED.fallback_to_free,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`
	history := `
		INSERT INTO ai_config_changes (id, enabled_providers, preferred_providers, fallback_to_free, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	err := r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		if _, err := executor.ExecContext(ctx, upsert,
			pq.Array(snapshot.EnabledProviders),
			pq.Array(snapshot.PreferredProviders),
			snapshot.FallbackToFree,
			snapshot.UpdatedBy,
			snapshot.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to save orchestrator config: %w", err)
		}

		if _, err := executor.ExecContext(ctx, history,
			snapshot.ID,
			pq.Array(snapshot.EnabledProviders),
			pq.Array(snapshot.PreferredProviders),
			snapshot.FallbackToFree,
			snapshot.UpdatedBy,
			snapshot.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to record config change: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("orchestrator config saved",
		zap.String("id", snapshot.ID.String()),
		zap.String("updated_by", snapshot.UpdatedBy))
	return nil
}

// History returns the most recent configuration changes
func (r *OrchestratorConfigRepository) History(ctx context.Context, limit int) ([]*models.ConfigSnapshot, error) {
	query := `
		SELECT id, enabled_providers, preferred_providers, fallback_to_free, updated_by, updated_at
		FROM ai_config_changes
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query config history: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.ConfigSnapshot
	for rows.Next() {
		snapshot := &models.ConfigSnapshot{}
		if err := rows.Scan(
			&snapshot.ID,
			pq.Array(&snapshot.EnabledProviders),
			pq.Array(&snapshot.PreferredProviders),
			&snapshot.FallbackToFree,
			&snapshot.UpdatedBy,
			&snapshot.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan config change: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating config history: %w", err)
	}

	return snapshots, nil
}
