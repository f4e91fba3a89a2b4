package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"go.uber.org/zap"
)

// DispatchLogRepository implements the repositories.DispatchLogRepository interface
type DispatchLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDispatchLogRepository creates a new dispatch log repository
func NewDispatchLogRepository(db *DB, logger *zap.Logger) repositories.DispatchLogRepository {
	return &DispatchLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new dispatch record
func (r *DispatchLogRepository) Insert(ctx context.Context, record *models.DispatchRecord) error {
	query := `
		INSERT INTO ai_dispatch_log (id, dispatch_id, request_id, mode, provider, outcome, attempts, skipped, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		record.ID,
		record.DispatchID,
		record.RequestID,
		record.Mode,
		record.Provider,
		record.Outcome,
		[]byte(record.Attempts),
		pq.Array(record.Skipped),
		record.LatencyMs,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert dispatch record: %w", err)
	}

	return nil
}

// Recent returns the most recent dispatch records
func (r *DispatchLogRepository) Recent(ctx context.Context, limit int) ([]*models.DispatchRecord, error) {
	query := `
		SELECT id, dispatch_id, request_id, mode, provider, outcome, attempts, skipped, latency_ms, created_at
		FROM ai_dispatch_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch log: %w", err)
	}
	defer rows.Close()

	var records []*models.DispatchRecord
	for rows.Next() {
		record := &models.DispatchRecord{}
		var attempts []byte
		if err := rows.Scan(
			&record.ID,
			&record.DispatchID,
			&record.RequestID,
			&record.Mode,
			&record.Provider,
			&record.Outcome,
			&attempts,
			pq.Array(&record.Skipped),
			&record.LatencyMs,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch record: %w", err)
		}
		record.Attempts = attempts
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch log: %w", err)
	}

	return records, nil
}
