package repositories

import (
	"context"
	"errors"

	"github.com/sanazindustrial/PROFGINE-sub004/models"
)

// ErrNotFound is returned when the requested row does not exist
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// OrchestratorConfigRepository stores the routing configuration set through the admin surface
type OrchestratorConfigRepository interface {
	// Get returns the live snapshot, or ErrNotFound if none was ever saved
	Get(ctx context.Context) (*models.ConfigSnapshot, error)

	// Save replaces the live snapshot and appends it to the change history
	Save(ctx context.Context, snapshot *models.ConfigSnapshot) error

	// History returns the most recent changes, newest first
	History(ctx context.Context, limit int) ([]*models.ConfigSnapshot, error)
}

// DispatchLogRepository stores per-dispatch routing outcomes
type DispatchLogRepository interface {
	// Insert inserts a new dispatch record
	Insert(ctx context.Context, record *models.DispatchRecord) error

	// Recent returns the most recent records, newest first
	Recent(ctx context.Context, limit int) ([]*models.DispatchRecord, error)
}

// Repositories holds all repository instances
type Repositories struct {
	OrchestratorConfig OrchestratorConfigRepository
	DispatchLog        DispatchLogRepository
}
