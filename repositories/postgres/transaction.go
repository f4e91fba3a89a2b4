package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sanazindustrial/PROFGINE-sub004/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager runs repository writes that must land together,
// such as a config snapshot and its history row.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin starts a new transaction
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: sqlTx, ctx: ctx}, nil
}

// InTransaction commits when fn returns nil and rolls back otherwise.
// A panic in fn rolls back and is re-raised.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err))
		}
		return err
	}

	return tx.Commit()
}

// pgTx implements repositories.Transaction over *sql.Tx
type pgTx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op on an already finished transaction
func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return fmt.Errorf("failed to rollback transaction: %w", err)
}

func (t *pgTx) Context() context.Context {
	return t.ctx
}

// Executor can run queries against either the pool or a transaction
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*pgTx); ok {
		return tx.tx
	}
	return db.DB
}
