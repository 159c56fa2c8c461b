package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/workshop-crew/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// Executor runs queries against either the pool or an open transaction
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx.tx
	}
	return db.DB
}

// GetTransactionFromContext reports the transaction InTransaction stored in ctx
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok {
		return nil, false
	}
	return tx, true
}

// TxManager opens transactions on a DB
type TxManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager returns a TransactionManager backed by db
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TxManager{db: db, logger: logger}
}

// Begin opens a transaction bound to ctx
func (m *TxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: sqlTx, ctx: ctx, logger: m.logger}, nil
}

// InTransaction runs fn inside a transaction and commits when it returns nil.
// Repository calls made with the ctx handed to fn join the transaction. A
// panic in fn rolls back and is re-raised.
func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	t, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	tx := t.(*Tx)

	defer func() {
		p := recover()
		if p == nil && err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx is a repositories.Transaction over *sql.Tx
type Tx struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op on a finished transaction
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return fmt.Errorf("failed to rollback transaction: %w", err)
}

func (t *Tx) Context() context.Context {
	return t.ctx
}
