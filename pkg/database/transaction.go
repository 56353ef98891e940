package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Executor
	IsOpen() bool
	// Owner reports whether this handle began the transaction. Only the owner commits or rolls back.
	Owner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Nested GetTx calls receive a non-owning handle on the same
// transaction whose Commit and Rollback are no-ops, so the outermost caller decides the outcome.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	root     *Transaction
	isClosed bool
}

// NewTx wraps an open sqlx transaction.
func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx returns the transaction already carried by ctx, or begins one that the caller owns.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if parent := txFromContext(ctx); parent != nil {
		return ctx, &Transaction{Tx: parent.Tx, logger: logger, root: parent}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func txFromContext(ctx context.Context) *Transaction {
	tx, ok := ctx.Value(txKey).(*Transaction)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil
	}
	return tx
}

func (t *Transaction) Owner() bool {
	return t.root == nil
}

func (t *Transaction) IsOpen() bool {
	if t.root != nil {
		return t.root.IsOpen()
	}
	return !t.isClosed
}

// Rollback rolls back only when this handle owns the transaction.
func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.Owner() || t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Rollback(); err != nil && err != sql.ErrTxDone {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}
	return nil
}

// Commit commits only when this handle owns the transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	if !t.Owner() || t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	return nil
}
