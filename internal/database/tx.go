package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// TxManager runs units of work in a transaction carried by the context, so
// repositories called with that context share it.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager creates a transaction manager for db
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn in a transaction. A context that already carries one
// reuses it, so nested calls commit or roll back with the outermost.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	return WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction carried by ctx, or db when there is none
func Conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}
