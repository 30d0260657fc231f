package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type txKey struct{}

// PostgresManager opens one pgx transaction per unit and hands it to
// repositories through the context.
type PostgresManager struct {
	db          DB
	lockTimeout time.Duration
}

// NewPostgresManager builds a manager. A positive lockTimeout bounds every
// row-lock wait inside the unit.
func NewPostgresManager(db DB, lockTimeout time.Duration) *PostgresManager {
	return &PostgresManager{db: db, lockTimeout: lockTimeout}
}

// Do runs fn in a transaction. A unit already open in ctx is joined instead.
func (m *PostgresManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if m.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return Classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// TxFromContext returns the transaction of the enclosing unit, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// QuerierFrom returns the unit's transaction when one is open, else db.
func QuerierFrom(ctx context.Context, db Querier) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}
