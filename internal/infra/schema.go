package infra

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/congo-pay/cardledger/internal/txn"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the users, cards and transactions tables when they
// do not exist yet. It is safe to run on every start.
func EnsureSchema(ctx context.Context, db txn.Querier) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
