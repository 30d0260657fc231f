package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidEntry is returned when an append would record a non-positive
// amount, an unknown status or a missing card reference.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// Status is the recorded outcome of a transfer attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPending Status = "PENDING"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusPending:
		return true
	}
	return false
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID         string
	FromCardID string
	ToCardID   string
	Amount     decimal.Decimal
	Status     Status
	CreatedAt  time.Time
}

// AppendInput captures a new ledger entry.
type AppendInput struct {
	FromCardID string
	ToCardID   string
	Amount     decimal.Decimal
	Status     Status
}

func (in AppendInput) validate() error {
	if in.FromCardID == "" || in.ToCardID == "" {
		return fmt.Errorf("%w: card references are required", ErrInvalidEntry)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, in.Status)
	}
	return nil
}

// Ledger is the append-only transfer record; entries are never updated or
// removed outside a rolled back unit. Append joins the unit carried by ctx.
type Ledger interface {
	Append(ctx context.Context, input AppendInput) (Transaction, error)
	ListAll(ctx context.Context) ([]Transaction, error)
	ListByCard(ctx context.Context, cardID string) ([]Transaction, error)
	CountByCard(ctx context.Context, cardID string) (int, error)
}
