package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/congo-pay/cardledger/internal/telemetry"
	"github.com/congo-pay/cardledger/internal/txn"
)

const tracerName = "ledger-repository"

// PostgresLedger persists ledger entries in the transactions table.
type PostgresLedger struct {
	db  txn.Querier
	now func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db txn.Querier) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

// Append inserts one entry inside the caller's unit when present.
func (l *PostgresLedger) Append(ctx context.Context, input AppendInput) (_ Transaction, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Append",
		attribute.String("from_card_id", input.FromCardID),
		attribute.String("to_card_id", input.ToCardID),
	)
	defer func() { end(err) }()

	if err = input.validate(); err != nil {
		return Transaction{}, err
	}

	entry := Transaction{
		ID:         uuid.NewString(),
		FromCardID: input.FromCardID,
		ToCardID:   input.ToCardID,
		Amount:     input.Amount,
		Status:     input.Status,
		CreatedAt:  l.now().UTC(),
	}

	const query = `INSERT INTO transactions (id, from_card_id, to_card_id, amount, status, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6)`
	if _, err = txn.QuerierFrom(ctx, l.db).Exec(ctx, query,
		entry.ID, entry.FromCardID, entry.ToCardID, entry.Amount.String(), string(entry.Status), entry.CreatedAt,
	); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return entry, nil
}

// ListAll returns every entry, oldest first.
func (l *PostgresLedger) ListAll(ctx context.Context) (_ []Transaction, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "ListAll")
	defer func() { end(err) }()

	const query = `SELECT id::text, from_card_id::text, to_card_id::text, amount::text, status, created_at
        FROM transactions ORDER BY created_at, seq`
	rows, err := txn.QuerierFrom(ctx, l.db).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return scanTransactions(rows)
}

// ListByCard returns entries where the card is either side, oldest first.
func (l *PostgresLedger) ListByCard(ctx context.Context, cardID string) (_ []Transaction, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "ListByCard", attribute.String("card_id", cardID))
	defer func() { end(err) }()

	const query = `SELECT id::text, from_card_id::text, to_card_id::text, amount::text, status, created_at
        FROM transactions WHERE from_card_id = $1 OR to_card_id = $1 ORDER BY created_at, seq`
	rows, err := txn.QuerierFrom(ctx, l.db).Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	return scanTransactions(rows)
}

// CountByCard counts entries referencing the card on either side.
func (l *PostgresLedger) CountByCard(ctx context.Context, cardID string) (_ int, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "CountByCard", attribute.String("card_id", cardID))
	defer func() { end(err) }()

	const query = `SELECT COUNT(*) FROM transactions WHERE from_card_id = $1 OR to_card_id = $1`
	var count int
	if err = txn.QuerierFrom(ctx, l.db).QueryRow(ctx, query, cardID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count card transactions: %w", err)
	}
	return count, nil
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t      Transaction
			amount string
			status string
		)
		if err := rows.Scan(&t.ID, &t.FromCardID, &t.ToCardID, &amount, &status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		t.Amount = parsed
		t.Status = Status(status)
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
