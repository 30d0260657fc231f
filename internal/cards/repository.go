package cards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/congo-pay/cardledger/internal/expiry"
	"github.com/congo-pay/cardledger/internal/telemetry"
	"github.com/congo-pay/cardledger/internal/txn"
)

// Repository persists cards. Writes and LockForUpdate join the atomic unit
// carried by ctx.
type Repository interface {
	Get(ctx context.Context, id string) (Card, error)
	ListByOwner(ctx context.Context, ownerID string, req PageRequest) (Page[Card], error)
	ListAll(ctx context.Context) ([]Card, error)
	Create(ctx context.Context, card Card) (Card, error)
	Save(ctx context.Context, card Card) error
	LockForUpdate(ctx context.Context, id string) (Card, error)
	Delete(ctx context.Context, id string) error
	ExistsByNumberToken(ctx context.Context, token string) (bool, error)
}

const (
	tracerName = "card-repository"

	cardColumns = `id::text, owner_id::text, number_token, last4, owner_name, expiration,
        status, balance::text, created_at, updated_at`
)

// PostgresRepository stores cards in PostgreSQL.
type PostgresRepository struct {
	db txn.Querier
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db txn.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get fetches a card without locking it.
func (r *PostgresRepository) Get(ctx context.Context, id string) (_ Card, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Get", attribute.String("card_id", id))
	defer func() { end(err) }()

	if _, err := uuid.Parse(id); err != nil {
		return Card{}, ErrCardNotFound
	}
	row := txn.QuerierFrom(ctx, r.db).QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	return scanCard(row)
}

// LockForUpdate reads the card and holds its row lock until the unit ends.
func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) (_ Card, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "LockForUpdate", attribute.String("card_id", id))
	defer func() { end(err) }()

	if _, ok := txn.TxFromContext(ctx); !ok {
		return Card{}, txn.ErrNoUnit
	}
	if _, err := uuid.Parse(id); err != nil {
		return Card{}, ErrCardNotFound
	}
	row := txn.QuerierFrom(ctx, r.db).QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1 FOR UPDATE`, id)
	return scanCard(row)
}

// ListByOwner returns one page of the owner's cards.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, req PageRequest) (_ Page[Card], err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "ListByOwner", attribute.String("owner_id", ownerID))
	defer func() { end(err) }()

	req, order, err := req.normalize()
	if err != nil {
		return Page[Card]{}, err
	}
	page := Page[Card]{Items: []Card{}, Page: req.Page, Size: req.Size}
	if _, err := uuid.Parse(ownerID); err != nil {
		return page, nil
	}

	q := txn.QuerierFrom(ctx, r.db)
	if err = q.QueryRow(ctx, `SELECT COUNT(*) FROM cards WHERE owner_id = $1`, ownerID).Scan(&page.Total); err != nil {
		return Page[Card]{}, fmt.Errorf("count cards: %w", err)
	}

	dir := "ASC"
	if order.desc {
		dir = "DESC"
	}
	// The column comes from sortKeys, never from the request.
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE owner_id = $1 ORDER BY %s %s, id LIMIT $2 OFFSET $3`,
		cardColumns, sortKeys[order.field], dir)
	rows, err := q.Query(ctx, query, ownerID, req.Size, req.offset())
	if err != nil {
		return Page[Card]{}, fmt.Errorf("list owner cards: %w", err)
	}
	page.Items, err = scanCards(rows)
	if err != nil {
		return Page[Card]{}, err
	}
	return page, nil
}

// ListAll returns every card in id order.
func (r *PostgresRepository) ListAll(ctx context.Context) (_ []Card, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "ListAll")
	defer func() { end(err) }()

	rows, err := txn.QuerierFrom(ctx, r.db).Query(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return scanCards(rows)
}

// Create inserts a card record.
func (r *PostgresRepository) Create(ctx context.Context, card Card) (_ Card, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Create", attribute.String("owner_id", card.OwnerID))
	defer func() { end(err) }()

	_, err = txn.QuerierFrom(ctx, r.db).Exec(ctx, `INSERT INTO cards
        (id, owner_id, number_token, last4, owner_name, expiration, status, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)`,
		card.ID, card.OwnerID, card.NumberToken, card.Last4, card.OwnerName, expirationDate(card.Expiration),
		string(card.Status), card.Balance.StringFixed(2), card.CreatedAt.UTC(), card.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Card{}, ErrDuplicateCardNumber
			case "23503":
				return Card{}, ErrOwnerNotFound
			}
		}
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	return card, nil
}

// Save writes the mutable fields of an existing card.
func (r *PostgresRepository) Save(ctx context.Context, card Card) (err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Save", attribute.String("card_id", card.ID))
	defer func() { end(err) }()

	tag, err := txn.QuerierFrom(ctx, r.db).Exec(ctx, `UPDATE cards
        SET owner_name = $2, expiration = $3, status = $4, balance = $5::numeric, updated_at = $6
        WHERE id = $1`,
		card.ID, card.OwnerName, expirationDate(card.Expiration), string(card.Status),
		card.Balance.StringFixed(2), card.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// Delete removes a card. Ledger rows reference cards without cascade, so a
// card with history is refused by the database as well.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Delete", attribute.String("card_id", id))
	defer func() { end(err) }()

	if _, err := uuid.Parse(id); err != nil {
		return ErrCardNotFound
	}
	tag, err := txn.QuerierFrom(ctx, r.db).Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrCardHasTransactions
		}
		return fmt.Errorf("delete card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// ExistsByNumberToken reports whether a card with the token exists.
func (r *PostgresRepository) ExistsByNumberToken(ctx context.Context, token string) (_ bool, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "ExistsByNumberToken")
	defer func() { end(err) }()

	var exists bool
	if err = txn.QuerierFrom(ctx, r.db).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cards WHERE number_token = $1)`, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("check card token: %w", err)
	}
	return exists, nil
}

func expirationDate(ym expiry.YearMonth) time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c          Card
		expiration time.Time
		status     string
		balance    string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.NumberToken, &c.Last4, &c.OwnerName, &expiration,
		&status, &balance, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, fmt.Errorf("scan card: %w", err)
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Card{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	c.Balance = parsed
	c.Status = Status(status)
	c.Expiration = expiry.Of(expiration.UTC())
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func scanCards(rows pgx.Rows) ([]Card, error) {
	defer rows.Close()
	out := make([]Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return out, nil
}
