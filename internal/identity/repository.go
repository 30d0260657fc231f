package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"

	"github.com/congo-pay/cardledger/internal/telemetry"
	"github.com/congo-pay/cardledger/internal/txn"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

const (
	tracerName  = "user-repository"
	userColumns = `id::text, username, password_hash, roles, token_version, created_at`
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db txn.Querier
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db txn.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) (err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "Create", attribute.String("username", user.Username))
	defer func() { end(err) }()

	_, err = txn.QuerierFrom(ctx, r.db).Exec(ctx, `INSERT INTO users (id, username, password_hash, roles, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.PasswordHash, user.RoleNames(), user.TokenVersion, user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (_ User, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "FindByID", attribute.String("user_id", id))
	defer func() { end(err) }()

	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(txn.QuerierFrom(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByUsername fetches a user by login name.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (_ User, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "FindByUsername")
	defer func() { end(err) }()

	return scanUser(txn.QuerierFrom(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// List returns every user ordered by username.
func (r *PostgresRepository) List(ctx context.Context) (_ []User, err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "List")
	defer func() { end(err) }()

	rows, err := txn.QuerierFrom(ctx, r.db).Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) (err error) {
	ctx, end := telemetry.StartCall(ctx, tracerName, "UpdateTokenVersion", attribute.String("user_id", id))
	defer func() { end(err) }()

	if _, err := uuid.Parse(id); err != nil {
		return ErrUserNotFound
	}
	cmd, err := txn.QuerierFrom(ctx, r.db).Exec(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, id)
	if err != nil {
		return fmt.Errorf("update token version: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u     User
		roles []string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.TokenVersion, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	for _, r := range roles {
		u.Roles = append(u.Roles, Role(r))
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
