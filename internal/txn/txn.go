package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnavailable marks lock timeouts, deadlocks and lost connections. No
	// partial write survives such a failure, so callers may resubmit.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNoUnit is returned when a locking call runs outside Manager.Do.
	ErrNoUnit = errors.New("no atomic unit in context")
)

// Manager runs a function as one atomic unit: every write made through the
// context passed to fn commits together or not at all.
type Manager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the query surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions.
type DB interface {
	Querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Classify folds infrastructure failures into ErrUnavailable and returns
// every other error unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", // lock_not_available
			"57014", // query_canceled, raised by statement_timeout
			"40P01", // deadlock_detected
			"40001": // serialization_failure
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
