package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"wrapped lock timeout", fmt.Errorf("lock card: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"business error", errors.New("insufficient funds"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.err)
			assert.Equal(t, c.unavailable, errors.Is(got, ErrUnavailable))
			assert.ErrorIs(t, got, c.err)
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestPostgresManager_CommitsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec("UPDATE cards").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	m := NewPostgresManager(mock, 3*time.Second)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		_, ok := TxFromContext(ctx)
		require.True(t, ok)
		_, err := QuerierFrom(ctx, mock).Exec(ctx, "UPDATE cards SET status = 'BLOCKED'")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresManager_RollsBackAndClassifies(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM cards").WillReturnError(&pgconn.PgError{Code: "55P03", Message: "could not obtain lock"})
	mock.ExpectRollback()

	m := NewPostgresManager(mock, 0)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		var id string
		return QuerierFrom(ctx, mock).QueryRow(ctx, "SELECT id FROM cards WHERE id = $1 FOR UPDATE", "a").Scan(&id)
	})
	require.ErrorIs(t, err, ErrUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryManager_UndoRunsNewestFirstOnError(t *testing.T) {
	m := NewMemoryManager(time.Second)
	var order []string
	boom := errors.New("boom")

	err := m.Do(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, "first") })
		OnRollback(ctx, func() { order = append(order, "second") })
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("unexpected undo order %v", order)
	}
}

func TestMemoryManager_NoUndoOnSuccess(t *testing.T) {
	m := NewMemoryManager(time.Second)
	called := false
	if err := m.Do(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { called = true })
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("undo must not run on commit")
	}
}

func TestRowLocks_AcquireRequiresUnit(t *testing.T) {
	locks := NewRowLocks()
	if err := locks.Acquire(context.Background(), "card-1"); !errors.Is(err, ErrNoUnit) {
		t.Fatalf("expected ErrNoUnit, got %v", err)
	}
}

func TestRowLocks_ReentrantWithinUnit(t *testing.T) {
	m := NewMemoryManager(50 * time.Millisecond)
	locks := NewRowLocks()
	err := m.Do(context.Background(), func(ctx context.Context) error {
		if err := locks.Acquire(ctx, "card-1"); err != nil {
			return err
		}
		return locks.Acquire(ctx, "card-1")
	})
	if err != nil {
		t.Fatalf("re-acquire within a unit must succeed: %v", err)
	}
}

func TestRowLocks_TimeoutSurfacesUnavailable(t *testing.T) {
	m := NewMemoryManager(30 * time.Millisecond)
	locks := NewRowLocks()

	holding := make(chan struct{})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Do(context.Background(), func(ctx context.Context) error {
			if err := locks.Acquire(ctx, "card-1"); err != nil {
				return err
			}
			close(holding)
			<-done
			return nil
		})
	}()

	<-holding
	err := m.Do(context.Background(), func(ctx context.Context) error {
		return locks.Acquire(ctx, "card-1")
	})
	close(done)
	wg.Wait()

	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on lock timeout, got %v", err)
	}

	// The lock is free again once the holder's unit ended.
	if err := m.Do(context.Background(), func(ctx context.Context) error {
		return locks.Acquire(ctx, "card-1")
	}); err != nil {
		t.Fatalf("lock should be released: %v", err)
	}
}
