package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/txn"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInMemoryLedger_AppendAndListInCreationOrder(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	first, err := l.Append(ctx, AppendInput{FromCardID: "a", ToCardID: "b", Amount: amount("100.00"), Status: StatusSuccess})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := l.Append(ctx, AppendInput{FromCardID: "b", ToCardID: "c", Amount: amount("5.25"), Status: StatusSuccess})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}

	all, err := l.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("expected creation order [%s %s], got %+v", first.ID, second.ID, all)
	}
	if all[1].CreatedAt.Before(all[0].CreatedAt) {
		t.Fatalf("timestamps out of order")
	}

	byB, _ := l.ListByCard(ctx, "b")
	if len(byB) != 2 {
		t.Fatalf("card b is on both entries, got %d", len(byB))
	}
	count, _ := l.CountByCard(ctx, "c")
	if count != 1 {
		t.Fatalf("expected 1 entry for c, got %d", count)
	}
}

func TestInMemoryLedger_RejectsInvalidEntries(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	cases := []AppendInput{
		{FromCardID: "a", ToCardID: "b", Amount: decimal.Zero, Status: StatusSuccess},
		{FromCardID: "a", ToCardID: "b", Amount: amount("-1"), Status: StatusSuccess},
		{FromCardID: "a", ToCardID: "b", Amount: amount("1"), Status: "DONE"},
		{FromCardID: "", ToCardID: "b", Amount: amount("1"), Status: StatusSuccess},
	}
	for i, in := range cases {
		if _, err := l.Append(ctx, in); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("case %d: expected ErrInvalidEntry, got %v", i, err)
		}
	}
	all, _ := l.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("invalid entries must not be stored")
	}
}

func TestInMemoryLedger_RollbackDropsEntry(t *testing.T) {
	l := NewInMemory()
	m := txn.NewMemoryManager(time.Second)
	ctx := context.Background()
	boom := errors.New("credit failed")

	err := m.Do(ctx, func(ctx context.Context) error {
		if _, err := l.Append(ctx, AppendInput{FromCardID: "a", ToCardID: "b", Amount: amount("1"), Status: StatusSuccess}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	all, _ := l.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("rolled back entry still visible: %+v", all)
	}
}

func TestInMemoryLedger_ConcurrentAppends(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := fmt.Sprintf("card-%d", i)
			if _, err := l.Append(ctx, AppendInput{FromCardID: "src", ToCardID: to, Amount: amount("1.50"), Status: StatusSuccess}); err != nil {
				t.Errorf("append %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	count, _ := l.CountByCard(ctx, "src")
	if count != workers {
		t.Fatalf("expected %d entries, got %d", workers, count)
	}
	all, _ := l.ListAll(ctx)
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("entries out of creation order at %d", i)
		}
	}
}
