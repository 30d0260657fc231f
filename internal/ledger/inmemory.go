package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardledger/internal/txn"
)

type inMemoryLedger struct {
	mu      sync.RWMutex
	entries []Transaction
	now     func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{now: time.Now}
}

func (l *inMemoryLedger) Append(ctx context.Context, input AppendInput) (Transaction, error) {
	if err := input.validate(); err != nil {
		return Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Transaction{
		ID:         uuid.NewString(),
		FromCardID: input.FromCardID,
		ToCardID:   input.ToCardID,
		Amount:     input.Amount,
		Status:     input.Status,
		CreatedAt:  l.now().UTC(),
	}
	// Keep creation order even if the clock steps back.
	if n := len(l.entries); n > 0 && entry.CreatedAt.Before(l.entries[n-1].CreatedAt) {
		entry.CreatedAt = l.entries[n-1].CreatedAt
	}
	l.entries = append(l.entries, entry)

	txn.OnRollback(ctx, func() { l.remove(entry.ID) })
	return entry, nil
}

func (l *inMemoryLedger) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *inMemoryLedger) ListAll(_ context.Context) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *inMemoryLedger) ListByCard(_ context.Context, cardID string) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, e := range l.entries {
		if e.FromCardID == cardID || e.ToCardID == cardID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *inMemoryLedger) CountByCard(ctx context.Context, cardID string) (int, error) {
	entries, err := l.ListByCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
