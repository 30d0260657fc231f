package cards

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/congo-pay/cardledger/internal/txn"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Card
	locks   *txn.RowLocks
}

// NewMemoryRepository constructs an in-memory repository. Pair it with a
// txn.MemoryManager: LockForUpdate and the writes it guards need a unit.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Card), locks: txn.NewRowLocks()}
}

func (r *memoryRepository) Get(_ context.Context, id string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.storage[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return card, nil
}

func (r *memoryRepository) LockForUpdate(ctx context.Context, id string) (Card, error) {
	if err := r.locks.Acquire(ctx, id); err != nil {
		return Card{}, err
	}
	return r.Get(ctx, id)
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string, req PageRequest) (Page[Card], error) {
	req, order, err := req.normalize()
	if err != nil {
		return Page[Card]{}, err
	}

	r.mu.RLock()
	owned := make([]Card, 0)
	for _, c := range r.storage {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	r.mu.RUnlock()

	sortCards(owned, order)
	page := Page[Card]{Items: []Card{}, Page: req.Page, Size: req.Size, Total: len(owned)}
	if start := req.offset(); start < len(owned) {
		end := start + req.Size
		if end > len(owned) {
			end = len(owned)
		}
		page.Items = owned[start:end]
	}
	return page, nil
}

func (r *memoryRepository) ListAll(_ context.Context) ([]Card, error) {
	r.mu.RLock()
	out := make([]Card, 0, len(r.storage))
	for _, c := range r.storage {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sortCards(out, sortOrder{field: "id"})
	return out, nil
}

func (r *memoryRepository) Create(ctx context.Context, card Card) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[card.ID]; exists {
		return Card{}, ErrDuplicateCardNumber
	}
	for _, c := range r.storage {
		if c.NumberToken == card.NumberToken {
			return Card{}, ErrDuplicateCardNumber
		}
	}
	r.storage[card.ID] = card
	txn.OnRollback(ctx, func() { r.remove(card.ID) })
	return card, nil
}

func (r *memoryRepository) Save(ctx context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, ok := r.storage[card.ID]
	if !ok {
		return ErrCardNotFound
	}
	r.storage[card.ID] = card
	txn.OnRollback(ctx, func() { r.restore(previous) })
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, ok := r.storage[id]
	if !ok {
		return ErrCardNotFound
	}
	delete(r.storage, id)
	txn.OnRollback(ctx, func() { r.restore(previous) })
	return nil
}

func (r *memoryRepository) ExistsByNumberToken(_ context.Context, token string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.storage {
		if c.NumberToken == token {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) remove(id string) {
	r.mu.Lock()
	delete(r.storage, id)
	r.mu.Unlock()
}

func (r *memoryRepository) restore(card Card) {
	r.mu.Lock()
	r.storage[card.ID] = card
	r.mu.Unlock()
}

// sortCards orders cards the way the Postgres listing does: by the chosen
// field, then by id.
func sortCards(cards []Card, order sortOrder) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		cmp := compareField(a, b, order.field)
		if order.desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return a.ID < b.ID
	})
}

func compareField(a, b Card, field string) int {
	switch field {
	case "balance":
		return a.Balance.Cmp(b.Balance)
	case "expiration":
		switch {
		case a.Expiration.Before(b.Expiration):
			return -1
		case b.Expiration.Before(a.Expiration):
			return 1
		}
		return 0
	case "ownerName":
		return strings.Compare(a.OwnerName, b.OwnerName)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return strings.Compare(a.ID, b.ID)
	}
}
