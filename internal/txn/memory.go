package txn

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type unitKey struct{}

type unit struct {
	mu          sync.Mutex
	lockTimeout time.Duration
	held        map[chan struct{}]bool
	release     []func()
	undo        []func()
}

// MemoryManager gives in-memory stores the same all-or-nothing units as the
// Postgres path: row locks held until the unit ends, undo on failure.
type MemoryManager struct {
	lockTimeout time.Duration
}

// NewMemoryManager builds a manager whose row-lock waits give up after
// lockTimeout. Zero waits until ctx is done.
func NewMemoryManager(lockTimeout time.Duration) *MemoryManager {
	return &MemoryManager{lockTimeout: lockTimeout}
}

// Do runs fn as one unit. On error, registered undo actions run newest first
// while the row locks are still held.
func (m *MemoryManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(unitKey{}).(*unit); ok {
		return fn(ctx)
	}

	u := &unit{lockTimeout: m.lockTimeout, held: make(map[chan struct{}]bool)}
	err := fn(context.WithValue(ctx, unitKey{}, u))
	if err != nil {
		u.rollback()
	}
	u.unlockAll()
	return Classify(err)
}

// OnRollback registers an undo action for the unit in ctx. Outside a unit it
// does nothing.
func OnRollback(ctx context.Context, undo func()) {
	u, ok := ctx.Value(unitKey{}).(*unit)
	if !ok {
		return
	}
	u.mu.Lock()
	u.undo = append(u.undo, undo)
	u.mu.Unlock()
}

func (u *unit) rollback() {
	u.mu.Lock()
	undo := u.undo
	u.undo = nil
	u.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

func (u *unit) unlockAll() {
	u.mu.Lock()
	release := u.release
	u.release = nil
	u.mu.Unlock()
	for i := len(release) - 1; i >= 0; i-- {
		release[i]()
	}
}

// RowLocks hands out exclusive per-key locks to in-memory stores. A lock is
// owned by the unit that took it and is released when that unit ends.
type RowLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewRowLocks returns an empty lock table.
func NewRowLocks() *RowLocks {
	return &RowLocks{locks: make(map[string]chan struct{})}
}

// Acquire locks key for the unit in ctx. Re-acquiring a key the unit already
// holds is a no-op.
func (r *RowLocks) Acquire(ctx context.Context, key string) error {
	u, ok := ctx.Value(unitKey{}).(*unit)
	if !ok {
		return ErrNoUnit
	}

	r.mu.Lock()
	ch, exists := r.locks[key]
	if !exists {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	r.mu.Unlock()

	u.mu.Lock()
	already := u.held[ch]
	u.mu.Unlock()
	if already {
		return nil
	}

	var timeout <-chan time.Time
	if u.lockTimeout > 0 {
		timer := time.NewTimer(u.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return Classify(fmt.Errorf("lock %s: %w", key, ctx.Err()))
	case <-timeout:
		return fmt.Errorf("%w: lock timeout on %s", ErrUnavailable, key)
	}

	u.mu.Lock()
	u.held[ch] = true
	u.release = append(u.release, func() { <-ch })
	u.mu.Unlock()
	return nil
}
